package messagesvc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/jobboard-session/internal/domain"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	"github.com/mkrupp/jobboard-session/internal/svc/messagesvc"
)

// mockMessageClient returns a growing conversation and fails on the calls
// listed in failOn.
type mockMessageClient struct {
	m      sync.Mutex
	calls  int
	failOn map[int]bool
	peers  []string
}

func (c *mockMessageClient) Conversation(_ context.Context, userID string) ([]domain.Message, error) {
	c.m.Lock()
	defer c.m.Unlock()

	c.calls++
	c.peers = append(c.peers, userID)

	if c.failOn[c.calls] {
		return nil, domain.ErrBackendUnavailable
	}

	messages := make([]domain.Message, c.calls)
	for i := range messages {
		messages[i] = domain.Message{MessageID: string(rune('a' + i)), SenderID: userID}
	}

	return messages, nil
}

func newPoller(client *mockMessageClient) *messagesvc.ConversationPoller {
	return &messagesvc.ConversationPoller{
		Config: messagesvc.PollerConfig{Interval: 5 * time.Millisecond},
		Client: client,
		Log:    logging.NewNopLogger(),
	}
}

func TestConversationPoller_ReplacesStateWholesale(t *testing.T) {
	t.Parallel()

	client := &mockMessageClient{failOn: map[int]bool{2: true}}
	poller := newPoller(client)

	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu      sync.Mutex
		state   []domain.Message
		updates int
	)

	done := make(chan error, 1)

	go func() {
		done <- poller.Run(ctx, "u9", func(messages []domain.Message) {
			mu.Lock()
			defer mu.Unlock()

			state = messages
			updates++
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return updates >= 3
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()

	client.m.Lock()
	defer client.m.Unlock()

	require.Less(t, updates, client.calls, "failed fetch produced no update")
	require.Equal(t, "u9", state[0].SenderID)
	require.GreaterOrEqual(t, len(state), 3)

	for _, peer := range client.peers {
		require.Equal(t, "u9", peer)
	}
}

func TestConversationPoller_FetchesImmediately(t *testing.T) {
	t.Parallel()

	client := &mockMessageClient{}
	poller := newPoller(client)
	poller.Config.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []domain.Message, 1)

	go func() {
		_ = poller.Run(ctx, "u9", func(messages []domain.Message) { got <- messages })
	}()

	select {
	case messages := <-got:
		require.Len(t, messages, 1)
	case <-time.After(time.Second):
		t.Fatal("no initial fetch")
	}

	cancel()
}

func TestConversationPoller_RequiresPartner(t *testing.T) {
	t.Parallel()

	err := newPoller(&mockMessageClient{}).Run(context.Background(), "", func([]domain.Message) {})
	require.ErrorIs(t, err, domain.ErrInvalidUser)
}
