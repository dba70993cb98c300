package messagesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/mkrupp/jobboard-session/internal/domain"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc/backendclient"
)

const defaultPollInterval = 5 * time.Second

// PollerConfig contains configuration parameters for the conversation poller.
type PollerConfig struct {
	// Interval between two fetches of the open conversation
	Interval time.Duration `env:"POLL_INTERVAL, default=5s"`
}

// ConversationPoller keeps an open conversation fresh by re-reading it on a
// fixed interval. Every successful fetch replaces the previous state.
type ConversationPoller struct {
	Config PollerConfig
	Client backendclient.MessageClient
	Log    logging.Logger
}

// NewConversationPoller creates a new ConversationPoller.
func NewConversationPoller(client backendclient.MessageClient, cfg PollerConfig) *ConversationPoller {
	return &ConversationPoller{
		Config: cfg,
		Client: client,
		Log:    logging.GetLogger("svc.messagesvc.conversation_poller"),
	}
}

// Run fetches the conversation with partnerID right away and then on every
// tick, handing each result to onUpdate. Fetch failures are logged and the
// previous state is kept. Run returns nil once ctx is done.
func (p *ConversationPoller) Run(
	ctx context.Context,
	partnerID string,
	onUpdate func([]domain.Message),
) error {
	if partnerID == "" {
		return fmt.Errorf("run poller: %w", domain.ErrInvalidUser)
	}

	interval := p.Config.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	log := p.Log.With(logging.Group("conversation", "partner_id", partnerID))
	log.DebugContext(ctx, "polling conversation", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, log, partnerID, onUpdate)

		select {
		case <-ctx.Done():
			log.DebugContext(ctx, "conversation poller stopped")

			return nil
		case <-ticker.C:
		}
	}
}

func (p *ConversationPoller) poll(
	ctx context.Context,
	log logging.Logger,
	partnerID string,
	onUpdate func([]domain.Message),
) {
	messages, err := p.Client.Conversation(ctx, partnerID)
	if err != nil {
		if ctx.Err() == nil {
			log.WarnContext(ctx, "fetch conversation failed", "error", err)
		}

		return
	}

	onUpdate(messages)
}
