package sessionsvc

import (
	"context"

	"github.com/mkrupp/jobboard-session/internal/domain"
)

// Snapshot returns a copy of the current session view.
func (s *SessionService) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	snap.User = snap.User.Clone()

	return snap
}

// CurrentUser returns the authenticated user, if any.
func (s *SessionService) CurrentUser() (*domain.User, bool) {
	snap := s.Snapshot()

	return snap.User, snap.User != nil
}

// IsLoading reports whether the initial revalidation has not settled yet.
func (s *SessionService) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap.Loading
}

// State returns the current session state.
func (s *SessionService) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap.State
}

// Subscribe returns a channel that receives the current snapshot and then
// every later change until ctx is done. A slow reader only sees the latest
// snapshot; intermediate ones are dropped.
func (s *SessionService) Subscribe(ctx context.Context) <-chan domain.Snapshot {
	ch := make(chan domain.Snapshot, 1)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	snap := s.snap
	snap.User = snap.User.Clone()
	ch <- snap
	s.mu.Unlock()

	go func() {
		<-ctx.Done()

		s.mu.Lock()
		delete(s.subscribers, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

func (s *SessionService) apply(user *domain.User, state domain.SessionState) {
	s.mu.Lock()
	s.snap.User = user.Clone()
	s.snap.State = state
	s.snap.Version++
	s.publish()
	s.mu.Unlock()

	s.Metrics.setState(state)
}

func (s *SessionService) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Loading == loading {
		return
	}

	s.snap.Loading = loading
	s.snap.Version++
	s.publish()
}

// publish must be called with mu held.
func (s *SessionService) publish() {
	for ch := range s.subscribers {
		snap := s.snap
		snap.User = snap.User.Clone()

		select {
		case <-ch:
		default:
		}

		ch <- snap
	}
}
