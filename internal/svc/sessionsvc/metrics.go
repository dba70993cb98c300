package sessionsvc

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrupp/jobboard-session/internal/domain"
)

const metricsNamespace = "jobboard_session"

// Metrics holds the session service's Prometheus collectors on a private
// registry, so several services (and tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	// Operations counts finished operations.
	// Labels:
	//   - op: check_auth, exchange_session, handle_redirect, logout, update_user, ...
	//   - outcome: ok or a short failure reason (see outcome)
	Operations *prometheus.CounterVec

	// State is 1 for the current session state and 0 for all others.
	State *prometheus.GaugeVec
}

// NewMetrics registers the session collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Session operations by outcome.",
			},
			[]string{"op", "outcome"},
		),
		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "state",
				Help:      "Current session state (1 for the active state).",
			},
			[]string{"state"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	//nolint:exhaustruct
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}

	m.Operations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) setState(state domain.SessionState) {
	if m == nil {
		return
	}

	for _, s := range []domain.SessionState{
		domain.StateUnknown,
		domain.StateUnauthenticated,
		domain.StateAuthenticating,
		domain.StateAuthenticated,
	} {
		v := 0.0
		if s == state {
			v = 1
		}

		m.State.WithLabelValues(s.String()).Set(v)
	}
}

//nolint:cyclop
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, domain.ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, domain.ErrInvalidUser):
		return "invalid_user"
	case errors.Is(err, domain.ErrMissingSessionToken):
		return "missing_token"
	case errors.Is(err, domain.ErrAuthCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrStaleLogin):
		return "stale"
	case errors.Is(err, domain.ErrCache):
		return "cache"
	default:
		return "error"
	}
}
