package sessionauth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Flow names used as the "flow" label.
const (
	flowRegister       = "register"
	flowLogin          = "login"
	flowRefresh        = "refresh"
	flowVerifyEmail    = "verify_email"
	flowForgotPassword = "forgot_password"
	flowResetPassword  = "reset_password"
	flowLogout         = "logout"
	flowMFASetup       = "mfa_setup"
	flowMFAConfirm     = "mfa_confirm"
	flowMFALogin       = "mfa_login"
	flowMFARevoke      = "mfa_revoke"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Flows     *prometheus.CounterVec
	Rotations prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered. Collectors already registered under the same
// name are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	flows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionauth",
		Name:      "flow_total",
		Help:      "Auth flow completions partitioned by flow and outcome.",
	}, []string{"flow", "outcome"})

	rotations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessionauth",
		Name:      "refresh_rotations_total",
		Help:      "Refreshes that extended a session and minted a new refresh token.",
	})

	if reg == nil {
		return &Metrics{Flows: flows, Rotations: rotations}, nil
	}

	if err := reg.Register(flows); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		flows = existing
	}

	if err := reg.Register(rotations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, err
		}
		rotations = existing
	}

	return &Metrics{Flows: flows, Rotations: rotations}, nil
}

func (e *Engine) observe(flow string, err error) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Flows.WithLabelValues(flow, outcome(err)).Inc()
}

func (e *Engine) observeRotation() {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Rotations.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInternal):
		return "error"
	case errors.Is(err, ErrTooManyRequests):
		return "rate_limited"
	default:
		return "rejected"
	}
}

func (e *Engine) observeOutcome(flow, label string) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Flows.WithLabelValues(flow, label).Inc()
}
