package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/pkg/circuitbreaker"
)

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, p profile.Profile) error
}

// BreakerSender stops calling the mail provider after repeated transient
// failures. Only retryable errors count towards opening it.
type BreakerSender struct {
	next    Sender
	breaker *circuitbreaker.Breaker
}

// NewBreakerSender wraps next with the email breaker and logs its
// transitions.
func NewBreakerSender(next Sender, logger *slog.Logger) *BreakerSender {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "email_breaker")

	b := circuitbreaker.EmailBreaker(shared.IsRetryable, func(name string, from, to circuitbreaker.State) {
		level := slog.LevelInfo
		if to == circuitbreaker.StateOpen {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return NewBreakerSenderWith(next, b)
}

// NewBreakerSenderWith wraps next with b.
func NewBreakerSenderWith(next Sender, b *circuitbreaker.Breaker) *BreakerSender {
	return &BreakerSender{next: next, breaker: b}
}

// Send delivers through next unless the breaker is open. While open it fails
// with a non-retryable ErrExternalService.
func (s *BreakerSender) Send(ctx context.Context, p profile.Profile) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Send(ctx, p)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrProbeLimit) {
		return shared.WrapError("notification", "Send", shared.ErrExternalService, "email circuit open", err)
	}
	return err
}

// State reports the breaker position.
func (s *BreakerSender) State() circuitbreaker.State {
	return s.breaker.State()
}
