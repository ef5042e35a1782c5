package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
)

// LogSender renders alerts and logs them instead of sending email. It keeps
// the rendered messages for inspection.
type LogSender struct {
	renderer *Renderer
	logger   *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a LogSender.
func NewLogSender(renderer *Renderer, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{renderer: renderer, logger: logger.With("component", "alert_log")}
}

// Send implements command.AlertSender.
func (s *LogSender) Send(_ context.Context, p profile.Profile) error {
	msg, err := s.renderer.Render(p)
	if err != nil {
		return err
	}

	to := make([]string, len(msg.To))
	for i, a := range msg.To {
		to[i] = a.Email
	}
	s.logger.Info("alert (email disabled)",
		"student_id", msg.StudentID,
		"to", to,
		"subject", msg.Subject,
	)

	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages logged so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
