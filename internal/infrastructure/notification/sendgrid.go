package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

const (
	// DefaultSendGridHost is the public SendGrid API.
	DefaultSendGridHost = "https://api.sendgrid.com"

	sendGridEndpoint = "/v3/mail/send"
)

// SendGridConfig holds SendGrid delivery settings.
type SendGridConfig struct {
	APIKey   string
	Host     string
	FromName string
	FromAddr string
}

// SendGridSender delivers alerts through the SendGrid v3 mail API.
type SendGridSender struct {
	key      string
	host     string
	from     *sgmail.Email
	renderer *Renderer
	logger   *slog.Logger

	// do performs the HTTP call; replaced in tests.
	do func(ctx context.Context, req rest.Request) (*rest.Response, error)
}

// NewSendGridSender creates a SendGridSender.
func NewSendGridSender(cfg SendGridConfig, renderer *Renderer, logger *slog.Logger) *SendGridSender {
	if cfg.Host == "" {
		cfg.Host = DefaultSendGridHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridSender{
		key:      cfg.APIKey,
		host:     cfg.Host,
		from:     sgmail.NewEmail(cfg.FromName, cfg.FromAddr),
		renderer: renderer,
		logger:   logger.With("component", "sendgrid"),
		do:       sendgrid.MakeRequestWithContext,
	}
}

// Send renders and delivers the alert for p. Rate limiting and server
// errors are reported as retryable; other rejections are not.
func (s *SendGridSender) Send(ctx context.Context, p profile.Profile) error {
	msg, err := s.renderer.Render(p)
	if err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.do(ctx, req)
	if err != nil {
		return shared.WrapError("notification", "Send", shared.ErrServiceUnavailable, "sendgrid request failed", err)
	}
	if err := statusError(res); err != nil {
		s.logger.Warn("sendgrid rejected alert",
			"student_id", p.StudentID,
			"status", res.StatusCode,
			"body", res.Body,
		)
		return err
	}

	s.logger.Debug("alert sent", "student_id", p.StudentID, "recipients", len(msg.To))
	return nil
}

func (s *SendGridSender) prepare(msg *Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

func statusError(res *rest.Response) error {
	switch {
	case res.StatusCode < http.StatusBadRequest:
		return nil
	case res.StatusCode == http.StatusTooManyRequests:
		return shared.NewDomainError("notification", "Send", shared.ErrRateLimited, "sendgrid rate limit reached")
	case res.StatusCode >= http.StatusInternalServerError:
		return shared.NewDomainError("notification", "Send", shared.ErrServiceUnavailable,
			fmt.Sprintf("sendgrid returned %d", res.StatusCode))
	default:
		return shared.NewDomainError("notification", "Send", shared.ErrInvalidInput,
			fmt.Sprintf("sendgrid rejected the message with %d", res.StatusCode))
	}
}
