// Package notification renders and delivers at-risk student alerts.
//
// Key components:
//   - Renderer: builds the subject, text and HTML bodies of an alert
//   - SendGridSender: delivers alerts through the SendGrid v3 mail API
//   - LogSender: writes alerts to the log when email delivery is disabled
package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"

	"github.com/teamvidya/risk-hub/internal/application/query"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplate = texttmpl.Must(texttmpl.ParseFS(templateFS, "templates/alert.txt"))
	htmlTemplate = htmltmpl.Must(htmltmpl.ParseFS(templateFS, "templates/alert.gohtml"))
)

// ErrNoRecipient is returned for a profile without an address for the
// configured audience. Retrying cannot fix it.
var ErrNoRecipient = shared.NewDomainError("notification", "Render", shared.ErrInvalidInput, "no alert recipient for student")

// Audience selects who receives an alert.
type Audience string

const (
	AudienceMentor   Audience = "mentor"
	AudienceGuardian Audience = "guardian"
	AudienceBoth     Audience = "both"
)

// Address is one email recipient.
type Address struct {
	Name  string
	Email string
}

// Message is a rendered alert.
type Message struct {
	StudentID int64
	To        []Address
	Subject   string
	Text      string
	HTML      string
}

// Renderer turns profiles into alert messages.
type Renderer struct {
	appName      string
	dashboardURL string
	audience     Audience
}

// NewRenderer creates a Renderer. An unknown audience falls back to the
// mentor.
func NewRenderer(appName, dashboardURL string, audience Audience) *Renderer {
	switch audience {
	case AudienceMentor, AudienceGuardian, AudienceBoth:
	default:
		audience = AudienceMentor
	}
	return &Renderer{
		appName:      appName,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		audience:     audience,
	}
}

type alertView struct {
	AppName    string
	Name       string
	StudentID  int64
	Class      int
	RiskLevel  string
	Attendance int
	Score      int
	Attempts   int
	FeeStatus  string
	Suggestion string
	Link       string
}

// Render builds the alert for p.
func (r *Renderer) Render(p profile.Profile) (*Message, error) {
	to := r.recipients(p)
	if len(to) == 0 {
		return nil, fmt.Errorf("student %d: %w", p.StudentID, ErrNoRecipient)
	}

	name := p.Name
	if name == "" {
		name = fmt.Sprintf("Student #%d", p.StudentID)
	}
	view := alertView{
		AppName:    r.appName,
		Name:       name,
		StudentID:  p.StudentID,
		Class:      p.Class,
		RiskLevel:  string(p.RiskLevel),
		Attendance: p.AttendancePercentage,
		Score:      p.AverageScore,
		Attempts:   p.ExamAttempts,
		FeeStatus:  string(p.FeeStatus),
		Suggestion: query.Suggest(p),
	}
	if r.dashboardURL != "" {
		view.Link = fmt.Sprintf("%s/students/%d", r.dashboardURL, p.StudentID)
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render text alert: %w", err)
	}
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html alert: %w", err)
	}

	return &Message{
		StudentID: p.StudentID,
		To:        to,
		Subject:   fmt.Sprintf("[%s] %s risk alert: %s", r.appName, p.RiskLevel, name),
		Text:      text.String(),
		HTML:      html.String(),
	}, nil
}

func (r *Renderer) recipients(p profile.Profile) []Address {
	var to []Address
	if r.audience != AudienceGuardian && p.MentorEmail != "" {
		to = append(to, Address{Name: "Mentor", Email: p.MentorEmail})
	}
	if r.audience != AudienceMentor && p.GuardianEmail != "" && p.GuardianEmail != p.MentorEmail {
		to = append(to, Address{Name: "Guardian", Email: p.GuardianEmail})
	}
	return to
}
