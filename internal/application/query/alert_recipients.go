package query

import (
	"context"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// AlertLevels are the tiers that receive notifications.
var AlertLevels = []risk.Level{risk.High, risk.Medium}

// AlertSelector selects reconciled profiles that need a notification. It is
// read-only and sees committed state only.
type AlertSelector struct {
	profiles profile.Store
}

// NewAlertSelector creates a new AlertSelector.
func NewAlertSelector(profiles profile.Store) *AlertSelector {
	return &AlertSelector{profiles: profiles}
}

// Recipients returns every Medium or High profile, ordered by student_id.
func (s *AlertSelector) Recipients(ctx context.Context) ([]profile.Profile, error) {
	out, err := s.profiles.ListProfilesByRisk(ctx, AlertLevels...)
	if err != nil {
		return nil, shared.SourceUnavailable("profile", "ListProfilesByRisk", err)
	}
	return out, nil
}
