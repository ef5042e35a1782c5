package risk

import (
	"fmt"
	"sort"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// LabelEncoder maps a categorical value to its index among the sorted
// distinct values seen at fit time. The encoding is frozen once fitted.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabelEncoder learns the sorted distinct values.
func FitLabelEncoder(values []string) LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return LabelEncoder{Classes: classes}
}

// Encode returns the code of v. A value absent at fit time is an
// ErrUnknownCategory error; it is never mapped to a nearby code.
func (e LabelEncoder) Encode(v string) (int, error) {
	i := sort.SearchStrings(e.Classes, v)
	if i < len(e.Classes) && e.Classes[i] == v {
		return i, nil
	}
	return 0, shared.WrapError("risk", "Encode", shared.ErrUnknownCategory,
		"fee_status not seen during training", fmt.Errorf("value %q, known %v", v, e.Classes))
}

// Decode returns the value for a code.
func (e LabelEncoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.Classes) {
		return "", false
	}
	return e.Classes[code], true
}
