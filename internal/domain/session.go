package domain

import (
	"strings"
	"time"
)

type EntityID string

// Snapshot is the unit stored per entity. Replaced wholesale on every write;
// never merged field-by-field with an older version.
type Snapshot struct {
	EntityID  EntityID
	Version   string
	CachedAt  time.Time
	ExpiresAt time.Time
	Payload   SessionPayload
}

// Complete reports whether both artifacts are present. Only complete
// snapshots may be served for instant render; incomplete ones are good for
// form-field restoration only.
func (s Snapshot) Complete() bool {
	return strings.TrimSpace(s.Payload.ReportHTML) != "" && strings.TrimSpace(s.Payload.InfoHTML) != ""
}

func (s Snapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type SessionPayload struct {
	CompanyID      string
	ConversationID string
	Step           int
	Answers        map[string]string
	Result         *ValuationResult
	ReportHTML     string
	InfoHTML       string
}

func (p SessionPayload) CloneAnswers() map[string]string {
	if p.Answers == nil {
		return map[string]string{}
	}

	answers := make(map[string]string, len(p.Answers))
	for field, value := range p.Answers {
		answers[field] = value
	}

	return answers
}

type ValuationResult struct {
	ValuationID     string
	EquityValue     int64
	RangeMin        int64
	RangeMax        int64
	ConfidenceScore float64
	Methodology     string
}

// NewerVersion reports whether version a supersedes version b. Version
// tokens are UUIDv7 strings, so lexicographic order follows creation order.
func NewerVersion(a, b string) bool {
	return strings.Compare(a, b) > 0
}
