package business

import (
	"context"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// OperationalLog is an application log line kept for troubleshooting.
type OperationalLog struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id,omitempty"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// TempEntry is a short-lived scratch value such as an upload session.
type TempEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// kindTables maps purgeable record kinds to their tables.
var kindTables = map[governance.RecordKind]string{
	governance.KindAssessment: "assessments",
	governance.KindAnswer:     "answers",
	governance.KindDocument:   "documents",
	governance.KindFinding:    "findings",
}

func tableFor(kind governance.RecordKind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", governance.NewValidationError("kind", "record kind "+string(kind)+" cannot be purged")
	}
	return table, nil
}

// Store is a business store that can be populated and swept.
type Store interface {
	governance.BusinessStore

	CreateEngagement(ctx context.Context, e governance.Engagement) error
	AddAssessment(ctx context.Context, a governance.Assessment) error
	AddAnswer(ctx context.Context, a governance.Answer) error
	AddDocument(ctx context.Context, d governance.Document) error
	AddFinding(ctx context.Context, f governance.Finding) error
	AddMember(ctx context.Context, m governance.Member) error
	AppendLog(ctx context.Context, l OperationalLog) error
	PutTemp(ctx context.Context, e TempEntry) error

	OperationalLogs() governance.Sweepable
	TempData() governance.Sweepable
	SetClock(clock governance.Clock)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
