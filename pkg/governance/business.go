package governance

import "time"

// RecordKind names a kind of business record in the owning store.
type RecordKind string

const (
	KindAssessment RecordKind = "assessment"
	KindAnswer     RecordKind = "answer"
	KindDocument   RecordKind = "document"
	KindFinding    RecordKind = "finding"
	KindMember     RecordKind = "member"
)

// CategoryKinds maps a purge category to the record kinds it covers. The
// first kind is the primary one whose count is reported for the category.
var CategoryKinds = map[string][]RecordKind{
	CategoryAssessments: {KindAssessment, KindAnswer},
	CategoryDocuments:   {KindDocument},
	CategoryFindings:    {KindFinding},
}

// Visibility selects records by soft-delete state.
type Visibility int

const (
	VisibilityVisible Visibility = iota // not soft-deleted
	VisibilityDeleted                   // soft-deleted, awaiting hard delete
	VisibilityAll
)

// Engagement is a client engagement owned by the business-data subsystem.
type Engagement struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ClientName string    `json:"client_name"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Assessment is a maturity assessment within an engagement.
type Assessment struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id"`
	Framework    string    `json:"framework"`
	Title        string    `json:"title"`
	Score        float64   `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
}

// Answer is a response to one assessment question.
type Answer struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	EngagementID string    `json:"engagement_id"`
	QuestionID   string    `json:"question_id"`
	Value        string    `json:"value"`
	Comment      string    `json:"comment,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Document is the metadata of an uploaded document. Content stays in the
// document store.
type Document struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	UploadedBy   string    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Finding is a gap-analysis finding.
type Finding struct {
	ID             string    `json:"id"`
	EngagementID   string    `json:"engagement_id"`
	AssessmentID   string    `json:"assessment_id,omitempty"`
	Title          string    `json:"title"`
	Severity       string    `json:"severity"`
	Recommendation string    `json:"recommendation,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Member is a user's membership of an engagement.
type Member struct {
	EngagementID string    `json:"engagement_id"`
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	AddedAt      time.Time `json:"added_at"`
}
