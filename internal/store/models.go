package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Stage is one named step in a per-kind workflow. Stages are immutable
// configuration, seeded once per stage type.
type Stage struct {
	ID          string
	StageType   string
	DisplayName string
	SortOrder   int
	NextStageID *string
}

// StagePermission grants a permission key to every stage of a type whose
// sort order falls inside the inclusive [MinSortOrder, MaxSortOrder] range.
type StagePermission struct {
	ID           string
	StageType    string
	Key          string
	MinSortOrder int
	MaxSortOrder int
}

type Section struct {
	ID          string
	ProjectID   string
	SectionType string
	Name        string
	SortOrder   int
}

type Field struct {
	ID              string
	SectionID       string
	Name            string
	SortOrder       int
	InputKind       string
	Mandatory       bool
	Hidden          bool
	DefaultValue    string
	TriggerCause    *string
	TriggerTargetID *string
	Options         []string
	// Joined from sections for ordering and grouping
	SectionName      string
	SectionSortOrder int
}

// Submission is one record of any kind (plan, report, note, literature
// review) owned by one student within one project.
type Submission struct {
	ID        string
	Kind      string
	ProjectID string
	OwnerID   string
	Title     string
	StageID   string
	ParentID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Joined from stages
	StageName      string
	StageSortOrder int
	// Joined from users
	OwnerName string
}

type FieldResponse struct {
	ID           string
	SubmissionID string
	FieldID      string
	Approved     bool
	// Joined from fields
	SectionID string
	// Value history, ordered oldest first
	Values []ResponseValue
	// Comment counters
	CommentCount int
	UnreadCount  int
}

// ResponseValue is one entry in a response's append-only value history.
type ResponseValue struct {
	ID              string
	FieldResponseID string
	Value           string
	RecordedAt      time.Time
}

type Comment struct {
	ID              string
	FieldResponseID string
	AuthorID        string
	AuthorName      string
	AuthorRole      string
	Body            string
	Read            bool
	CreatedAt       time.Time
}

// Notification records a stage advancement event for later display.
type Notification struct {
	ID           string
	RecipientID  string
	SubmissionID string
	Body         string
	CreatedAt    time.Time
}
