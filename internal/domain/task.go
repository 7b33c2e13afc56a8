package domain

import "time"

// Operation enumerates the task kinds the pipeline knows how to execute.
type Operation string

const (
	OpOCR      Operation = "ocr"
	OpSegment  Operation = "segment"
	OpReindex  Operation = "reindex"
	OpExport   Operation = "export"
	OpImport   Operation = "import"
	OpPromote  Operation = "promote"
)

// TaskStatus is the queue's state-machine status for a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusLeased    TaskStatus = "leased"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is a unit of work persisted by the work queue.
type Task struct {
	TaskID    string
	PageID    *string
	Operation Operation
	Parameters map[string]string
	Priority  int
	Status    TaskStatus
	Attempts  int
	MaxAttempts int
	LastError *string
	LeaseExpiresAt *time.Time
	LeasedBy       *string
	BulkID         *string
	NextEligibleAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BulkStatus is the lifecycle status for a BulkOperation.
type BulkStatus string

const (
	BulkStatusRunning   BulkStatus = "running"
	BulkStatusPaused    BulkStatus = "paused"
	BulkStatusCompleted BulkStatus = "completed"
	BulkStatusCancelled BulkStatus = "cancelled"
)

// BulkCounters tallies child-task status for a bulk operation.
type BulkCounters struct {
	Total      int
	Pending    int
	InProgress int
	Succeeded  int
	Failed     int
}

// BulkOperation groups related tasks and is managed/reported as a unit.
type BulkOperation struct {
	BulkID      string
	Description string
	Operation   Operation
	Status      BulkStatus
	Counters    BulkCounters
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// IsTerminal reports whether a task status will never change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCancelled
}

// EventLink maps a Segment to at most one Event in the main store.
type EventLink struct {
	SegmentID   string
	EventID     string
	ContentHash string
	CreatedAt   time.Time
}

// Event is a historical record promoted from one or more segments,
// held in the main store (separate from the repository's own database).
type Event struct {
	EventID     string
	Title       string
	Date        time.Time
	Body        string
	SourcePage  string // page_id of the segment's parent page, descriptive only
	ImageClipPath string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
