package storage

import "time"

type Todo struct {
	ID        string
	Title     string
	Completed bool
	Priority  string
	CreatedAt time.Time
}

type Project struct {
	ID       string
	Title    string
	Deadline *string
	Progress int
	Status   string
}

type Event struct {
	ID    string
	Title string
	Date  string
	Color string
	Note  *string
}

type PersonalTask struct {
	ID       string
	Title    string
	Budget   *float64
	Date     *string
	Location *string
	Note     *string
}

// AgentSession is one completed chat exchange, recorded on every path
// including fallback.
type AgentSession struct {
	ID          string
	RequestID   string
	Provider    string
	UserMessage string
	Reply       string
	CreatedAt   time.Time
}

type StageEventRecord struct {
	ID        string
	RequestID string
	Stage     string
	Message   string
	MetaJSON  string
	CreatedAt time.Time
}

// ActionAudit is one append-only record per attempted action. BeforeJSON and
// AfterJSON hold the affected row serialized before and after the mutation;
// both stay empty for failed attempts past the failure point.
type ActionAudit struct {
	ID          string
	BatchID     string
	ActionID    string
	ActionType  string
	PayloadJSON string
	BeforeJSON  *string
	AfterJSON   *string
	Success     bool
	ErrMessage  *string
	CreatedAt   time.Time
}

type SnapshotTodo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

type SnapshotProject struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Deadline *string `json:"deadline"`
	Progress int     `json:"progress"`
}

type SnapshotEvent struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Date  string  `json:"date"`
	Color string  `json:"color"`
	Note  *string `json:"note"`
}

type SnapshotPersonal struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Date   *string  `json:"date"`
	Budget *float64 `json:"budget"`
}

// Snapshot is the compact workspace context fed into the system prompt and
// returned by query.snapshot.
type Snapshot struct {
	Today          string             `json:"today"`
	PendingTodos   []SnapshotTodo     `json:"pendingTodos"`
	ActiveProjects []SnapshotProject  `json:"activeProjects"`
	TodayEvents    []SnapshotEvent    `json:"todayEvents"`
	PersonalTasks  []SnapshotPersonal `json:"personalTasks"`
}
