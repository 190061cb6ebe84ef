package bean

import (
	"strings"
	"time"
)

// Status is the workflow state of a bean.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusScrapped   Status = "scrapped"
	StatusDraft      Status = "draft"
)

// Type is the kind of work a bean tracks.
type Type string

const (
	TypeMilestone Type = "milestone"
	TypeEpic      Type = "epic"
	TypeFeature   Type = "feature"
	TypeBug       Type = "bug"
	TypeTask      Type = "task"
)

// Priority is optional; the empty value orders as PriorityNormal.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
	PriorityDeferred Priority = "deferred"
)

// Bean is a read-only snapshot of one issue as reported by the beans CLI.
type Bean struct {
	ID        string    `json:"id"`
	Code      string    `json:"code,omitempty"`
	Slug      string    `json:"slug,omitempty"`
	Path      string    `json:"path,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Status    Status    `json:"status"`
	Type      Type      `json:"type"`
	Priority  Priority  `json:"priority,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Parent    string    `json:"parent,omitempty"`
	Blocking  []string  `json:"blocking,omitempty"`
	BlockedBy []string  `json:"blocked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ETag      string    `json:"etag,omitempty"`
}

// ShortCode returns the display code, falling back to the last
// dash-delimited segment of the ID.
func (b Bean) ShortCode() string {
	if b.Code != "" {
		return b.Code
	}
	if i := strings.LastIndex(b.ID, "-"); i >= 0 && i < len(b.ID)-1 {
		return b.ID[i+1:]
	}
	return b.ID
}

// EffectivePriority treats a missing priority as normal.
func (b Bean) EffectivePriority() Priority {
	if b.Priority == "" {
		return PriorityNormal
	}
	return b.Priority
}

// HasParent reports whether the bean references a parent.
func (b Bean) HasParent() bool {
	return b.Parent != ""
}

var (
	statusOrder   = []Status{StatusInProgress, StatusTodo, StatusDraft, StatusCompleted, StatusScrapped}
	priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityDeferred}
	typeOrder     = []Type{TypeMilestone, TypeEpic, TypeFeature, TypeBug, TypeTask}
)

func indexOf[T comparable](order []T, v T) int {
	for i, o := range order {
		if o == v {
			return i
		}
	}
	return len(order)
}

// StatusRank is the display position of s; unknown statuses sort last.
func StatusRank(s Status) int { return indexOf(statusOrder, s) }

// PriorityRank is the urgency position of p (critical first). Empty is normal.
func PriorityRank(p Priority) int {
	if p == "" {
		p = PriorityNormal
	}
	return indexOf(priorityOrder, p)
}

// TypeRank is the hierarchy position of t (milestone first).
func TypeRank(t Type) int { return indexOf(typeOrder, t) }

// Statuses returns all known statuses in display order.
func Statuses() []Status { return append([]Status(nil), statusOrder...) }

// Priorities returns all known priorities, most urgent first.
func Priorities() []Priority { return append([]Priority(nil), priorityOrder...) }

// Types returns all known types, outermost first.
func Types() []Type { return append([]Type(nil), typeOrder...) }

func (s Status) IsValid() bool   { return indexOf(statusOrder, s) < len(statusOrder) }
func (t Type) IsValid() bool     { return indexOf(typeOrder, t) < len(typeOrder) }
func (p Priority) IsValid() bool { return indexOf(priorityOrder, p) < len(priorityOrder) }
