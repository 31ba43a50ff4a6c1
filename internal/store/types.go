// Package store provides relational persistence for work-assistant
// entities. It is the system of record: writes here must succeed before the
// semantic index is touched, and a failed multi-row write aborts the whole
// transaction.
package store

import (
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput is returned when a required field is missing.
	ErrInvalidInput = errors.New("invalid input")
)

// Project statuses.
const (
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectOnHold    = "on_hold"
	ProjectArchived  = "archived"
)

// Deliverable statuses.
const (
	DeliverablePending    = "pending"
	DeliverableInProgress = "in_progress"
	DeliverableCompleted  = "completed"
)

// Deliverable priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Project tracks a work project. Name is unique.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Company     string    `json:"company,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Email is a processed email. VectorID is empty until the email has been
// indexed; an empty VectorID means "not yet indexed", never "deleted".
type Email struct {
	ID              string     `json:"id"`
	Subject         string     `json:"subject"`
	Sender          string     `json:"sender"`
	Recipients      []string   `json:"recipients,omitempty"`
	CC              []string   `json:"cc,omitempty"`
	Content         string     `json:"content"`
	Summary         string     `json:"summary,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	PeopleMentioned []string   `json:"people_mentioned,omitempty"`
	ProjectID       string     `json:"project_id,omitempty"`
	ProjectName     string     `json:"project_name,omitempty"`
	Importance      string     `json:"importance"`
	ReceivedDate    time.Time  `json:"received_date"`
	ProcessedAt     time.Time  `json:"processed_at"`
	VectorID        string     `json:"vector_id,omitempty"`
}

// StatusUpdate is a progress note attached to a project.
type StatusUpdate struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name,omitempty"`
	Content     string    `json:"content"`
	UpdateType  string    `json:"update_type"`
	Keywords    []string  `json:"keywords,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	VectorID    string    `json:"vector_id,omitempty"`
}

// Deliverable is a tracked output with an optional deadline.
type Deliverable struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	VectorID    string     `json:"vector_id,omitempty"`
}

// Person is someone mentioned in emails or assigned to work. Names are the
// dedup key; email is unique when present.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailFilter narrows ListEmails.
type EmailFilter struct {
	ProjectID  string
	Importance string
	// Limit caps the result count; zero means the default of 20.
	Limit int
}

// DeliverableFilter narrows ListDeliverables.
type DeliverableFilter struct {
	ProjectID string
	Status    string
	// DueWithinDays keeps only deliverables due between now and now+N days
	// inclusive, excluding completed items. Zero disables the window.
	DueWithinDays int
}

// DeliverableUpdate carries mutable deliverable fields; nil pointers leave
// the column unchanged.
type DeliverableUpdate struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *string
	Priority    *string
	AssignedTo  *string
}

// ProjectUpdate carries mutable project fields; nil pointers leave the
// column unchanged.
type ProjectUpdate struct {
	Name        *string
	Company     *string
	Description *string
	Status      *string
}
