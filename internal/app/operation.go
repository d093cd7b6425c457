package app

import "time"

// Operation tracks one CLI invocation. Commands that change the local cache
// mark it, and only marked operations upload a snapshot on Close.
type Operation struct {
	Name      string
	StartedAt time.Time
	Status    string // "success" or "error"
	mutated   bool
}

// NewOperation creates an operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		Name:      name,
		StartedAt: now.UTC(),
		Status:    "success",
	}
}

// ID identifies the operation in log lines.
func (op *Operation) ID() string {
	return op.StartedAt.Format("20060102T150405Z")
}

// MarkMutated records that the cache was changed.
func (op *Operation) MarkMutated() { op.mutated = true }

// Mutated reports whether the cache was changed.
func (op *Operation) Mutated() bool { return op.mutated }

// Fail marks the operation as failed.
func (op *Operation) Fail() { op.Status = "error" }
