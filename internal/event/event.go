package event

import (
	"time"

	"github.com/bamsammich/courier/internal/stats"
)

// Type identifies the kind of event.
type Type int

const (
	// Batch lifecycle.
	Begin Type = iota + 1
	Progress
	Success
	Error
	Cancelled

	// One per completed filesystem mutation.
	Copied
	Moved
	Deleted

	// Soft-delete jobs.
	DeleteScheduled
	DeleteCancelled
	DeleteSucceeded
)

var typeNames = [...]string{
	Begin:           "Begin",
	Progress:        "Progress",
	Success:         "Success",
	Error:           "Error",
	Cancelled:       "Cancelled",
	Copied:          "Copied",
	Moved:           "Moved",
	Deleted:         "Deleted",
	DeleteScheduled: "DeleteScheduled",
	DeleteCancelled: "DeleteCancelled",
	DeleteSucceeded: "DeleteSucceeded",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Lifecycle reports whether t is a batch lifecycle event.
func (t Type) Lifecycle() bool { return t >= Begin && t <= Cancelled }

// Terminal reports whether t ends a batch.
func (t Type) Terminal() bool { return t == Success || t == Error || t == Cancelled }

// Event is a single notification from the transfer manager.
type Event struct {
	Timestamp time.Time
	Error     error
	Path      string // affected entry (Copied, Moved, Deleted), as volume:path
	Source    string // original entry for Copied and Moved
	Paths     []string
	Status    stats.Status // lifecycle events only
	Type      Type
	TaskID    string
	JobID     int64
	Count     int // entries removed (DeleteSucceeded)
}
