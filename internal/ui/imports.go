package ui

import "github.com/bamsammich/courier/internal/event"

// Event is the engine event consumed by presenters.
type Event = event.Event

// Re-export event types for convenience.
const (
	Begin           = event.Begin
	Progress        = event.Progress
	Success         = event.Success
	Error           = event.Error
	Cancelled       = event.Cancelled
	Copied          = event.Copied
	Moved           = event.Moved
	Deleted         = event.Deleted
	DeleteScheduled = event.DeleteScheduled
	DeleteCancelled = event.DeleteCancelled
	DeleteSucceeded = event.DeleteSucceeded
)
