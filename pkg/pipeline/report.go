package pipeline

import (
	"errors"
	"time"
)

var (
	// ErrOwnerNotFound marks an item whose group has no owner record.
	// Processors return it (possibly wrapped) to have the item skipped.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrNotAuthorized is returned by Run when the capability check fails.
	ErrNotAuthorized = errors.New("not authorized to run import")
)

// Outcome is the terminal state of a successfully handled item.
type Outcome int

const (
	// OutcomeSucceeded means the item was imported.
	OutcomeSucceeded Outcome = iota

	// OutcomeSkipped means the item was intentionally not imported.
	OutcomeSkipped
)

// String returns the metrics label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ItemError records why one item failed.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// Report summarizes one run. Total == Succeeded + Skipped + Failed.
type Report struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	// GroupsCreated counts group records created during the run. It is
	// independent of item success.
	GroupsCreated int `json:"groups_created"`

	// Errors holds at most Options.MaxErrors entries, in item order.
	Errors []ItemError `json:"errors,omitempty"`

	// ErrorsDropped counts failures beyond MaxErrors.
	ErrorsDropped int `json:"errors_dropped,omitempty"`

	// Cancelled is set when the run stopped on context cancellation.
	Cancelled bool `json:"cancelled,omitempty"`

	// SourceError is set when the source failed after yielding items.
	SourceError string `json:"source_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Complete reports whether the whole source was consumed.
func (r *Report) Complete() bool {
	return !r.Cancelled && r.SourceError == ""
}

func (r *Report) record(outcome Outcome) {
	r.Total++
	switch outcome {
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Succeeded++
	}
}

func (r *Report) recordFailure(item, message string, maxErrors int) {
	r.Total++
	r.Failed++
	if len(r.Errors) >= maxErrors {
		r.ErrorsDropped++
		return
	}
	r.Errors = append(r.Errors, ItemError{Item: item, Message: message})
}

// openedSourceError is implemented by source errors raised after the source
// itself was opened, such as a failed sub-folder listing or a failed later
// page. Such errors end the run with a partial report instead of failing it.
type openedSourceError interface {
	SourceOpened() bool
}

func sourceOpened(err error) bool {
	var o openedSourceError
	return errors.As(err, &o) && o.SourceOpened()
}
