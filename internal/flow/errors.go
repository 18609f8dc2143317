package flow

import "errors"

// ErrBusy rejects a second submit while an analysis is in flight; the two
// are never raced.
var ErrBusy = errors.New("an analysis is already in progress")

// ValidationError is a synchronous input failure: wrong or missing files,
// or an action attempted before its prerequisites. It blocks the action and
// performs no network calls.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// BackendError wraps an analyze call that failed over the network or with a
// non-success status. The prior result, if any, is untouched.
type BackendError struct {
	err error
}

func (e *BackendError) Error() string { return e.err.Error() }
func (e *BackendError) Unwrap() error { return e.err }

// PersistenceError wraps a failed save. Reported distinctly from analysis
// failures; the save can be retried without re-running the analysis.
type PersistenceError struct {
	err error
}

func (e *PersistenceError) Error() string { return e.err.Error() }
func (e *PersistenceError) Unwrap() error { return e.err }

// ReportError wraps a failed report generation, isolated from analyze and
// save state.
type ReportError struct {
	err error
}

func (e *ReportError) Error() string { return e.err.Error() }
func (e *ReportError) Unwrap() error { return e.err }
