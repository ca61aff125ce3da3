// Package errs holds the sentinel errors shared by the core packages.
// Callers wrap them with fmt.Errorf("pkg: op: %w", ...) and test with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound reports a missing session, job, or resolution target.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous reports a slot or id prefix that matched more than one session.
	ErrAmbiguous = errors.New("ambiguous target")
	// ErrBusy reports that a session already has a run in flight.
	ErrBusy = errors.New("session busy")
	// ErrValidation reports malformed input such as a bad cron expression or a
	// one-shot time that is not in the future.
	ErrValidation = errors.New("validation failed")
)
