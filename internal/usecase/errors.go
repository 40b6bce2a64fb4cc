package usecase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPrecondition matches every *PreconditionError.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound is returned for unknown businesses or closed pipelines.
	ErrNotFound = errors.New("not found")
	// ErrStaleResponse is returned when a generation result arrives for a
	// pipeline that was closed or reopened in the meantime. The result is
	// discarded.
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrBusy is returned while another generation step runs for the same
	// pipeline.
	ErrBusy = errors.New("another step is in progress")
)

// PreconditionError rejects an action whose required inputs are missing. It
// is raised before any network call.
type PreconditionError struct {
	Action  string
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s: missing %s", e.Action, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrPrecondition) hold.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// GenerationError reports a failed generation step.
type GenerationError struct {
	Step string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// precondition collects missing inputs for action and returns a
// *PreconditionError when any check failed.
func precondition(action string, checks ...check) error {
	var missing []string
	for _, c := range checks {
		if !c.ok {
			missing = append(missing, c.what)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &PreconditionError{Action: action, Missing: missing}
}

type check struct {
	ok   bool
	what string
}

func need(ok bool, what string) check {
	return check{ok: ok, what: what}
}
