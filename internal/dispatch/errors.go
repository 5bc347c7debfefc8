package dispatch

import (
	"errors"
	"fmt"

	"github.com/fieldworks/dispatchboard/internal/models"
)

var (
	// ErrNoSlot is returned when the forward slot search exhausts the
	// working day. Callers must surface it as a hard failure instead of
	// letting the assignment overlap.
	ErrNoSlot = errors.New("no available slot within working hours")

	// ErrDurationTooShort guards the minimum dispatch length. Checked
	// before any remote call is issued.
	ErrDurationTooShort = fmt.Errorf("dispatch duration below the %d-minute floor", models.MinDispatchDurationMinutes)
)

// InFlightError signals that another mutation for the same job or
// installation group is still outstanding. Not retryable until the
// original call completes.
type InFlightError struct {
	Key string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("%s is already being processed", e.Key)
}

// StateConflictError signals a delete attempted on a dispatch whose
// status forbids it. The current status is named so the caller can
// present it.
type StateConflictError struct {
	DispatchID string
	Status     models.DispatchStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("dispatch %s cannot be deleted while %s; change its status first", e.DispatchID, e.Status)
}
