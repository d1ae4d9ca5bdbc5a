package appointment

import (
	"errors"

	"github.com/hackgods/clinic-slot-scheduling/internal/apperr"
)

var (
	ErrSlotNotFound            = apperr.New(apperr.ErrNotFound, "slot not found")
	ErrAppointmentNotFound     = apperr.New(apperr.ErrNotFound, "appointment not found")
	ErrSlotUnavailable         = apperr.New(apperr.ErrSlotUnavailable, "slot no longer available")
	ErrInvalidStatusTransition = apperr.New(apperr.ErrConflict, "invalid status transition")
	ErrInvalidPayment          = apperr.New(apperr.ErrInvalidInput, "payment method must be OFFLINE or ONLINE")
	ErrMissingTransactionID    = apperr.New(apperr.ErrInvalidInput, "online payment needs a transaction id")
	ErrInvalidStatus           = apperr.New(apperr.ErrInvalidInput, "unknown appointment status")

	// ErrDoubleBooking means a second active appointment was about to reference
	// a slot. The conditional claim should make this unreachable.
	ErrDoubleBooking = apperr.New(apperr.ErrInvariantViolation, "slot already has an active appointment")
)

// errNotTransitioned is returned by conditional updates that matched no row.
var errNotTransitioned = errors.New("conditional update matched no rows")
