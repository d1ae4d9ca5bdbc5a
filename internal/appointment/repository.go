package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service. Conditional
// updates return errNotTransitioned when the row was not in the expected state.
type Repository interface {
	// InTx runs fn in one transaction. Repository calls made with the ctx
	// passed to fn take part in it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Slots
	ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error)
	// InsertSlots skips slots whose (doctor, date, start) already exists and
	// returns how many rows were written.
	InsertSlots(ctx context.Context, slots []Slot) (int, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ClaimSlot moves a slot claimable by patientID to BOOKED.
	ClaimSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time) (*Slot, error)
	// HoldSlot moves a slot claimable by patientID to HELD for ttl from now.
	// Renewing a live hold keeps its held_since, and expiry never passes
	// held_since+maxHold.
	HoldSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time, ttl, maxHold time.Duration) (*Slot, error)
	UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, from, to SlotStatus) (*Slot, error)
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error)

	// Appointments
	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate locks the row until the surrounding transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, actorID *uuid.UUID, at time.Time) (*Appointment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, method PaymentMethod, transactionID *string) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
