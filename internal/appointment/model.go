package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "PENDING"
	StatusConfirmed   AppointmentStatus = "CONFIRMED"
	StatusCompleted   AppointmentStatus = "COMPLETED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusNoShow      AppointmentStatus = "NO_SHOW"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
)

type PaymentMethod string

const (
	PaymentOffline PaymentMethod = "OFFLINE"
	PaymentOnline  PaymentMethod = "ONLINE"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentOffline || m == PaymentOnline
}

type Appointment struct {
	ID            uuid.UUID         `json:"id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	SlotID        uuid.UUID         `json:"slot_id"`
	Status        AppointmentStatus `json:"status"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	TransactionID *string           `json:"transaction_id,omitempty"`
	Notes         *string           `json:"notes,omitempty"`
	BookedAt      time.Time         `json:"booked_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy   *uuid.UUID        `json:"cancelled_by,omitempty"`
}

// BookRequest carries everything the booking UI and payment flow supply for a claim.
type BookRequest struct {
	SlotID        uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	PaymentMethod PaymentMethod
	TransactionID *string
	Notes         *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
