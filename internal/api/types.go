package api

import (
	"github.com/hackgods/clinic-slot-scheduling/internal/appointment"
)

type AddLeaveRequest struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Reason  string `json:"reason"`
}

type HoldSlotRequest struct {
	DoctorID   string `json:"doctor_id"`
	PatientID  string `json:"patient_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type SlotOwnerRequest struct {
	DoctorID string `json:"doctor_id"`
}

type BookSlotRequest struct {
	SlotID        string  `json:"slot_id"`
	DoctorID      string  `json:"doctor_id"`
	PatientID     string  `json:"patient_id"`
	PaymentMethod string  `json:"payment_method"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	ActorID string `json:"actor_id"`
}

type UpdateStatusRequest struct {
	DoctorID string `json:"doctor_id"`
	Status   string `json:"status"`
}

type UpdatePaymentRequest struct {
	DoctorID      string  `json:"doctor_id"`
	PaymentMethod string  `json:"payment_method"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

type DaySlotsResponse struct {
	Date     string             `json:"date"`
	Bookable int                `json:"bookable"`
	Morning  []appointment.Slot `json:"morning"`
	Evening  []appointment.Slot `json:"evening"`
}

type AppointmentListResponse struct {
	Items  []appointment.Appointment `json:"items"`
	Limit  int                       `json:"limit,omitempty"`
	Offset int                       `json:"offset,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
