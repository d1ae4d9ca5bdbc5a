package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/appointment"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

const defaultLeaveWindow = 30 * 24 * time.Hour

const maxTTLSeconds = int(config.HoldTTLCeiling / time.Second)

type handlers struct {
	scheduler appointment.Scheduler
	reader    appointment.Reader
	schedules ScheduleService
	publisher events.Publisher
	logger    zerolog.Logger
}

// Schedule and leave

func (h *handlers) saveTemplate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}

	var days schedule.Week
	if !decodeJSON(w, r, &days) {
		return
	}

	tpl, err := h.schedules.SaveTemplate(r.Context(), doctorID, days)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *handlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}

	tpl, err := h.schedules.GetTemplate(r.Context(), doctorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *handlers) addLeave(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}

	var req AddLeaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := parseWallClock(req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_at", err.Error())
		return
	}
	end, err := parseLeaveEnd(req.EndAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_at", err.Error())
		return
	}

	leave, err := h.schedules.AddLeave(r.Context(), doctorID, start, end, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, leave)
}

func (h *handlers) listLeaves(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}

	from := schedule.DateOf(time.Now())
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseWallClock(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		from = t
	}
	to := from.Add(defaultLeaveWindow)
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseWallClock(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}
		to = t
	}

	leaves, err := h.schedules.ListLeaves(r.Context(), doctorID, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if leaves == nil {
		leaves = []schedule.Leave{}
	}
	writeJSON(w, http.StatusOK, leaves)
}

// Slots

func (h *handlers) getOrCreateSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}

	day, err := h.scheduler.GetOrCreateSlots(r.Context(), doctorID, date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, DaySlotsResponse{
		Date:     day.Date.Format(time.DateOnly),
		Bookable: day.Bookable(),
		Morning:  day.Morning,
		Evening:  day.Evening,
	})
}

func (h *handlers) getSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := urlUUID(w, r, "slotID")
	if !ok {
		return
	}

	slot, err := h.reader.GetSlot(r.Context(), slotID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *handlers) holdSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := urlUUID(w, r, "slotID")
	if !ok {
		return
	}

	var req HoldSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, ok := fieldUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}
	patientID, ok := fieldUUID(w, req.PatientID, "patient_id")
	if !ok {
		return
	}
	if req.TTLSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_ttl_seconds", "ttl_seconds must not be negative")
		return
	}
	// Checked before the Duration multiply; the service enforces the configured maximum.
	if req.TTLSeconds > maxTTLSeconds {
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", fmt.Sprintf("ttl_seconds must be at most %d", maxTTLSeconds))
		return
	}

	slot, err := h.scheduler.HoldSlot(r.Context(), slotID, doctorID, patientID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.publish(r.Context(), events.Event{
		Type:      appointment.EventSlotHeld,
		SlotID:    &slot.ID,
		DoctorID:  &doctorID,
		PatientID: &patientID,
		Data:      map[string]any{"hold_expires_at": slot.HoldExpiresAt},
	})
	writeJSON(w, http.StatusOK, slot)
}

func (h *handlers) blockSlot(w http.ResponseWriter, r *http.Request) {
	h.moveSlot(w, r, h.scheduler.BlockSlot)
}

func (h *handlers) unblockSlot(w http.ResponseWriter, r *http.Request) {
	h.moveSlot(w, r, h.scheduler.UnblockSlot)
}

func (h *handlers) moveSlot(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, slotID, doctorID uuid.UUID) (*appointment.Slot, error)) {
	slotID, ok := urlUUID(w, r, "slotID")
	if !ok {
		return
	}

	var req SlotOwnerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, ok := fieldUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}

	slot, err := move(r.Context(), slotID, doctorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// Appointments

func (h *handlers) bookSlot(w http.ResponseWriter, r *http.Request) {
	var req BookSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slotID, ok := fieldUUID(w, req.SlotID, "slot_id")
	if !ok {
		return
	}
	doctorID, ok := fieldUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}
	patientID, ok := fieldUUID(w, req.PatientID, "patient_id")
	if !ok {
		return
	}

	appt, err := h.scheduler.BookSlot(r.Context(), appointment.BookRequest{
		SlotID:        slotID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		PaymentMethod: appointment.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.publish(r.Context(), appointmentEvent(appointment.EventAppointmentBooked, appt, map[string]any{
		"payment_method": appt.PaymentMethod,
	}))
	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.reader.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) listPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := fieldUUID(w, r.URL.Query().Get("patient_id"), "patient_id")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}

	items, err := h.reader.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items, Limit: limit, Offset: offset})
}

func (h *handlers) listDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}

	items, err := h.reader.ListAppointmentsByDoctor(r.Context(), doctorID, date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items})
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actorID, ok := fieldUUID(w, req.ActorID, "actor_id")
	if !ok {
		return
	}

	appt, err := h.scheduler.CancelAppointment(r.Context(), id, actorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.publish(r.Context(), appointmentEvent(appointment.EventAppointmentCancelled, appt, map[string]any{
		"actor_id": actorID.String(),
	}))
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, ok := fieldUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}

	appt, err := h.scheduler.UpdateStatus(r.Context(), id, doctorID, appointment.AppointmentStatus(strings.ToUpper(req.Status)))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.publish(r.Context(), appointmentEvent(appointment.EventStatusChanged, appt, map[string]any{
		"status": appt.Status,
	}))
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, ok := fieldUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}

	appt, err := h.scheduler.UpdatePayment(r.Context(), id, doctorID,
		appointment.PaymentMethod(strings.ToUpper(req.PaymentMethod)), req.TransactionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// helpers

func queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	date, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func appointmentEvent(eventType string, appt *appointment.Appointment, data map[string]any) events.Event {
	return events.Event{
		Type:          eventType,
		AppointmentID: &appt.ID,
		SlotID:        &appt.SlotID,
		DoctorID:      &appt.DoctorID,
		PatientID:     &appt.PatientID,
		Data:          data,
		OccurredAt:    time.Now().UTC(),
	}
}

// publish forwards an event to notification consumers. The booking already
// committed, so a failure is only logged.
func (h *handlers) publish(ctx context.Context, ev events.Event) {
	if err := h.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		h.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("failed to publish event")
	}
}
