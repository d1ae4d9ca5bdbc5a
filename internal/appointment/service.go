package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/apperr"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

const (
	EventSlotsGenerated       = "SLOTS_GENERATED"
	EventSlotHeld             = "SLOT_HELD"
	EventSlotBlocked          = "SLOT_BLOCKED"
	EventSlotUnblocked        = "SLOT_UNBLOCKED"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventStatusChanged        = "APPOINTMENT_STATUS_CHANGED"
	EventPaymentUpdated       = "APPOINTMENT_PAYMENT_UPDATED"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AvailabilitySource is the read side of the template store and leave ledger.
// *schedule.PgRepository satisfies it.
type AvailabilitySource interface {
	DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error)
	GetTemplate(ctx context.Context, doctorID uuid.UUID) (*schedule.WeeklyTemplate, error)
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Leave, error)
}

// Scheduler is the only capability allowed to change slot or appointment state.
type Scheduler interface {
	GetOrCreateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DaySlots, error)
	HoldSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, ttl time.Duration) (*Slot, error)
	BookSlot(ctx context.Context, req BookRequest) (*Appointment, error)
	CancelAppointment(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id, doctorID uuid.UUID, to AppointmentStatus) (*Appointment, error)
	UpdatePayment(ctx context.Context, id, doctorID uuid.UUID, method PaymentMethod, transactionID *string) (*Appointment, error)
	BlockSlot(ctx context.Context, slotID, doctorID uuid.UUID) (*Slot, error)
	UnblockSlot(ctx context.Context, slotID, doctorID uuid.UUID) (*Slot, error)
	ReleaseExpiredHolds(ctx context.Context) (int64, error)
}

// Reader exposes slots and appointments without write access.
type Reader interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
}

type Service struct {
	repo   Repository
	avail  AvailabilitySource
	cfg    config.Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, avail AvailabilitySource, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		avail:  avail,
		cfg:    cfg,
		logger: logger.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

// GetOrCreateSlots returns the doctor's slots for date, generating and storing
// them on the first request for that date. Later calls return the stored rows
// unchanged, even if the template or leaves changed since.
func (s *Service) GetOrCreateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DaySlots, error) {
	date = schedule.DateOf(date)
	now := s.now()

	existing, err := s.repo.ListSlots(ctx, doctorID, date)
	if err != nil {
		return nil, storeErr("list slots", err)
	}
	if len(existing) > 0 {
		return s.daySlots(date, existing, now), nil
	}

	ok, err := s.avail.DoctorExists(ctx, doctorID)
	if err != nil {
		return nil, storeErr("load doctor", err)
	}
	if !ok {
		return nil, schedule.ErrDoctorNotFound
	}

	tpl, err := s.avail.GetTemplate(ctx, doctorID)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return s.daySlots(date, nil, now), nil
		}
		if errors.Is(err, schedule.ErrMalformedTemplate) {
			s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("cannot generate slots from malformed template")
		}
		return nil, storeErr("load template", err)
	}

	day := tpl.Day(date.Weekday())
	if !day.Active() {
		return s.daySlots(date, nil, now), nil
	}

	leaves, err := s.avail.ListLeaves(ctx, doctorID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, storeErr("load leaves", err)
	}

	planned := PlanSlots(doctorID, date, day, leaves)
	if len(planned) == 0 {
		return s.daySlots(date, nil, now), nil
	}

	var inserted int
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.InsertSlots(ctx, planned)
		inserted = n
		return err
	})
	if err != nil {
		return nil, storeErr("insert slots", err)
	}

	// A concurrent first request may have won the insert, so always return
	// what is stored rather than what was planned.
	stored, err := s.repo.ListSlots(ctx, doctorID, date)
	if err != nil {
		return nil, storeErr("list slots", err)
	}

	if inserted > 0 {
		s.logger.Info().
			Str("doctor_id", doctorID.String()).
			Str("date", date.Format(time.DateOnly)).
			Int("slots", inserted).
			Int("on_leave", len(planned)-countStatus(planned, SlotAvailable)).
			Msg("slots generated")
		s.logEvent(ctx, nil, nil, EventSlotsGenerated, map[string]any{
			"doctor_id": doctorID.String(),
			"date":      date.Format(time.DateOnly),
			"slots":     inserted,
		})
	}

	return s.daySlots(date, stored, now), nil
}

// HoldSlot reserves a slot for patientID for ttl, or the configured hold TTL
// when ttl is zero. The same patient may extend an existing hold, but never
// past the configured maximum counted from when the hold was first taken.
func (s *Service) HoldSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, ttl time.Duration) (*Slot, error) {
	maxHold := s.maxHold()
	if ttl < 0 {
		return nil, fmt.Errorf("hold ttl must not be negative: %w", apperr.ErrInvalidInput)
	}
	if ttl > maxHold {
		return nil, fmt.Errorf("hold ttl %s exceeds the %s maximum: %w", ttl, maxHold, apperr.ErrInvalidInput)
	}
	if ttl == 0 {
		ttl = s.cfg.HoldTTL
	}

	now := s.now()
	held, err := s.repo.HoldSlot(ctx, slotID, doctorID, patientID, now, ttl, maxHold)
	if errors.Is(err, errNotTransitioned) {
		return nil, s.claimFailure(ctx, slotID, doctorID)
	}
	if err != nil {
		return nil, storeErr("hold slot", err)
	}

	s.logEvent(ctx, nil, &held.ID, EventSlotHeld, map[string]any{
		"patient_id": patientID.String(),
		"expires_at": held.HoldExpiresAt,
	})
	return held, nil
}

func (s *Service) maxHold() time.Duration {
	if s.cfg.MaxHoldTTL > 0 {
		return s.cfg.MaxHoldTTL
	}
	return s.cfg.HoldTTL
}

// BookSlot claims the slot and creates a PENDING appointment in one
// transaction. The conditional claim decides the winner among concurrent
// callers; losers get ErrSlotUnavailable.
func (s *Service) BookSlot(ctx context.Context, req BookRequest) (*Appointment, error) {
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPayment
	}

	now := s.now()
	var created *Appointment

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.ClaimSlot(ctx, req.SlotID, req.DoctorID, req.PatientID, now)
		if errors.Is(err, errNotTransitioned) {
			return s.claimFailure(ctx, req.SlotID, req.DoctorID)
		}
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}

		appt := &Appointment{
			ID:            uuid.New(),
			DoctorID:      req.DoctorID,
			PatientID:     req.PatientID,
			SlotID:        req.SlotID,
			Status:        StatusPending,
			PaymentMethod: req.PaymentMethod,
			TransactionID: trimmed(req.TransactionID),
			Notes:         trimmed(req.Notes),
			BookedAt:      now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvariantViolation) {
			s.logger.Error().
				Err(err).
				Str("slot_id", req.SlotID.String()).
				Str("patient_id", req.PatientID.String()).
				Msg("INVARIANT VIOLATION: claimed slot already had an active appointment")
		}
		return nil, storeErr("book slot", err)
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_id", created.SlotID.String()).
		Str("patient_id", created.PatientID.String()).
		Msg("slot booked")
	s.logEvent(ctx, &created.ID, &created.SlotID, EventAppointmentBooked, map[string]any{
		"doctor_id":      created.DoctorID.String(),
		"patient_id":     created.PatientID.String(),
		"payment_method": created.PaymentMethod,
	})

	return created, nil
}

// CancelAppointment cancels the appointment and hands its slot back in the
// same transaction. Cancelling twice succeeds without further effects.
func (s *Service) CancelAppointment(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	now := s.now()
	var (
		result   *Appointment
		changed  bool
		released bool
	)

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actorID != appt.PatientID && actorID != appt.DoctorID {
			return ErrAppointmentNotFound
		}
		if appt.Status == StatusCancelled {
			result = appt
			return nil
		}
		if !CanTransition(appt.Status, StatusCancelled) {
			return fmt.Errorf("%s -> %s: %w", appt.Status, StatusCancelled, ErrInvalidStatusTransition)
		}

		updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCancelled, &actorID, now)
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}

		released, err = s.releaseSlot(ctx, updated.SlotID)
		if err != nil {
			return err
		}

		result = updated
		changed = true
		return nil
	})
	if err != nil {
		return nil, storeErr("cancel appointment", err)
	}

	if changed {
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("actor_id", actorID.String()).
			Bool("slot_released", released).
			Msg("appointment cancelled")
		s.logEvent(ctx, &result.ID, &result.SlotID, EventAppointmentCancelled, map[string]any{
			"actor_id":      actorID.String(),
			"slot_released": released,
		})
	}

	return result, nil
}

// UpdateStatus applies a doctor's administrative transition. Cancellation goes
// through CancelAppointment; RESCHEDULED also frees the old slot.
func (s *Service) UpdateStatus(ctx context.Context, id, doctorID uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	if to == StatusCancelled {
		appt, err := s.repo.GetAppointment(ctx, id)
		if err != nil {
			return nil, storeErr("load appointment", err)
		}
		if appt.DoctorID != doctorID {
			return nil, ErrAppointmentNotFound
		}
		return s.CancelAppointment(ctx, id, doctorID)
	}

	now := s.now()
	var (
		result *Appointment
		from   AppointmentStatus
	)

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.DoctorID != doctorID {
			return ErrAppointmentNotFound
		}
		if appt.Status == to {
			result = appt
			return nil
		}
		if !CanTransition(appt.Status, to) {
			return fmt.Errorf("%s -> %s: %w", appt.Status, to, ErrInvalidStatusTransition)
		}

		updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to, nil, now)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if releasesSlot(to) {
			if _, err := s.releaseSlot(ctx, updated.SlotID); err != nil {
				return err
			}
		}

		from = appt.Status
		result = updated
		return nil
	})
	if err != nil {
		return nil, storeErr("update status", err)
	}

	if from != "" {
		s.logEvent(ctx, &result.ID, &result.SlotID, EventStatusChanged, map[string]any{
			"from": from,
			"to":   to,
		})
	}
	return result, nil
}

// UpdatePayment records the payment fields supplied by the payment flow verbatim.
func (s *Service) UpdatePayment(ctx context.Context, id, doctorID uuid.UUID, method PaymentMethod, transactionID *string) (*Appointment, error) {
	if !method.Valid() {
		return nil, ErrInvalidPayment
	}
	transactionID = trimmed(transactionID)
	if method == PaymentOnline && transactionID == nil {
		return nil, ErrMissingTransactionID
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, storeErr("load appointment", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}

	updated, err := s.repo.UpdatePayment(ctx, id, method, transactionID)
	if err != nil {
		return nil, storeErr("update payment", err)
	}

	s.logEvent(ctx, &updated.ID, &updated.SlotID, EventPaymentUpdated, map[string]any{
		"payment_method": method,
	})
	return updated, nil
}

// BlockSlot takes an AVAILABLE slot off the market. Cancelling an appointment
// never turns a blocked slot back into an available one.
func (s *Service) BlockSlot(ctx context.Context, slotID, doctorID uuid.UUID) (*Slot, error) {
	return s.moveSlot(ctx, slotID, doctorID, SlotAvailable, SlotUnavailable, EventSlotBlocked)
}

func (s *Service) UnblockSlot(ctx context.Context, slotID, doctorID uuid.UUID) (*Slot, error) {
	return s.moveSlot(ctx, slotID, doctorID, SlotUnavailable, SlotAvailable, EventSlotUnblocked)
}

func (s *Service) moveSlot(ctx context.Context, slotID, doctorID uuid.UUID, from, to SlotStatus, event string) (*Slot, error) {
	current, err := s.ownedSlot(ctx, slotID, doctorID)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	moved, err := s.repo.UpdateSlotStatus(ctx, slotID, from, to)
	if errors.Is(err, errNotTransitioned) {
		return nil, fmt.Errorf("slot is %s: %w", current.Status, ErrSlotUnavailable)
	}
	if err != nil {
		return nil, storeErr("update slot", err)
	}

	s.logEvent(ctx, nil, &moved.ID, event, map[string]any{"doctor_id": doctorID.String()})
	return moved, nil
}

// ReleaseExpiredHolds persists the lapse of every hold that expired by now.
func (s *Service) ReleaseExpiredHolds(ctx context.Context) (int64, error) {
	n, err := s.repo.ReleaseExpiredHolds(ctx, s.now())
	if err != nil {
		return 0, storeErr("release expired holds", err)
	}
	if n > 0 {
		s.logger.Info().Int64("slots", n).Msg("expired holds released")
	}
	return n, nil
}

// Reader

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, storeErr("get slot", err)
	}
	settled := slot.settle(s.now())
	return &settled, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, storeErr("get appointment", err)
	}
	return appt, nil
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, storeErr("list appointments by patient", err)
	}
	return appointments, nil
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, schedule.DateOf(date))
	if err != nil {
		return nil, storeErr("list appointments by doctor", err)
	}
	return appointments, nil
}

// helpers

// claimFailure explains why a conditional claim matched nothing.
func (s *Service) claimFailure(ctx context.Context, slotID, doctorID uuid.UUID) error {
	current, err := s.ownedSlot(ctx, slotID, doctorID)
	if err != nil {
		return err
	}
	return fmt.Errorf("slot is %s: %w", current.Status, ErrSlotUnavailable)
}

func (s *Service) ownedSlot(ctx context.Context, slotID, doctorID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, storeErr("load slot", err)
	}
	if slot.DoctorID != doctorID {
		return nil, ErrSlotNotFound
	}
	return slot, nil
}

// releaseSlot hands a BOOKED slot back. A slot that moved on is left alone.
func (s *Service) releaseSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	_, err := s.repo.UpdateSlotStatus(ctx, slotID, SlotBooked, SlotAvailable)
	if errors.Is(err, errNotTransitioned) {
		s.logger.Warn().Str("slot_id", slotID.String()).Msg("slot no longer BOOKED, not released")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return true, nil
}

func (s *Service) daySlots(date time.Time, slots []Slot, now time.Time) *DaySlots {
	settled := make([]Slot, len(slots))
	for i, slot := range slots {
		settled[i] = slot.settle(now)
	}
	out := partition(date, settled)
	return &out
}

func (s *Service) logEvent(ctx context.Context, appointmentID, slotID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, apperr.Transient(err))
}

func countStatus(slots []Slot, status SlotStatus) int {
	n := 0
	for _, s := range slots {
		if s.Status == status {
			n++
		}
	}
	return n
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

var (
	_ Scheduler = (*Service)(nil)
	_ Reader    = (*Service)(nil)
)
