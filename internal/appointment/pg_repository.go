package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

const activeSlotConstraint = "appointments_active_slot_key"

const slotColumns = `id, doctor_id, slot_date, start_time, end_time, status, held_by, held_since, hold_expires_at, created_at, updated_at`

const appointmentColumns = `id, doctor_id, patient_id, slot_id, status, payment_method, transaction_id, notes,
	booked_at, updated_at, cancelled_at, cancelled_by`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.HeldBy,
		&s.HeldSince,
		&s.HoldExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotID,
		&a.Status,
		&a.PaymentMethod,
		&a.TransactionID,
		&a.Notes,
		&a.BookedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
		&a.CancelledBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// conditional turns "no row matched" from a guarded UPDATE into errNotTransitioned.
func conditional[T any](v *T, err error, missing error) (*T, error) {
	if errors.Is(err, missing) {
		return nil, errNotTransitioned
	}
	return v, err
}

// Slots

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND slot_date = $2
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO slots (id, doctor_id, slot_date, start_time, end_time, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT ON CONSTRAINT slots_doctor_date_start_key DO NOTHING
		`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Status)
	}

	br := r.conn(ctx).SendBatch(ctx, batch)

	inserted := 0
	for range slots {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert slot: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := br.Close(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ClaimSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time) (*Slot, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE slots
		SET status = 'BOOKED',
		    held_by = NULL,
		    held_since = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND doctor_id = $2
		  AND (status = 'AVAILABLE'
		       OR (status = 'HELD' AND (held_by = $3 OR hold_expires_at <= $4)))
		RETURNING `+slotColumns,
		slotID, doctorID, patientID, now)

	s, err := scanSlot(row)
	return conditional(s, err, ErrSlotNotFound)
}

func (r *PgRepository) HoldSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time, ttl, maxHold time.Duration) (*Slot, error) {
	// SET expressions read the pre-update row, so the CASE sees the old hold.
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE slots
		SET status = 'HELD',
		    held_by = $3,
		    held_since = CASE
		        WHEN status = 'HELD' AND held_by = $3 AND hold_expires_at > $4::timestamptz
		        THEN COALESCE(held_since, $4::timestamptz)
		        ELSE $4::timestamptz
		    END,
		    hold_expires_at = LEAST(
		        $4::timestamptz + make_interval(secs => $5::float8),
		        CASE
		            WHEN status = 'HELD' AND held_by = $3 AND hold_expires_at > $4::timestamptz
		            THEN COALESCE(held_since, $4::timestamptz)
		            ELSE $4::timestamptz
		        END + make_interval(secs => $6::float8)
		    ),
		    updated_at = now()
		WHERE id = $1
		  AND doctor_id = $2
		  AND (status = 'AVAILABLE'
		       OR (status = 'HELD' AND (held_by = $3 OR hold_expires_at <= $4::timestamptz)))
		RETURNING `+slotColumns,
		slotID, doctorID, patientID, now, ttl.Seconds(), maxHold.Seconds())

	s, err := scanSlot(row)
	return conditional(s, err, ErrSlotNotFound)
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE slots
		SET status = $3,
		    held_by = NULL,
		    held_since = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+slotColumns,
		slotID, from, to)

	s, err := scanSlot(row)
	return conditional(s, err, ErrSlotNotFound)
}

func (r *PgRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE slots
		SET status = 'AVAILABLE',
		    held_by = NULL,
		    held_since = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE status = 'HELD'
		  AND hold_expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Appointments

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_id, status, payment_method,
		                          transaction_id, notes, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.SlotID, a.Status, a.PaymentMethod,
		a.TransactionID, a.Notes, a.BookedAt)

	created, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return fmt.Errorf("slot %s: %w", a.SlotID, ErrDoubleBooking)
		}
		return err
	}

	*a = *created
	return nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, actorID *uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3::text,
		    updated_at = $4::timestamptz,
		    cancelled_at = CASE WHEN $3::text = 'CANCELLED' THEN $4::timestamptz ELSE cancelled_at END,
		    cancelled_by = CASE WHEN $3::text = 'CANCELLED' THEN $5::uuid ELSE cancelled_by END
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, from, to, at, actorID)

	a, err := scanAppointment(row)
	return conditional(a, err, ErrAppointmentNotFound)
}

func (r *PgRepository) UpdatePayment(ctx context.Context, id uuid.UUID, method PaymentMethod, transactionID *string) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET payment_method = $2,
		    transaction_id = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, method, transactionID)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY booked_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.slot_id, a.status, a.payment_method, a.transaction_id,
		       a.notes, a.booked_at, a.updated_at, a.cancelled_at, a.cancelled_by
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.doctor_id = $1
		  AND s.slot_date = $2
		ORDER BY s.start_time, a.booked_at
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
