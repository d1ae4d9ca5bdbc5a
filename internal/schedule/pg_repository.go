package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *PgRepository) DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check doctor: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) GetTemplate(ctx context.Context, doctorID uuid.UUID) (*WeeklyTemplate, error) {
	var raw []byte
	tpl := WeeklyTemplate{DoctorID: doctorID}

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT days, updated_at
		FROM schedule_templates
		WHERE doctor_id = $1
	`, doctorID).Scan(&raw, &tpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &tpl.Days); err != nil {
		return nil, fmt.Errorf("doctor %s: %w: %v", doctorID, ErrMalformedTemplate, err)
	}
	if err := tpl.Days.Validate(); err != nil {
		return nil, fmt.Errorf("doctor %s: %w: %v", doctorID, ErrMalformedTemplate, err)
	}

	return &tpl, nil
}

func (r *PgRepository) UpsertTemplate(ctx context.Context, tpl *WeeklyTemplate) error {
	days, err := json.Marshal(tpl.Days)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_templates (doctor_id, days, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (doctor_id)
		DO UPDATE SET days = EXCLUDED.days, updated_at = now()
		RETURNING updated_at
	`, tpl.DoctorID, days).Scan(&tpl.UpdatedAt)
}

func (r *PgRepository) InsertLeave(ctx context.Context, l *Leave) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_leaves (id, doctor_id, start_at, end_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, l.ID, l.DoctorID, l.StartAt, l.EndAt, l.Reason).Scan(&l.CreatedAt)
}

func (r *PgRepository) ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Leave, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, start_at, end_at, reason, created_at
		FROM doctor_leaves
		WHERE doctor_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Leave
	for rows.Next() {
		var l Leave
		if err := rows.Scan(&l.ID, &l.DoctorID, &l.StartAt, &l.EndAt, &l.Reason, &l.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
