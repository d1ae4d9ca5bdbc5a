package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores templates and leaves. The booking engine only reads it.
type Repository interface {
	DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error)

	GetTemplate(ctx context.Context, doctorID uuid.UUID) (*WeeklyTemplate, error)
	UpsertTemplate(ctx context.Context, tpl *WeeklyTemplate) error

	InsertLeave(ctx context.Context, l *Leave) error
	// ListLeaves returns leaves intersecting [from, to).
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Leave, error)
}
