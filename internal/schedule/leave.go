package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Leave suppresses slot generation for the doctor between StartAt and EndAt.
type Leave struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (l Leave) Validate() error {
	if l.StartAt.IsZero() || l.EndAt.IsZero() {
		return ErrInvalidLeave
	}
	// An empty leave would block nothing.
	if !l.EndAt.After(l.StartAt) {
		return ErrInvalidLeave
	}
	return nil
}

// Overlaps reports whether [start, end) intersects the leave.
func (l Leave) Overlaps(start, end time.Time) bool {
	return start.Before(l.EndAt) && end.After(l.StartAt)
}
