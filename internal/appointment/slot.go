package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "AVAILABLE"
	SlotHeld        SlotStatus = "HELD"
	SlotBooked      SlotStatus = "BOOKED"
	SlotUnavailable SlotStatus = "UNAVAILABLE"
	SlotCancelled   SlotStatus = "CANCELLED"
)

// SlotDuration is the fixed length of every bookable slot.
const SlotDuration = 10 * time.Minute

// Slots starting at or after this hour belong to the evening half of the day.
const eveningStartHour = 14

// Slot is one bookable unit of a doctor's day. StartTime and EndTime are
// doctor-local wall clock carried in UTC.
type Slot struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	Date          time.Time  `json:"date"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        SlotStatus `json:"status"`
	HeldBy        *uuid.UUID `json:"held_by,omitempty"`
	HeldSince     *time.Time `json:"held_since,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (s Slot) holdExpired(now time.Time) bool {
	return s.Status == SlotHeld && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now)
}

// Claimable reports whether patientID may book or hold the slot at now. It
// mirrors the WHERE clause of the conditional updates in PgRepository.
func (s Slot) Claimable(patientID uuid.UUID, now time.Time) bool {
	switch s.Status {
	case SlotAvailable:
		return true
	case SlotHeld:
		return (s.HeldBy != nil && *s.HeldBy == patientID) || s.holdExpired(now)
	default:
		return false
	}
}

// settle reports the slot as AVAILABLE when its hold has lapsed. Reads use it
// so an abandoned hold is never shown as taken, even before the sweeper runs.
func (s Slot) settle(now time.Time) Slot {
	if s.holdExpired(now) {
		s.Status = SlotAvailable
		s.HeldBy = nil
		s.HeldSince = nil
		s.HoldExpiresAt = nil
	}
	return s
}

// holdWindow returns when patientID's hold on the slot started and when it
// expires if taken or renewed at now for ttl. A renewal of a live hold keeps
// its start, and no hold outlives start+maxHold. PgRepository.HoldSlot
// computes the same window in SQL.
func (s Slot) holdWindow(patientID uuid.UUID, now time.Time, ttl, maxHold time.Duration) (since, expiresAt time.Time) {
	since = now
	renewal := s.Status == SlotHeld && s.HeldBy != nil && *s.HeldBy == patientID && !s.holdExpired(now)
	if renewal && s.HeldSince != nil {
		since = *s.HeldSince
	}
	expiresAt = now.Add(ttl)
	if limit := since.Add(maxHold); limit.Before(expiresAt) {
		expiresAt = limit
	}
	return since, expiresAt
}

func (s Slot) IsEvening() bool {
	return s.StartTime.Hour() >= eveningStartHour
}

// DaySlots is a doctor's day split at 14:00.
type DaySlots struct {
	Date    time.Time `json:"date"`
	Morning []Slot    `json:"morning"`
	Evening []Slot    `json:"evening"`
}

// Bookable counts the slots that are currently AVAILABLE.
func (d DaySlots) Bookable() int {
	n := 0
	for _, s := range d.Morning {
		if s.Status == SlotAvailable {
			n++
		}
	}
	for _, s := range d.Evening {
		if s.Status == SlotAvailable {
			n++
		}
	}
	return n
}

func partition(date time.Time, slots []Slot) DaySlots {
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	out := DaySlots{Date: date, Morning: []Slot{}, Evening: []Slot{}}
	for _, s := range sorted {
		if s.IsEvening() {
			out.Evening = append(out.Evening, s)
		} else {
			out.Morning = append(out.Morning, s)
		}
	}
	return out
}
