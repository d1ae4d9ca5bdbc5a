package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

func day(t *testing.T, ms, me, es, ee string) schedule.DaySchedule {
	t.Helper()
	var d schedule.DaySchedule
	parse := func(s string) *schedule.TimeOfDay {
		if s == "" {
			return nil
		}
		return at(t, s)
	}
	d.MorningStart, d.MorningEnd = parse(ms), parse(me)
	d.EveningStart, d.EveningEnd = parse(es), parse(ee)
	return d
}

func TestPlanSlots_WindowBoundaries(t *testing.T) {
	tests := []struct {
		name string
		day  schedule.DaySchedule
		want int
	}{
		{"exactly one slot", day(t, "09:00", "09:10", "", ""), 1},
		{"shorter than one slot", day(t, "09:00", "09:09", "", ""), 0},
		{"zero length", day(t, "09:00", "09:00", "", ""), 0},
		{"trailing partial slot dropped", day(t, "09:00", "09:25", "", ""), 2},
		{"half-day unset", day(t, "", "", "", ""), 0},
		{"both windows", day(t, "09:00", "10:00", "17:00", "17:30"), 9},
		{"evening only", day(t, "", "", "18:00", "18:30"), 3},
		{"evening ends at midnight", day(t, "", "", "23:40", "24:00"), 2},
	}

	doctor := uuid.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanSlots(doctor, monday, tt.day, nil)
			if len(got) != tt.want {
				t.Errorf("expected %d slots, got %d", tt.want, len(got))
			}
		})
	}
}

func TestPlanSlots_Shape(t *testing.T) {
	doctor := uuid.New()
	got := PlanSlots(doctor, monday.Add(13*time.Hour), day(t, "09:00", "09:30", "", ""), nil)

	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(got))
	}

	seen := make(map[uuid.UUID]bool)
	for i, s := range got {
		wantStart := monday.Add(9*time.Hour + time.Duration(i)*SlotDuration)
		if !s.StartTime.Equal(wantStart) {
			t.Errorf("slot %d starts at %s, want %s", i, s.StartTime, wantStart)
		}
		if !s.EndTime.Equal(wantStart.Add(SlotDuration)) {
			t.Errorf("slot %d ends at %s", i, s.EndTime)
		}
		if !s.Date.Equal(monday) {
			t.Errorf("slot %d has date %s, want %s", i, s.Date, monday)
		}
		if s.DoctorID != doctor || s.Status != SlotAvailable {
			t.Errorf("slot %d: unexpected doctor or status %+v", i, s)
		}
		if seen[s.ID] {
			t.Errorf("slot %d reuses id %s", i, s.ID)
		}
		seen[s.ID] = true
	}
}

func TestPlanSlots_WindowEndingAtMidnight(t *testing.T) {
	got := PlanSlots(uuid.New(), monday, day(t, "", "", "23:30", "24:00"), nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(got))
	}

	last := got[len(got)-1]
	if !last.StartTime.Equal(monday.Add(23*time.Hour + 50*time.Minute)) {
		t.Errorf("last slot starts at %s", last.StartTime)
	}
	if !last.EndTime.Equal(monday.AddDate(0, 0, 1)) {
		t.Errorf("expected last slot to end at the next midnight, got %s", last.EndTime)
	}
	if !last.Date.Equal(monday) || !last.IsEvening() {
		t.Errorf("expected last slot to stay on %s in the evening, got %+v", monday.Format(time.DateOnly), last)
	}
}

func TestPlanSlots_Leaves(t *testing.T) {
	doctor := uuid.New()
	window := day(t, "09:00", "10:00", "", "")

	tests := []struct {
		name        string
		leave       schedule.Leave
		unavailable int
	}{
		{
			name:        "whole day",
			leave:       schedule.Leave{StartAt: monday, EndAt: monday.Add(24 * time.Hour)},
			unavailable: 6,
		},
		{
			name:        "multi-day leave starting earlier",
			leave:       schedule.Leave{StartAt: monday.AddDate(0, 0, -3), EndAt: monday.Add(9*time.Hour + 30*time.Minute)},
			unavailable: 3,
		},
		{
			name:        "ends exactly when the window starts",
			leave:       schedule.Leave{StartAt: monday, EndAt: monday.Add(9 * time.Hour)},
			unavailable: 0,
		},
		{
			name:        "instant inside a slot",
			leave:       schedule.Leave{StartAt: monday.Add(9*time.Hour + 5*time.Minute), EndAt: monday.Add(9*time.Hour + 5*time.Minute)},
			unavailable: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanSlots(doctor, monday, window, []schedule.Leave{tt.leave})
			if len(got) != 6 {
				t.Fatalf("expected leave to keep all 6 slots planned, got %d", len(got))
			}
			n := countStatus(got, SlotUnavailable)
			if n != tt.unavailable {
				t.Errorf("expected %d unavailable slots, got %d", tt.unavailable, n)
			}
		})
	}
}

func TestSlot_Claimable(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	holder, other := uuid.New(), uuid.New()
	future, past := now.Add(time.Minute), now.Add(-time.Minute)

	tests := []struct {
		name string
		slot Slot
		want bool
	}{
		{"available", Slot{Status: SlotAvailable}, true},
		{"booked", Slot{Status: SlotBooked}, false},
		{"unavailable", Slot{Status: SlotUnavailable}, false},
		{"cancelled", Slot{Status: SlotCancelled}, false},
		{"held by someone else", Slot{Status: SlotHeld, HeldBy: &holder, HoldExpiresAt: &future}, false},
		{"held by caller", Slot{Status: SlotHeld, HeldBy: &other, HoldExpiresAt: &future}, true},
		{"expired hold", Slot{Status: SlotHeld, HeldBy: &holder, HoldExpiresAt: &past}, true},
		{"hold expiring now", Slot{Status: SlotHeld, HeldBy: &holder, HoldExpiresAt: &now}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.Claimable(other, now); got != tt.want {
				t.Errorf("Claimable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusRescheduled, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusRescheduled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusNoShow, StatusConfirmed, false},
		{StatusRescheduled, StatusConfirmed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	for _, s := range []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	if StatusPending.Terminal() || StatusConfirmed.Terminal() {
		t.Error("expected PENDING and CONFIRMED to be non-terminal")
	}
}
