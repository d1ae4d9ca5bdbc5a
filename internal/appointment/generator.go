package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

// PlanSlots lays out the slots of one date from the day's template windows.
// Each window is walked in SlotDuration steps and a trailing partial step is
// dropped. Slots intersecting a leave are planned as UNAVAILABLE so the date
// still counts as generated.
func PlanSlots(doctorID uuid.UUID, date time.Time, day schedule.DaySchedule, leaves []schedule.Leave) []Slot {
	date = schedule.DateOf(date)

	var out []Slot
	for _, w := range day.Windows() {
		end := w.End.On(date)
		for cur := w.Start.On(date); !cur.Add(SlotDuration).After(end); cur = cur.Add(SlotDuration) {
			s := Slot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      date,
				StartTime: cur,
				EndTime:   cur.Add(SlotDuration),
				Status:    SlotAvailable,
			}
			if onLeave(leaves, s.StartTime, s.EndTime) {
				s.Status = SlotUnavailable
			}
			out = append(out, s)
		}
	}
	return out
}

func onLeave(leaves []schedule.Leave, start, end time.Time) bool {
	for _, l := range leaves {
		if l.Overlaps(start, end) {
			return true
		}
	}
	return false
}
