package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/apperr"
)

// Window is a half-open [Start, End) wall-clock interval within one day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w Window) overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// DaySchedule holds the optional morning and evening windows of one weekday.
type DaySchedule struct {
	MorningStart *TimeOfDay `json:"morning_start"`
	MorningEnd   *TimeOfDay `json:"morning_end"`
	EveningStart *TimeOfDay `json:"evening_start"`
	EveningEnd   *TimeOfDay `json:"evening_end"`
}

// Active reports whether any time is set for the day.
func (d DaySchedule) Active() bool {
	return d.MorningStart != nil || d.MorningEnd != nil || d.EveningStart != nil || d.EveningEnd != nil
}

func (d DaySchedule) Morning() (Window, bool) {
	return window(d.MorningStart, d.MorningEnd)
}

func (d DaySchedule) Evening() (Window, bool) {
	return window(d.EveningStart, d.EveningEnd)
}

// Windows returns the fully specified windows in morning, evening order.
func (d DaySchedule) Windows() []Window {
	var out []Window
	if w, ok := d.Morning(); ok {
		out = append(out, w)
	}
	if w, ok := d.Evening(); ok {
		out = append(out, w)
	}
	return out
}

func window(start, end *TimeOfDay) (Window, bool) {
	if start == nil || end == nil {
		return Window{}, false
	}
	return Window{Start: *start, End: *end}, true
}

func (d DaySchedule) validate(day time.Weekday) error {
	name := strings.ToLower(day.String())

	check := func(label string, start, end *TimeOfDay) error {
		if (start == nil) != (end == nil) {
			return fmt.Errorf("%s %s window needs both start and end: %w", name, label, apperr.ErrInvalidTemplate)
		}
		if start == nil {
			return nil
		}
		if !start.validStart() || !end.validEnd() {
			return fmt.Errorf("%s %s window is outside the day: %w", name, label, apperr.ErrInvalidTemplate)
		}
		if *end < *start {
			return fmt.Errorf("%s %s window ends at %s before it starts at %s: %w",
				name, label, end, start, apperr.ErrInvalidTemplate)
		}
		return nil
	}

	if err := check("morning", d.MorningStart, d.MorningEnd); err != nil {
		return err
	}
	if err := check("evening", d.EveningStart, d.EveningEnd); err != nil {
		return err
	}

	m, okM := d.Morning()
	e, okE := d.Evening()
	if okM && okE && m.overlaps(e) {
		return fmt.Errorf("%s morning %s-%s overlaps evening %s-%s: %w",
			name, m.Start, m.End, e.Start, e.End, apperr.ErrInvalidTemplate)
	}
	return nil
}

// Week is indexed by time.Weekday and serialises as an object keyed by
// lower-case weekday name.
type Week [7]DaySchedule

func (w Week) Validate() error {
	for i, d := range w {
		if err := d.validate(time.Weekday(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w Week) MarshalJSON() ([]byte, error) {
	out := make(map[string]DaySchedule, 7)
	for i, d := range w {
		if d.Active() {
			out[strings.ToLower(time.Weekday(i).String())] = d
		}
	}
	return json.Marshal(out)
}

func (w *Week) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var week Week
	for key, msg := range raw {
		day, ok := weekdayByName[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("unknown weekday %q", key)
		}
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&week[day]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	*w = week
	return nil
}

var weekdayByName = func() map[string]time.Weekday {
	m := make(map[string]time.Weekday, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		m[strings.ToLower(d.String())] = d
	}
	return m
}()

// WeeklyTemplate is a doctor's recurring availability.
type WeeklyTemplate struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Days      Week      `json:"days"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t WeeklyTemplate) Day(d time.Weekday) DaySchedule {
	return t.Days[d]
}
