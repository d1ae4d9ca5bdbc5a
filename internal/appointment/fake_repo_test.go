package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

// memRepo is an in-memory Repository. Transactions are serialised and rolled
// back from a snapshot, and conditional updates follow the same predicates as
// the SQL in PgRepository.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	slots  map[uuid.UUID]Slot
	appts  map[uuid.UUID]Appointment
	events []EventLog

	failListSlots error
}

type memTxKey struct{}

func newMemRepo() *memRepo {
	return &memRepo{
		slots: make(map[uuid.UUID]Slot),
		appts: make(map[uuid.UUID]Appointment),
	}
}

func inMemTx(ctx context.Context) bool {
	return ctx.Value(memTxKey{}) != nil
}

func (r *memRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	slots := make(map[uuid.UUID]Slot, len(r.slots))
	for k, v := range r.slots {
		slots[k] = v
	}
	appts := make(map[uuid.UUID]Appointment, len(r.appts))
	for k, v := range r.appts {
		appts[k] = v
	}
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.slots = slots
		r.appts = appts
		r.mu.Unlock()
		return err
	}
	return nil
}

// write runs fn under the data lock, and under the transaction lock too when
// called outside InTx so a rollback cannot clobber it.
func (r *memRepo) write(ctx context.Context, fn func() error) error {
	if !inMemTx(ctx) {
		r.txMu.Lock()
		defer r.txMu.Unlock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func (r *memRepo) ListSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failListSlots != nil {
		return nil, r.failListSlots
	}

	var out []Slot
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *memRepo) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	inserted := 0
	err := r.write(ctx, func() error {
		for _, s := range slots {
			duplicate := false
			for _, existing := range r.slots {
				if existing.DoctorID == s.DoctorID && existing.Date.Equal(s.Date) && existing.StartTime.Equal(s.StartTime) {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			s.CreatedAt = time.Now()
			s.UpdatedAt = s.CreatedAt
			r.slots[s.ID] = s
			inserted++
		}
		return nil
	})
	return inserted, err
}

func (r *memRepo) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *memRepo) ClaimSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time) (*Slot, error) {
	var out *Slot
	err := r.write(ctx, func() error {
		s, ok := r.slots[slotID]
		if !ok || s.DoctorID != doctorID || !s.Claimable(patientID, now) {
			return errNotTransitioned
		}
		s.Status = SlotBooked
		s.HeldBy = nil
		s.HeldSince = nil
		s.HoldExpiresAt = nil
		s.UpdatedAt = now
		r.slots[slotID] = s
		out = &s
		return nil
	})
	return out, err
}

func (r *memRepo) HoldSlot(ctx context.Context, slotID, doctorID, patientID uuid.UUID, now time.Time, ttl, maxHold time.Duration) (*Slot, error) {
	var out *Slot
	err := r.write(ctx, func() error {
		s, ok := r.slots[slotID]
		if !ok || s.DoctorID != doctorID || !s.Claimable(patientID, now) {
			return errNotTransitioned
		}
		holder := patientID
		since, expiry := s.holdWindow(patientID, now, ttl, maxHold)
		s.Status = SlotHeld
		s.HeldBy = &holder
		s.HeldSince = &since
		s.HoldExpiresAt = &expiry
		s.UpdatedAt = now
		r.slots[slotID] = s
		out = &s
		return nil
	})
	return out, err
}

func (r *memRepo) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, from, to SlotStatus) (*Slot, error) {
	var out *Slot
	err := r.write(ctx, func() error {
		s, ok := r.slots[slotID]
		if !ok || s.Status != from {
			return errNotTransitioned
		}
		s.Status = to
		s.HeldBy = nil
		s.HeldSince = nil
		s.HoldExpiresAt = nil
		r.slots[slotID] = s
		out = &s
		return nil
	})
	return out, err
}

func (r *memRepo) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.write(ctx, func() error {
		for id, s := range r.slots {
			if s.holdExpired(now) {
				r.slots[id] = s.settle(now)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memRepo) InsertAppointment(ctx context.Context, a *Appointment) error {
	return r.write(ctx, func() error {
		for _, existing := range r.appts {
			if existing.SlotID == a.SlotID && !releasesSlot(existing.Status) {
				return ErrDoubleBooking
			}
		}
		r.appts[a.ID] = *a
		return nil
	})
}

func (r *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetAppointment(ctx, id)
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, actorID *uuid.UUID, at time.Time) (*Appointment, error) {
	var out *Appointment
	err := r.write(ctx, func() error {
		a, ok := r.appts[id]
		if !ok || a.Status != from {
			return errNotTransitioned
		}
		a.Status = to
		a.UpdatedAt = at
		if to == StatusCancelled {
			when := at
			a.CancelledAt = &when
			a.CancelledBy = actorID
		}
		r.appts[id] = a
		out = &a
		return nil
	})
	return out, err
}

func (r *memRepo) UpdatePayment(ctx context.Context, id uuid.UUID, method PaymentMethod, transactionID *string) (*Appointment, error) {
	var out *Appointment
	err := r.write(ctx, func() error {
		a, ok := r.appts[id]
		if !ok {
			return ErrAppointmentNotFound
		}
		a.PaymentMethod = method
		a.TransactionID = transactionID
		r.appts[id] = a
		out = &a
		return nil
	})
	return out, err
}

func (r *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookedAt.After(all[j].BookedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		s, ok := r.slots[a.SlotID]
		if a.DoctorID == doctorID && ok && s.Date.Equal(date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.slots[out[i].SlotID].StartTime.Before(r.slots[out[j].SlotID].StartTime)
	})
	return out, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	return r.write(ctx, func() error {
		ev.ID = int64(len(r.events) + 1)
		r.events = append(r.events, ev)
		return nil
	})
}

// test helpers

func (r *memRepo) slot(id uuid.UUID) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[id]
}

func (r *memRepo) setSlotStatus(id uuid.UUID, status SlotStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[id]
	s.Status = status
	r.slots[id] = s
}

func (r *memRepo) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *memRepo) appointmentsForSlot(slotID uuid.UUID) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.SlotID == slotID {
			out = append(out, a)
		}
	}
	return out
}

func (r *memRepo) eventCount(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

// memAvail is an in-memory AvailabilitySource.
type memAvail struct {
	mu        sync.Mutex
	doctors   map[uuid.UUID]bool
	templates map[uuid.UUID]*schedule.WeeklyTemplate
	leaves    []schedule.Leave
	malformed map[uuid.UUID]bool
}

func newMemAvail() *memAvail {
	return &memAvail{
		doctors:   make(map[uuid.UUID]bool),
		templates: make(map[uuid.UUID]*schedule.WeeklyTemplate),
		malformed: make(map[uuid.UUID]bool),
	}
}

func (a *memAvail) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doctors[id], nil
}

func (a *memAvail) GetTemplate(_ context.Context, id uuid.UUID) (*schedule.WeeklyTemplate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.malformed[id] {
		return nil, schedule.ErrMalformedTemplate
	}
	tpl, ok := a.templates[id]
	if !ok {
		return nil, schedule.ErrTemplateNotFound
	}
	return tpl, nil
}

func (a *memAvail) ListLeaves(_ context.Context, id uuid.UUID, from, to time.Time) ([]schedule.Leave, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []schedule.Leave
	for _, l := range a.leaves {
		if l.DoctorID == id && l.Overlaps(from, to) {
			out = append(out, l)
		}
	}
	return out, nil
}

var errBoom = errors.New("connection reset by peer")
