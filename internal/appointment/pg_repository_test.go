package appointment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/apperr"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

// These tests run against a real Postgres when TEST_POSTGRES_DSN is set.
func pgService(t *testing.T) (*Service, *pgxpool.Pool, uuid.UUID) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, 20)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	doctor := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO doctors (id, name) VALUES ($1, $2)`, doctor, "Dr. Integration"); err != nil {
		t.Fatalf("insert doctor: %v", err)
	}

	sched := schedule.NewPgRepository(pool)
	var week schedule.Week
	week[time.Monday] = schedule.DaySchedule{MorningStart: at(t, "09:00"), MorningEnd: at(t, "10:00")}
	if err := sched.UpsertTemplate(ctx, &schedule.WeeklyTemplate{DoctorID: doctor, Days: week}); err != nil {
		t.Fatalf("upsert template: %v", err)
	}

	svc := NewService(NewPgRepository(pool), sched, config.Config{HoldTTL: time.Minute}, zerolog.Nop())
	return svc, pool, doctor
}

func TestPg_ConcurrentGenerationAndBooking(t *testing.T) {
	svc, pool, doctor := pgService(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrCreateSlots(ctx, doctor, monday)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreateSlots: %v", err)
		}
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM slots WHERE doctor_id = $1`, doctor).Scan(&count); err != nil {
		t.Fatalf("count slots: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 slots, got %d", count)
	}

	day, err := svc.GetOrCreateSlots(ctx, doctor, monday)
	if err != nil {
		t.Fatalf("GetOrCreateSlots: %v", err)
	}
	slot := day.Morning[0]
	if slot.StartTime.Format("15:04") != "09:00" {
		t.Errorf("expected wall clock 09:00 to survive the round trip, got %s", slot.StartTime.Format("15:04"))
	}

	var (
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BookSlot(ctx, BookRequest{
				SlotID: slot.ID, DoctorID: doctor, PatientID: uuid.New(), PaymentMethod: PaymentOffline,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, apperr.ErrSlotUnavailable):
				losers++
			default:
				t.Errorf("unexpected booking error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || losers != callers-1 {
		t.Errorf("expected 1 winner and %d losers, got %d and %d", callers-1, winners, losers)
	}
}

func TestPg_CancelReleasesSlot(t *testing.T) {
	svc, pool, doctor := pgService(t)
	ctx := context.Background()

	day, err := svc.GetOrCreateSlots(ctx, doctor, monday)
	if err != nil {
		t.Fatalf("GetOrCreateSlots: %v", err)
	}
	slot := day.Morning[1]
	patient := uuid.New()

	appt, err := svc.BookSlot(ctx, BookRequest{SlotID: slot.ID, DoctorID: doctor, PatientID: patient, PaymentMethod: PaymentOffline})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.CancelAppointment(ctx, appt.ID, patient); err != nil {
			t.Fatalf("cancel #%d: %v", i+1, err)
		}
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM slots WHERE id = $1`, slot.ID).Scan(&status); err != nil {
		t.Fatalf("load slot: %v", err)
	}
	if status != string(SlotAvailable) {
		t.Errorf("expected slot AVAILABLE, got %s", status)
	}

	if _, err := svc.BookSlot(ctx, BookRequest{SlotID: slot.ID, DoctorID: doctor, PatientID: uuid.New(), PaymentMethod: PaymentOffline}); err != nil {
		t.Fatalf("rebook: %v", err)
	}
}

func TestPg_HoldRenewalIsCapped(t *testing.T) {
	svc, _, doctor := pgService(t)
	svc.cfg.MaxHoldTTL = 3 * time.Minute
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	clock := start
	svc.now = func() time.Time { return clock }

	day, err := svc.GetOrCreateSlots(ctx, doctor, monday)
	if err != nil {
		t.Fatalf("GetOrCreateSlots: %v", err)
	}
	slot := day.Morning[2]
	alice, bob := uuid.New(), uuid.New()

	held, err := svc.HoldSlot(ctx, slot.ID, doctor, alice, 2*time.Minute)
	if err != nil {
		t.Fatalf("HoldSlot: %v", err)
	}
	if held.HeldSince == nil || !held.HeldSince.Equal(start) || !held.HoldExpiresAt.Equal(start.Add(2*time.Minute)) {
		t.Fatalf("unexpected first hold %+v", held)
	}

	clock = start.Add(90 * time.Second)
	renewed, err := svc.HoldSlot(ctx, slot.ID, doctor, alice, 2*time.Minute)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.HeldSince.Equal(start) {
		t.Errorf("expected renewal to keep held_since %s, got %s", start, renewed.HeldSince)
	}
	if !renewed.HoldExpiresAt.Equal(start.Add(3 * time.Minute)) {
		t.Errorf("expected expiry capped at %s, got %s", start.Add(3*time.Minute), renewed.HoldExpiresAt)
	}

	if _, err := svc.HoldSlot(ctx, slot.ID, doctor, alice, 4*time.Minute); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ttl above the maximum to be rejected, got %v", err)
	}

	clock = start.Add(3 * time.Minute)
	taken, err := svc.HoldSlot(ctx, slot.ID, doctor, bob, time.Minute)
	if err != nil {
		t.Fatalf("expected bob to hold after the cap, got %v", err)
	}
	if !taken.HeldSince.Equal(clock) {
		t.Errorf("expected a fresh held_since for bob, got %s", taken.HeldSince)
	}
}
