package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Date         time.Time
	BookingRatio float64
	CancelRatio  float64
	HoldRatio    float64
	ReadRatio    float64
	DoctorLimit  int
	PatientLimit int
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type booking struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

// DataPool is the shared state workers draw from. Slots is read-only once the
// run starts; bookings grows as appointments are created.
type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Slots    []slotRef

	mu       sync.RWMutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, lo, hi, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking     OperationMetrics
	Cancel      OperationMetrics
	Hold        OperationMetrics
	DaySlots    OperationMetrics
	ListPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg, "simulate")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid simulator config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Str("date", cfg.Date.Format(time.DateOnly)).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("hold", cfg.HoldRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, baseCfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = dataPool

	// Generating the day's slots goes through the API, so the first request
	// per doctor also exercises concurrent generation.
	if err := sim.loadSlots(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load slots")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("doctors", len(dataPool.Doctors)).
		Int("slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	if err := audit(auditCtx, pgPool, logger); err != nil {
		logger.Error().Err(err).Msg("audit failed")
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, error) {
	date := time.Now().UTC().AddDate(0, 0, 1)
	if raw := os.Getenv("SIM_DATE"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return SimConfig{}, fmt.Errorf("SIM_DATE must be YYYY-MM-DD: %w", err)
		}
		date = d
	}

	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 32),
		Date:         time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		HoldRatio:    getFloat("SIM_HOLD_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.HoldRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.HoldRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients ORDER BY random() LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	doctors, err := loadIDs(ctx, pool, `
		SELECT d.id FROM doctors d
		JOIN schedule_templates t ON t.doctor_id = d.id
		ORDER BY random() LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run clinicctl seed first")
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors with a schedule loaded, run clinicctl seed first")
	}

	dataPool.Patients = patients
	dataPool.Doctors = doctors
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type slotView struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Status   string    `json:"status"`
}

type daySlots struct {
	Morning []slotView `json:"morning"`
	Evening []slotView `json:"evening"`
}

// loadSlots asks for every doctor's day several times at once and keeps the
// bookable slots.
func (s *Simulator) loadSlots(ctx context.Context) error {
	const racers = 4

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		first = make(map[uuid.UUID][]uuid.UUID)
		errs  []error
	)
	for _, doctorID := range s.pool.Doctors {
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(doctorID uuid.UUID) {
				defer wg.Done()
				day, err := s.fetchDay(ctx, doctorID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids := make([]uuid.UUID, 0, len(day.Morning)+len(day.Evening))
				for _, sl := range append(day.Morning, day.Evening...) {
					ids = append(ids, sl.ID)
					if sl.Status == "AVAILABLE" && first[doctorID] == nil {
						s.pool.Slots = append(s.pool.Slots, slotRef{ID: sl.ID, DoctorID: doctorID})
					}
				}
				if prev, ok := first[doctorID]; ok && !sameIDs(prev, ids) {
					errs = append(errs, fmt.Errorf("doctor %s: concurrent generation returned different slot sets", doctorID))
				}
				if _, ok := first[doctorID]; !ok {
					first[doctorID] = ids
				}
			}(doctorID)
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	if len(s.pool.Slots) == 0 {
		return fmt.Errorf("no bookable slots on %s", s.config.Date.Format(time.DateOnly))
	}
	return nil
}

func (s *Simulator) fetchDay(ctx context.Context, doctorID uuid.UUID) (*daySlots, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, doctorID, s.config.Date.Format(time.DateOnly))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.DaySlots.Record(time.Since(start), false, false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.DaySlots.Record(time.Since(start), false, false)
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	var day daySlots
	if err := json.NewDecoder(resp.Body).Decode(&day); err != nil {
		return nil, fmt.Errorf("decode day slots: %w", err)
	}
	s.metrics.DaySlots.Record(time.Since(start), true, false)
	return &day, nil
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	seed := time.Now().UnixNano() + int64(workerID)
	rng := rand.New(rand.NewSource(seed))
	faker := gofakeit.New(uint64(seed))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio+s.config.HoldRatio:
			s.doHold(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doReadDay(ctx, rng)
			} else {
				s.doListByPatient(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body := map[string]any{
		"slot_id":        slot.ID,
		"doctor_id":      slot.DoctorID,
		"patient_id":     patientID,
		"payment_method": "OFFLINE",
		"notes":          faker.Sentence(6),
	}
	if rng.Intn(4) == 0 {
		body["payment_method"] = "ONLINE"
		body["transaction_id"] = "txn_" + faker.LetterN(12)
	}

	start := time.Now()
	status, respBody, err := s.send(ctx, http.MethodPost, "/appointments", body)
	latency := time.Since(start)

	if err == nil && status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddBooking(booking{ID: appt.ID, PatientID: patientID})
		}
	}
	s.metrics.Booking.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel",
		map[string]any{"actor_id": b.PatientID})
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doHold(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, "/slots/"+slot.ID.String()+"/hold", map[string]any{
		"doctor_id":   slot.DoctorID,
		"patient_id":  patientID,
		"ttl_seconds": 2,
	})
	s.metrics.Hold.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadDay(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	_, _ = s.fetchDay(ctx, doctorID)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?patient_id=%s&limit=20&offset=0", patientID), nil)
	s.metrics.ListPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

// audit fails when any slot carries more than one live appointment, or when a
// booked slot has none.
func audit(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	var doubles int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT slot_id FROM appointments
			WHERE status NOT IN ('CANCELLED', 'RESCHEDULED')
			GROUP BY slot_id
			HAVING count(*) > 1
		) d
	`).Scan(&doubles)
	if err != nil {
		return fmt.Errorf("count double bookings: %w", err)
	}

	var orphans int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM slots s
		WHERE s.status = 'BOOKED'
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status NOT IN ('CANCELLED', 'RESCHEDULED')
		  )
	`).Scan(&orphans)
	if err != nil {
		return fmt.Errorf("count orphaned bookings: %w", err)
	}

	logger.Info().Int("double_booked_slots", doubles).Int("booked_without_appointment", orphans).Msg("audit complete")
	if doubles > 0 || orphans > 0 {
		return fmt.Errorf("audit found %d double-booked slots and %d booked slots without an appointment", doubles, orphans)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Date: %s  Slots: %d\n", s.config.Date.Format(time.DateOnly), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Hold", &s.metrics.Hold)
	printOperationReport("Day slots", &s.metrics.DaySlots)
	printOperationReport("List by Patient", &s.metrics.ListPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
