package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/appointment"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

// ScheduleService is the template and leave editing capability.
type ScheduleService interface {
	SaveTemplate(ctx context.Context, doctorID uuid.UUID, days schedule.Week) (*schedule.WeeklyTemplate, error)
	GetTemplate(ctx context.Context, doctorID uuid.UUID) (*schedule.WeeklyTemplate, error)
	AddLeave(ctx context.Context, doctorID uuid.UUID, start, end time.Time, reason string) (*schedule.Leave, error)
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Leave, error)
}

type RouterConfig struct {
	Scheduler appointment.Scheduler
	Reader    appointment.Reader
	Schedules ScheduleService
	Publisher events.Publisher
	Logger    zerolog.Logger

	PostgresCheck Check
	RedisCheck    Check
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}

	h := &handlers{
		scheduler: cfg.Scheduler,
		reader:    cfg.Reader,
		schedules: cfg.Schedules,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Put("/schedule", h.saveTemplate)
		r.Get("/schedule", h.getTemplate)
		r.Post("/leaves", h.addLeave)
		r.Get("/leaves", h.listLeaves)
		r.Get("/slots", h.getOrCreateSlots)
		r.Get("/appointments", h.listDoctorAppointments)
	})

	r.Route("/slots/{slotID}", func(r chi.Router) {
		r.Get("/", h.getSlot)
		r.Post("/hold", h.holdSlot)
		r.Post("/block", h.blockSlot)
		r.Post("/unblock", h.unblockSlot)
	})

	r.Post("/appointments", h.bookSlot)
	r.Get("/appointments", h.listPatientAppointments)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Post("/cancel", h.cancelAppointment)
		r.Patch("/status", h.updateStatus)
		r.Patch("/payment", h.updatePayment)
	})

	return r
}
