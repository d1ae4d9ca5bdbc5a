package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/apperr"
)

// Service is the write path used by the schedule and leave editing UI.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// SaveTemplate validates and stores a doctor's weekly availability, replacing
// any previous version.
func (s *Service) SaveTemplate(ctx context.Context, doctorID uuid.UUID, days Week) (*WeeklyTemplate, error) {
	if err := days.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	tpl := &WeeklyTemplate{DoctorID: doctorID, Days: days}
	if err := s.repo.UpsertTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("save template: %w", apperr.Transient(err))
	}

	s.logger.Info().Str("doctor_id", doctorID.String()).Msg("schedule template saved")
	return tpl, nil
}

func (s *Service) GetTemplate(ctx context.Context, doctorID uuid.UUID) (*WeeklyTemplate, error) {
	tpl, err := s.repo.GetTemplate(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrMalformedTemplate) {
			s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("schedule template cannot be decoded")
		}
		return nil, fmt.Errorf("get template: %w", apperr.Transient(err))
	}
	return tpl, nil
}

// AddLeave records a leave interval. Slots already generated for the covered
// dates are left untouched.
func (s *Service) AddLeave(ctx context.Context, doctorID uuid.UUID, start, end time.Time, reason string) (*Leave, error) {
	l := &Leave{
		DoctorID: doctorID,
		StartAt:  start,
		EndAt:    end,
		Reason:   strings.TrimSpace(reason),
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	if err := s.repo.InsertLeave(ctx, l); err != nil {
		return nil, fmt.Errorf("add leave: %w", apperr.Transient(err))
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Time("start_at", start).
		Time("end_at", end).
		Msg("leave recorded")
	return l, nil
}

func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Leave, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("list leaves: range end must be after start: %w", apperr.ErrInvalidInput)
	}
	leaves, err := s.repo.ListLeaves(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", apperr.Transient(err))
	}
	return leaves, nil
}

func (s *Service) requireDoctor(ctx context.Context, doctorID uuid.UUID) error {
	ok, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", apperr.Transient(err))
	}
	if !ok {
		return ErrDoctorNotFound
	}
	return nil
}
