package schedule

import "github.com/hackgods/clinic-slot-scheduling/internal/apperr"

var (
	ErrDoctorNotFound    = apperr.New(apperr.ErrNotFound, "doctor not found")
	ErrTemplateNotFound  = apperr.New(apperr.ErrNotFound, "schedule template not found")
	ErrMalformedTemplate = apperr.New(apperr.ErrInvalidTemplate, "stored schedule template is malformed")
	ErrInvalidLeave      = apperr.New(apperr.ErrInvalidInput, "leave needs a start and an end after it")
)
