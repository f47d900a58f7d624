package repository

import (
	"context"
	"errors"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
)

// ErrNotFound is returned when no patient matches the lookup.
var ErrNotFound = errors.New("patient not found")

// ConflictError reports a uniqueness violation on a single field (username or phone).
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already in use"
}

// PatientRepository defines the persistence operations for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *entity.Patient) error
	GetByID(ctx context.Context, id string) (*entity.Patient, error)
	GetByUsername(ctx context.Context, username string) (*entity.Patient, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// PhoneInUse reports whether a patient other than excludeID owns phone.
	PhoneInUse(ctx context.Context, phone, excludeID string) (bool, error)
	UpdateContact(ctx context.Context, p *entity.Patient) error
}
