package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/internal/domain/repository"
)

const uniqueViolation = "23505"

// constraintFields maps unique constraint names from the migrations to request fields.
var constraintFields = map[string]string{
	"patients_username_key": "username",
	"patients_phone_key":    "phone",
}

const patientColumns = `id, username, email, password_hash, phone, address, is_active, is_staff, date_joined, updated_at`

type PatientRepository struct {
	pool *pgxpool.Pool
}

func NewPatientRepository(pool *pgxpool.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

func (r *PatientRepository) Create(ctx context.Context, p *entity.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, username, email, password_hash, phone, address, is_active, is_staff)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING date_joined, updated_at
	`, p.ID, p.Username, p.Email, p.PasswordHash, p.Phone, p.Address, p.IsActive, p.IsStaff)

	if err := row.Scan(&p.DateJoined, &p.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id string) (*entity.Patient, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PatientRepository) GetByUsername(ctx context.Context, username string) (*entity.Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE username = $1`, username)
	return scanPatient(row)
}

func (r *PatientRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

func (r *PatientRepository) PhoneInUse(ctx context.Context, phone, excludeID string) (bool, error) {
	var exists bool
	var err error
	if excludeID == "" {
		err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE phone = $1)`, phone).Scan(&exists)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE phone = $1 AND id <> $2)`, phone, excludeID).Scan(&exists)
	}
	return exists, err
}

func (r *PatientRepository) UpdateContact(ctx context.Context, p *entity.Patient) error {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET phone = $1, address = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`, p.Phone, p.Address, p.ID).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapWriteError(err)
	}
	p.UpdatedAt = updatedAt
	return nil
}

func scanPatient(row pgx.Row) (*entity.Patient, error) {
	p := &entity.Patient{}
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Phone, &p.Address,
		&p.IsActive, &p.IsStaff, &p.DateJoined, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// mapWriteError turns a unique violation into a ConflictError for the offending field.
func mapWriteError(err error) error {
	var pge *pgconn.PgError
	if errors.As(err, &pge) && pge.Code == uniqueViolation {
		if field, ok := constraintFields[pge.ConstraintName]; ok {
			return &repository.ConflictError{Field: field}
		}
	}
	return err
}

var _ repository.PatientRepository = (*PatientRepository)(nil)
