package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/internal/domain/repository"
)

// PatientRepository stores patients in process memory for tests or a database-less dev run.
// Username and phone uniqueness are enforced like the postgres constraints.
type PatientRepository struct {
	mu         sync.RWMutex
	byID       map[string]*entity.Patient
	byUsername map[string]string
	byPhone    map[string]string
}

// NewPatientRepository returns an initialized in-memory repository.
func NewPatientRepository() *PatientRepository {
	return &PatientRepository{
		byID:       make(map[string]*entity.Patient),
		byUsername: make(map[string]string),
		byPhone:    make(map[string]string),
	}
}

func clone(p *entity.Patient) *entity.Patient {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (r *PatientRepository) Create(_ context.Context, p *entity.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[p.Username]; exists {
		return &repository.ConflictError{Field: "username"}
	}
	if _, exists := r.byPhone[p.Phone]; exists {
		return &repository.ConflictError{Field: "phone"}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.DateJoined = now
	p.UpdatedAt = now
	r.byID[p.ID] = clone(p)
	r.byUsername[p.Username] = p.ID
	r.byPhone[p.Phone] = p.ID
	return nil
}

func (r *PatientRepository) GetByID(_ context.Context, id string) (*entity.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(p), nil
}

func (r *PatientRepository) GetByUsername(_ context.Context, username string) (*entity.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *PatientRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[username]
	return ok, nil
}

func (r *PatientRepository) PhoneInUse(_ context.Context, phone, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.byPhone[phone]
	return ok && owner != excludeID, nil
}

func (r *PatientRepository) UpdateContact(_ context.Context, p *entity.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if owner, taken := r.byPhone[p.Phone]; taken && owner != p.ID {
		return &repository.ConflictError{Field: "phone"}
	}
	delete(r.byPhone, cur.Phone)
	cur.Phone = p.Phone
	cur.Address = p.Address
	cur.UpdatedAt = time.Now().UTC()
	r.byPhone[cur.Phone] = cur.ID
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

// Len returns the number of stored patients.
func (r *PatientRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

var _ repository.PatientRepository = (*PatientRepository)(nil)
