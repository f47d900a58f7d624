package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	repo "github.com/mtreat/mtreat-backend/internal/domain/repository"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
)

const (
	msgBlank         = "may not be blank"
	msgUsernameTaken = "a user with that username already exists"
	msgPhoneTaken    = "patient with this phone already exists"
	msgPasswordLong  = "must be at most 72 bytes"

	// bcrypt rejects longer input
	maxPasswordBytes = 72
)

// TokenRevoker keeps track of refresh tokens revoked by logout.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	Repo      repo.PatientRepository
	Hasher    helpers.PasswordHasher
	Tokens    helpers.TokenIssuer
	Revoker   TokenRevoker
	Notifier  Notifier
	Directory Directory
	Logger    *logrus.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo repo.PatientRepository, hasher helpers.PasswordHasher, tokens helpers.TokenIssuer, revoker TokenRevoker, notifier Notifier, directory Directory, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = helpers.NewDiscardLogger()
	}
	return &Service{
		Repo:      repo,
		Hasher:    hasher,
		Tokens:    tokens,
		Revoker:   revoker,
		Notifier:  notifier,
		Directory: directory,
		Logger:    logger,
	}
}

// Register validates uniqueness, hashes the password and stores a new patient.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Patient, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)

	fe := fieldErrors{}
	for field, v := range map[string]string{"username": in.Username, "email": in.Email, "phone": in.Phone, "address": in.Address, "password": in.Password} {
		if strings.TrimSpace(v) == "" {
			fe.add(field, msgBlank)
		}
	}
	if len(in.Password) > maxPasswordBytes {
		fe.add("password", msgPasswordLong)
	}
	if in.Username != "" {
		taken, err := s.Repo.UsernameExists(ctx, in.Username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if taken {
			fe.add("username", msgUsernameTaken)
		}
	}
	if in.Phone != "" {
		taken, err := s.Repo.PhoneInUse(ctx, in.Phone, "")
		if err != nil {
			return nil, fmt.Errorf("check phone: %w", err)
		}
		if taken {
			fe.add("phone", msgPhoneTaken)
		}
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p := &entity.Patient{
		Account: entity.Account{
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
			IsActive:     true,
		},
		Phone:   in.Phone,
		Address: in.Address,
	}
	if err := s.Repo.Create(ctx, p); err != nil {
		return nil, conflictToValidation(err)
	}
	metrics.Add(metricRegistrations, 1)
	s.Logger.WithFields(logrus.Fields{"patient_id": p.ID, "username": p.Username}).Info("patient registered")

	if s.Notifier != nil {
		if nErr := s.Notifier.Welcome(ctx, p); nErr != nil {
			s.Logger.WithError(nErr).WithField("patient_id", p.ID).Warn("welcome email not queued")
		}
	}
	s.index(ctx, p)
	return p, nil
}

// Login verifies credentials and issues a token pair. Every failure is ErrInvalidCredentials
// so callers cannot tell an unknown username from a wrong password.
func (s *Service) Login(ctx context.Context, username, password string) (*entity.Patient, helpers.TokenPair, error) {
	p, err := s.Repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// keep timing close to a real comparison
			s.Hasher.Compare(s.dummy(), password)
			metrics.Add(metricLoginFailures, 1)
			return nil, helpers.TokenPair{}, ErrInvalidCredentials
		}
		return nil, helpers.TokenPair{}, fmt.Errorf("load patient: %w", err)
	}
	if !s.Hasher.Compare(p.PasswordHash, password) || !p.CanAuthenticate() {
		metrics.Add(metricLoginFailures, 1)
		return nil, helpers.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.Tokens.Issue(p.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("patient_id", p.ID).Error("issue tokens failed")
		return nil, helpers.TokenPair{}, err
	}
	metrics.Add(metricLogins, 1)
	return p, pair, nil
}

// Authenticate loads the active patient a verified token refers to.
func (s *Service) Authenticate(ctx context.Context, patientID string) (*entity.Patient, error) {
	p, err := s.Repo.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if !p.CanAuthenticate() {
		return nil, ErrInvalidToken
	}
	return p, nil
}

// UpdateProfile merges the present fields of u into the stored patient.
// Nothing is written when validation fails.
func (s *Service) UpdateProfile(ctx context.Context, patientID string, u entity.ContactUpdate, meta RequestMeta) (*entity.Patient, error) {
	fe := fieldErrors{}
	if u.Phone != nil {
		v := strings.TrimSpace(*u.Phone)
		u.Phone = &v
		if v == "" {
			fe.add("phone", msgBlank)
		}
	}
	if u.Address != nil {
		v := strings.TrimSpace(*u.Address)
		u.Address = &v
		if v == "" {
			fe.add("address", msgBlank)
		}
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	p, err := s.Repo.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if u.IsEmpty() {
		return p, nil
	}
	if u.Phone != nil && *u.Phone != p.Phone {
		taken, err := s.Repo.PhoneInUse(ctx, *u.Phone, p.ID)
		if err != nil {
			return nil, fmt.Errorf("check phone: %w", err)
		}
		if taken {
			return nil, &ValidationError{Fields: map[string]string{"phone": msgPhoneTaken}}
		}
	}

	changes := p.ApplyContactUpdate(u)
	if len(changes) == 0 {
		return p, nil
	}
	if err := s.Repo.UpdateContact(ctx, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, conflictToValidation(err)
	}
	metrics.Add(metricProfileUpdates, 1)
	s.Logger.WithFields(logrus.Fields{"patient_id": p.ID, "fields": len(changes)}).Info("profile updated")

	if s.Notifier != nil {
		if nErr := s.Notifier.ProfileUpdated(ctx, p, changes, meta); nErr != nil {
			s.Logger.WithError(nErr).WithField("patient_id", p.ID).Warn("profile update email not queued")
		}
	}
	s.index(ctx, p)
	return p, nil
}

// Refresh exchanges a valid, non-revoked refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if s.Revoker != nil {
		revoked, rErr := s.Revoker.IsRevoked(ctx, claims.ID)
		if rErr != nil {
			return "", time.Time{}, fmt.Errorf("check revocation: %w", rErr)
		}
		if revoked {
			return "", time.Time{}, ErrInvalidToken
		}
	}
	if _, err := s.Authenticate(ctx, claims.UserID); err != nil {
		return "", time.Time{}, err
	}
	access, exp, err := s.Tokens.IssueAccess(claims.UserID)
	if err != nil {
		return "", time.Time{}, err
	}
	metrics.Add(metricTokenRefreshes, 1)
	return access, exp, nil
}

// Logout revokes the caller's refresh token. Tokens that do not verify or belong to
// another patient are ignored.
func (s *Service) Logout(ctx context.Context, patientID, refreshToken string) error {
	if refreshToken == "" || s.Revoker == nil {
		return nil
	}
	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil || claims.UserID != patientID {
		return nil
	}
	var until time.Time
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return s.Revoker.Revoke(ctx, claims.ID, until)
}

// SearchDirectory lets staff accounts look up patients.
func (s *Service) SearchDirectory(ctx context.Context, caller *entity.Patient, q string, size int) ([]Profile, error) {
	if caller == nil || !caller.IsStaff {
		return nil, ErrForbidden
	}
	if s.Directory == nil {
		return []Profile{}, nil
	}
	return s.Directory.Search(ctx, strings.TrimSpace(q), size)
}

func (s *Service) index(ctx context.Context, p *entity.Patient) {
	if s.Directory == nil {
		return
	}
	if err := s.Directory.Index(ctx, p); err != nil {
		s.Logger.WithError(err).WithField("patient_id", p.ID).Warn("directory index failed")
	}
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("mtreat-dummy-password")
	})
	return s.dummyHash
}

func conflictToValidation(err error) error {
	var ce *repo.ConflictError
	if errors.As(err, &ce) {
		msg := msgPhoneTaken
		if ce.Field == "username" {
			msg = msgUsernameTaken
		}
		return &ValidationError{Fields: map[string]string{ce.Field: msg}}
	}
	return err
}
