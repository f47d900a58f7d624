package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mtreat/mtreat-backend/internal/domain/repository"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
	}{
		{"phone violation", &pgconn.PgError{Code: "23505", ConstraintName: "patients_phone_key"}, "phone"},
		{"username violation", &pgconn.PgError{Code: "23505", ConstraintName: "patients_username_key"}, "username"},
		{"wrapped violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "patients_phone_key"}), "phone"},
		{"unknown constraint", &pgconn.PgError{Code: "23505", ConstraintName: "other_key"}, ""},
		{"other code", &pgconn.PgError{Code: "23502", ConstraintName: "patients_phone_key"}, ""},
		{"plain error", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapWriteError(tt.err)
			var ce *repository.ConflictError
			if tt.wantField == "" {
				if errors.As(got, &ce) {
					t.Fatalf("expected passthrough, got conflict on %q", ce.Field)
				}
				if got != tt.err {
					t.Fatalf("expected original error, got %v", got)
				}
				return
			}
			if !errors.As(got, &ce) {
				t.Fatalf("expected ConflictError, got %v", got)
			}
			if ce.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, ce.Field)
			}
		})
	}
}
