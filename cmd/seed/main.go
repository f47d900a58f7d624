package main

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mtreat/mtreat-backend/config"
	pginfra "github.com/mtreat/mtreat-backend/internal/infrastructure/postgres"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
)

type seedPatient struct {
	username, email, phone, address, password string
	staff                                     bool
}

var seeds = []seedPatient{
	{username: "alice", email: "alice@example.com", phone: "1234567890", address: "1 Rd", password: "secret"},
	{username: "frontdesk", email: "frontdesk@example.com", phone: "5550000000", address: "Clinic", password: "frontdesk123", staff: true},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		logger.WithError(err).Fatal("failed to open db")
	}
	defer func() { _ = db.Close() }()

	hasher := helpers.NewBcryptHasher(cfg.BcryptCost)
	for _, s := range seeds {
		hash, err := hasher.Hash(s.password)
		if err != nil {
			logger.WithError(err).Fatal("failed to hash password")
		}
		var id string
		err = db.QueryRow(`
			INSERT INTO patients (id, username, email, password_hash, phone, address, is_active, is_staff)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, true, $6)
			ON CONFLICT (username) DO UPDATE
			SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash, is_staff = EXCLUDED.is_staff, updated_at = now()
			RETURNING id
		`, s.username, s.email, hash, s.phone, s.address, s.staff).Scan(&id)
		if err != nil {
			logger.WithError(err).WithField("username", s.username).Fatal("failed to seed patient")
		}
		logger.WithFields(logrus.Fields{"id": id, "username": s.username, "staff": s.staff}).Info("seeded patient")
	}
}
