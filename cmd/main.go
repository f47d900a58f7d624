package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mtreat/mtreat-backend/config"
	"github.com/mtreat/mtreat-backend/internal/container"
	"github.com/mtreat/mtreat-backend/internal/infrastructure/memory"
	pginfra "github.com/mtreat/mtreat-backend/internal/infrastructure/postgres"
	"github.com/mtreat/mtreat-backend/internal/router"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()
	c := &container.Container{Config: cfg, Logger: logger}

	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory patient store; data is lost on restart")
		c.Repo = memory.NewPatientRepository()
	case "postgres":
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		c.PGPool = pool
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		c.Repo = pginfra.NewPatientRepository(pool)
	default:
		logger.WithField("driver", cfg.StoreDriver).Fatal("unknown STORE_DRIVER")
	}

	// Optional backends: each one left unset turns its feature off.
	if cfg.RedisAddr != "" {
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; rate limiting and logout revocation disabled")
		} else {
			c.Redis = rdb
		}
	}
	if cfg.RabbitMQURL != "" && cfg.MailSendEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable; account emails disabled")
		} else {
			c.RabbitPub = pub
		}
	}
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err == nil {
			err = helpers.EnsurePatientsIndex(ctx, es, cfg.ESPatientsIndex)
		}
		if err != nil {
			logger.WithError(err).Warn("elasticsearch unavailable; patient directory disabled")
		} else {
			c.ES = es
		}
	}
	defer c.Close()

	c.Wire()
	r := router.New(c)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		helpers.LogInfo(logger, "server starting", logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}
	logger.Info("server exited properly")
}
