package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mtreat/mtreat-backend/config"
	"github.com/mtreat/mtreat-backend/internal/application"
	"github.com/mtreat/mtreat-backend/internal/domain/repository"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
)

// Container holds the components constructed in main and shared with the router.
// Infrastructure fields left nil disable the features that depend on them.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	PGPool    *pgxpool.Pool
	Redis     *redis.Client
	RabbitPub *helpers.RabbitPublisher
	ES        *elasticsearch.Client

	Repo    repository.PatientRepository
	JWT     *helpers.JWTManager
	Service *application.Service
}

// Wire builds the token manager and the patient service from the infrastructure already set.
func (c *Container) Wire() *Container {
	if c.Config == nil {
		c.Config = config.Load()
	}
	if c.Logger == nil {
		c.Logger = helpers.NewDiscardLogger()
	}
	if c.JWT == nil {
		c.JWT = helpers.NewJWTManager(c.Config.JWTAccessSecret, c.Config.JWTRefreshSecret, c.Config.AccessTTL, c.Config.RefreshTTL)
	}

	// interface fields stay nil (not typed-nil) when a backend is absent
	var revoker application.TokenRevoker
	if c.Redis != nil {
		revoker = helpers.NewTokenBlacklist(c.Redis)
	}
	var notifier application.Notifier
	if c.RabbitPub != nil {
		notifier = application.NewEmailNotifier(c.RabbitPub, c.Config)
	}
	var directory application.Directory
	if c.ES != nil {
		directory = application.NewESDirectory(c.ES, c.Config.ESPatientsIndex)
	}

	c.Service = application.NewService(
		c.Repo,
		helpers.NewBcryptHasher(c.Config.BcryptCost),
		c.JWT,
		revoker,
		notifier,
		directory,
		c.Logger,
	)
	return c
}

// Close releases the connections the container owns.
func (c *Container) Close() {
	if c.RabbitPub != nil {
		c.RabbitPub.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.PGPool != nil {
		c.PGPool.Close()
	}
}
