package modules

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/mtreat/mtreat-backend/internal/interface/http"
	"github.com/mtreat/mtreat-backend/internal/interface/middleware"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
)

// AccountsModule wires the patient account handlers under /v1/accounts.
// Public: register, login, token/refresh
// Protected: profile, update-profile (PUT, PATCH), logout, search
// Every path answers with and without its trailing slash.
type AccountsModule struct {
	Handler *handlers.PatientHandler
	JWT     helpers.TokenIssuer
	Auth    middleware.Authenticator
	Redis   *redis.Client // nil disables rate limiting
}

func NewAccountsModule(h *handlers.PatientHandler, jwt helpers.TokenIssuer, auth middleware.Authenticator, rdb *redis.Client) *AccountsModule {
	return &AccountsModule{Handler: h, JWT: jwt, Auth: auth, Redis: rdb}
}

func (m *AccountsModule) Register(rg *gin.RouterGroup) {
	accounts := rg.Group("/v1/accounts")

	// Public with rate limiting
	registerLimiter := middleware.RateLimit(m.Redis, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := middleware.RateLimit(m.Redis, 60, time.Minute, middleware.KeyByIPAndPath(), nil)
	// login: per address and username, plus a per-account ceiling across addresses
	loginAttempts := middleware.RateLimit(m.Redis, 10, time.Minute, middleware.KeyByLoginAttempt(), nil)
	loginAccount := middleware.RateLimit(m.Redis, 30, 15*time.Minute, middleware.KeyByLoginUsername(), nil)

	handle(accounts, "POST", "/register", registerLimiter, m.Handler.Register)
	handle(accounts, "POST", "/login", loginAttempts, loginAccount, m.Handler.Login)
	handle(accounts, "POST", "/token/refresh", refreshLimiter, m.Handler.Refresh)

	// Protected
	auth := accounts.Group("")
	auth.Use(
		middleware.JWTAuth(m.JWT, m.Auth),
		middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		handle(auth, "GET", "/profile", m.Handler.Profile)
		handle(auth, "PUT", "/update-profile", m.Handler.UpdateProfile)
		handle(auth, "PATCH", "/update-profile", m.Handler.UpdateProfile)
		handle(auth, "POST", "/logout", m.Handler.Logout)
		handle(auth, "GET", "/search", m.Handler.Search)
	}
}

// handle registers path both with and without a trailing slash.
func handle(rg *gin.RouterGroup, method, path string, h ...gin.HandlerFunc) {
	path = strings.TrimSuffix(path, "/")
	rg.Handle(method, path, h...)
	rg.Handle(method, path+"/", h...)
}
