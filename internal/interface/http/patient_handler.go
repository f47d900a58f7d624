package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mtreat/mtreat-backend/internal/application"
	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/internal/interface/middleware"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
	"github.com/mtreat/mtreat-backend/pkg/response"
	"github.com/mtreat/mtreat-backend/pkg/validation"
)

type PatientHandler struct {
	Svc     *application.Service
	Logger  *logrus.Logger
	Cookies *helpers.Manager
}

func NewPatientHandler(svc *application.Service, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *PatientHandler {
	if logger == nil {
		logger = helpers.NewDiscardLogger()
	}
	return &PatientHandler{Svc: svc, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,max=150,username"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Phone    string `json:"phone" binding:"required,max=15,phone"`
	Address  string `json:"address" binding:"required,max=255"`
	Password string `json:"password" binding:"required,max=72"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	Phone   *string `json:"phone" binding:"omitempty,max=15,phone"`
	Address *string `json:"address" binding:"omitempty,max=255"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type loginResponse struct {
	AccessToken      string              `json:"access_token"`
	RefreshToken     string              `json:"refresh_token"`
	AccessExpiresAt  time.Time           `json:"access_expires_at"`
	RefreshExpiresAt time.Time           `json:"refresh_expires_at"`
	User             application.Profile `json:"user"`
}

type refreshResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func (h *PatientHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	p, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, application.ProfileOf(p), "registered", nil)
}

func (h *PatientHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	p, pair, err := h.Svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.SetPair(c, pair)
	response.Success(c, http.StatusOK, loginResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessTokenExpiry,
		RefreshExpiresAt: pair.RefreshTokenExpiry,
		User:             application.ProfileOf(p),
	}, "login successful", nil)
}

func (h *PatientHandler) Profile(c *gin.Context) {
	p, ok := middleware.CurrentPatient(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "authentication credentials were not provided", nil)
		return
	}
	response.Success(c, http.StatusOK, application.ProfileOf(p), "profile", nil)
}

// UpdateProfile serves both PUT and PATCH; absent fields keep their stored value.
func (h *PatientHandler) UpdateProfile(c *gin.Context) {
	p, ok := middleware.CurrentPatient(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "authentication credentials were not provided", nil)
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	updated, err := h.Svc.UpdateProfile(c.Request.Context(), p.ID,
		entity.ContactUpdate{Phone: req.Phone, Address: req.Address}, requestMeta(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ContactOf(updated), "profile updated", nil)
}

func (h *PatientHandler) Refresh(c *gin.Context) {
	refresh, ok := refreshTokenFrom(c)
	if !ok {
		return
	}
	if refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	access, exp, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.SetAccess(c, access, exp)
	response.Success(c, http.StatusOK, refreshResponse{AccessToken: access, AccessExpiresAt: exp}, "token refreshed", nil)
}

func (h *PatientHandler) Logout(c *gin.Context) {
	refresh, ok := refreshTokenFrom(c)
	if !ok {
		return
	}
	if err := h.Svc.Logout(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), refresh); err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, map[string]any{"logged_out": true}, "logged out", nil)
}

// Search queries the patient directory; staff only.
func (h *PatientHandler) Search(c *gin.Context) {
	p, _ := middleware.CurrentPatient(c)
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"size": "must be a number"})
		return
	}
	res, err := h.Svc.SearchDirectory(c.Request.Context(), p, c.Query("q"), size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res, "ok", map[string]any{"count": len(res)})
}

func (h *PatientHandler) fail(c *gin.Context, err error) {
	var ve *application.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error[any](c, http.StatusBadRequest, "validation failed", ve.Fields)
	case errors.Is(err, application.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
	case errors.Is(err, application.ErrInvalidToken):
		response.Error[any](c, http.StatusUnauthorized, "invalid or expired token", nil)
	case errors.Is(err, application.ErrForbidden):
		response.Error[any](c, http.StatusForbidden, "you do not have permission to perform this action", nil)
	default:
		helpers.LogError(h.Logger, "request failed", err, logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		})
		response.Error[any](c, http.StatusInternalServerError, "internal error", nil)
	}
}

// refreshTokenFrom reads {"refresh": ...} from the body, falling back to the
// refresh_token cookie. It writes a 400 and returns false on a malformed body.
func refreshTokenFrom(c *gin.Context) (string, bool) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return "", false
	}
	if req.Refresh != "" {
		return req.Refresh, true
	}
	tok, _ := c.Cookie(helpers.RefreshCookie)
	return tok, true
}

func requestMeta(c *gin.Context) application.RequestMeta {
	ip := c.GetString(middleware.CtxRealIPKey)
	if ip == "" {
		ip = c.ClientIP()
	}
	return application.RequestMeta{IP: ip, UserAgent: c.Request.UserAgent()}
}
