package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mtreat/mtreat-backend/internal/application"
	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
	"github.com/mtreat/mtreat-backend/pkg/response"
)

// Authenticator resolves the patient a verified token belongs to. It returns
// application.ErrInvalidToken when the patient is gone or deactivated.
type Authenticator interface {
	Authenticate(ctx context.Context, patientID string) (*entity.Patient, error)
}

// JWTAuth accepts an access token from "Authorization: Bearer <token>" or the
// access_token cookie, validates it and loads the active patient it names.
// It sets userID and patient in the Gin context on success.
func JWTAuth(tokens helpers.TokenIssuer, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "authentication credentials were not provided", nil)
			return
		}
		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid access token", nil)
			return
		}
		p, err := auth.Authenticate(c.Request.Context(), claims.UserID)
		if errors.Is(err, application.ErrInvalidToken) {
			response.Abort(c, http.StatusUnauthorized, "invalid access token", nil)
			return
		}
		if err != nil {
			response.Abort(c, http.StatusInternalServerError, "internal error", nil)
			return
		}
		c.Set(CtxUserIDKey, p.ID)
		c.Set(CtxPatientKey, p)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		scheme, tok, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	tok, err := c.Cookie(helpers.AccessCookie)
	if err != nil {
		return ""
	}
	return tok
}
