package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
)

const (
	CtxUserIDKey  = "userID"
	CtxPatientKey = "patient"
)

// CurrentPatient returns the patient JWTAuth attached to the request, if any.
func CurrentPatient(c *gin.Context) (*entity.Patient, bool) {
	v, ok := c.Get(CtxPatientKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*entity.Patient)
	return p, ok && p != nil
}
