package router

import "github.com/gin-gonic/gin"

// Module is a feature that mounts its routes on the /api group handed to it by the Registry.
type Module interface {
	Register(api *gin.RouterGroup)
}
