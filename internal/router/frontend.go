package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mtreat/mtreat-backend/pkg/response"
)

// Frontend serves the built single-page app for unmatched GET requests: existing
// files under dir are served as-is, anything else gets index.html so client-side
// routes resolve. API paths and an empty dir answer with a 404 envelope.
func Frontend(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if dir == "" || strings.HasPrefix(path, "/api/") || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			response.Error[any](c, http.StatusNotFound, "not found", nil)
			return
		}
		if _, err := os.Stat(index); err != nil {
			response.Error[any](c, http.StatusNotFound, "not found", nil)
			return
		}
		file := filepath.Join(dir, filepath.Clean("/"+path))
		if fi, err := os.Stat(file); err == nil && !fi.IsDir() {
			c.File(file)
			return
		}
		c.File(index)
	}
}
