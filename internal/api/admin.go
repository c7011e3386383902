package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/screen"
)

// adminReload перечитывает формы и справочники; при ошибках линта каталог не меняется.
func (s *Server) adminReload(c *gin.Context) {
	cat, err := s.Reload()
	if err != nil {
		var lerr *screen.LintError
		if errors.As(err, &lerr) {
			out := make([]gin.H, 0, len(lerr.Issues))
			for _, it := range lerr.Issues {
				out = append(out, gin.H{
					"screen":  it.Screen,
					"field":   it.Field,
					"message": it.Message,
					"code":    it.Code,
				})
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "forms have blocking issues",
				"issues": out,
				"hint":   "fix DSL and retry",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "forms load error", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"screens": cat.Len(),
		"codes":   len(cat.Codes),
	})
}
