package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
)

// respondError writes the {error: msg} body for err with the status of its kind.
func respondError(c *gin.Context, err error) {
	switch ledger.KindOf(err) {
	case ledger.KindValidation, ledger.KindInvariant:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case ledger.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case ledger.KindConflict:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ledger.ErrConflict.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
	c.Error(err)
}
