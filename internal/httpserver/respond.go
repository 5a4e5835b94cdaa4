package httpserver

import (
	"errors"
	"log"
	"net/http"

	"shopcart-backend/internal/domain"
	authsvc "shopcart-backend/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto HTTP statuses. A version conflict
// answers 409 with the stored version and total so the caller can re-read
// and retry; anything unmapped is an infrastructure failure.
func respondError(c *gin.Context, logger *log.Logger, err error) {
	var conflict *domain.VersionConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":            "version conflict",
			"currentVersionNo": conflict.CurrentVersion,
			"totalPriceCents":  conflict.TotalPriceCents,
		})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIntegrityViolation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, authsvc.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Printf("http: internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
