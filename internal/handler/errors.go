package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/logger"
	"github.com/flicky/storefront-api/internal/service"
)

type errorMapping struct {
	kind   error
	status int
	code   string
}

// Checked in order; the first kind the error wraps wins.
var errorMappings = []errorMapping{
	{service.ErrInvalidTransition, http.StatusBadRequest, "INVALID_TRANSITION"},
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrInsufficientStock, http.StatusBadRequest, "INSUFFICIENT_STOCK"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{service.ErrConflict, http.StatusConflict, "CONFLICT"},
	{service.ErrAlreadyExists, http.StatusBadRequest, "ALREADY_EXISTS"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
}

// writeError answers with the status and code of the error's kind. Anything
// unclassified, storage failures included, is logged and reported as a
// generic 500.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrStorage) {
		internalError(c, err)
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	internalError(c, err)
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.FromContext(c, nil).Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "INVALID_ARGUMENT"})
}
