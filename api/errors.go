package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	qu "github.com/gabteles/qu-mongoid"
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, qu.ErrStorageUnavailable), errors.Is(err, qu.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, qu.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, qu.ErrInvalidJob), errors.Is(err, qu.ErrInvalidWorker), errors.Is(err, qu.ErrNoQueues):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
