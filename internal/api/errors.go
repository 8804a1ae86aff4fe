package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/promotion"
	"github.com/devops-promotions/promotions/internal/storage"
)

// ErrorHandlers installs JSON responses for requests the router cannot match.
type ErrorHandlers struct{}

// Register sets the router's 404 and 405 handlers.
func (ErrorHandlers) Register(router *Router) error {
	router.NotFound(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "The requested URL "+r.URL.Path+" was not found on the server.")
	}))
	router.MethodNotAllowed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "The method "+r.Method+" is not allowed for the requested URL.")
	}))
	return nil
}

// writeFailure maps domain and storage errors onto HTTP responses.
func writeFailure(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case promotion.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
