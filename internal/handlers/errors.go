package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"authgate/api/internal/repository"
	"authgate/api/internal/service"
)

func respondError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, gin.H{"error": kind, "message": message})
}

// bindJSON distinguishes an unparsable body (422) from a parsed body
// that fails field validation (400).
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			respondError(c, http.StatusUnprocessableEntity, "unprocessable_entity", err.Error())
			return false
		}
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// mapServiceError translates service and repository sentinels into the
// response taxonomy. Anything unrecognized is a 500.
func mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, repository.ErrEmailTaken),
		errors.Is(err, repository.ErrRoleExists):
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrRoleNotFound):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal_server_error", "unexpected failure")
	}
}
