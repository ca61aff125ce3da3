package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/errs"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

// respondErr maps a core error onto an HTTP status.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrAmbiguous):
		respondError(c, http.StatusConflict, "ambiguous", err)
	case errors.Is(err, errs.ErrBusy):
		respondError(c, http.StatusConflict, "busy", err)
	case errors.Is(err, errs.ErrValidation):
		respondError(c, http.StatusBadRequest, "invalid", err)
	default:
		respondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "bad_request", err)
}
