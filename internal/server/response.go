package server

import (
	"errors"
	"net/http"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/gin-gonic/gin"
)

// wireError is the error object inside the response envelope.
type wireError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// envelope is the standard response wrapper consumed by the console client.
type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *wireError `json:"error,omitempty"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

// respondError maps an error onto an HTTP status and the error envelope.
// Unrecognized failures surface as a plain internal error so backend
// internals never reach the client.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrOtpInvalid),
		errors.Is(err, errs.ErrOtpExpired):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAuthenticationFailed),
		errors.Is(err, errs.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrRegistrationFailed),
		errors.Is(err, errs.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, errs.ErrOtpDispatchFailed):
		status = http.StatusBadGateway
	}

	code := errs.CodeOf(err)
	desc := errs.DescriptionOf(err)
	if code == "" {
		code, desc = "default", "something went wrong"
	}
	c.JSON(status, envelope{Success: false, Error: &wireError{Code: code, Description: desc}})
}
