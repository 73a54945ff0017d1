package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"driveprov/internal/http/middleware"
	"driveprov/internal/service"
	"driveprov/internal/storage"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_LIMIT", "STORE_ERROR", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeRunError maps a provisioning failure to a response. Store failures are upstream
// failures (502); everything else is ours (500).
func writeRunError(c *fiber.Ctx, err error) error {
	switch {
	case storage.IsStoreError(err):
		return writeError(c, fiber.StatusBadGateway, "STORE_ERROR", "document store request failed")
	case errors.Is(err, service.ErrNameRequired):
		return writeError(c, fiber.StatusInternalServerError, "MISCONFIGURED", "resource names are not configured")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if storage.IsStoreError(err) || errors.Is(err, service.ErrNameRequired) {
			return writeRunError(c, err)
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestTimeout:
			return writeError(c, status, "TIMEOUT", "request timed out")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
