package handler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/http/middleware"
	"docconvert/internal/session"
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

// asyncError is the body of a failed /convert_async call.
type asyncError struct {
	Error string `json:"error"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	return middleware.RequestIDFrom(c)
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "NOT_FOUND", "PAYLOAD_TOO_LARGE", "INTERNAL_ERROR")
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

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// An oversized form submission is turned into a flash and a redirect back to the form.
func ErrorHandler(sessions *session.Manager, maxUploadBytes int64, logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}

		switch status {
		case fiber.StatusRequestEntityTooLarge:
			msg := fmt.Sprintf("File too large. Maximum size is %dMB", maxUploadBytes/megabyte)
			if c.Method() == fiber.MethodPost && c.Path() == "/" {
				addFlash(c, sessions, logger, msg)
				if cerr := sessions.Commit(c); cerr != nil {
					logger.Error("session_save_failed", "request_id", requestIDFromCtx(c), "error", cerr)
				}
				return c.Redirect("/")
			}
			return writeError(c, status, "PAYLOAD_TOO_LARGE", msg)
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			logger.Error("request_failed", "request_id", requestIDFromCtx(c), "path", c.Path(), "error", err)
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
