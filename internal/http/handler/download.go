package handler

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/service"
	"docconvert/internal/session"
)

// Download serves a file from the workspace remembered by the caller's session.
//
// @Summary Download a file of the last conversion
// @Produce octet-stream
// @Param filename path string true "Output file name"
// @Success 200 {file} file "Requested file"
// @Success 302 {string} string "Redirect to the form when the session or file is gone"
// @Router /download/{filename} [get]
func Download(svc service.ConversionService, sessions *session.Manager, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := sessions.Load(c)
		if err != nil {
			logger.Warn("session_load_failed", "request_id", requestIDFromCtx(c), "error", err)
		}
		if st.Empty() {
			return redirectWithFlash(c, sessions, logger, "Session expired. Please convert files again.")
		}

		name, ok := filenameParam(c)
		if !ok {
			return redirectWithFlash(c, sessions, logger, "File not found or session expired")
		}
		p, err := svc.OpenFile(c.UserContext(), st.WorkspaceID, name)
		if err != nil {
			if !errors.Is(err, service.ErrNotFound) && !errors.Is(err, service.ErrInvalidFilename) {
				logger.Error("download_failed", "request_id", requestIDFromCtx(c), "error", err)
			}
			return redirectWithFlash(c, sessions, logger, "File not found or session expired")
		}
		return c.Download(p)
	}
}

// DownloadFromWorkspace serves a file from an explicitly named workspace.
//
// @Summary Download a file from a given conversion
// @Produce octet-stream
// @Param session_id path string true "Conversion (workspace) ID"
// @Param filename path string true "Output file name"
// @Success 200 {file} file "Requested file"
// @Failure 404 {object} asyncError
// @Failure 500 {object} errorPayload
// @Router /download/{session_id}/{filename} [get]
func DownloadFromWorkspace(svc service.ConversionService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, ok := filenameParam(c)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(asyncError{Error: "File not found"})
		}
		p, err := svc.OpenFile(c.UserContext(), c.Params("session_id"), name)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidFilename) {
				return c.Status(fiber.StatusNotFound).JSON(asyncError{Error: "File not found"})
			}
			logger.Error("download_failed", "request_id", requestIDFromCtx(c), "error", err)
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Download(p)
	}
}

// filenameParam returns the percent-decoded :filename. Links to outputs such as
// "My Report.md" arrive escaped; the workspace lookup still validates the
// decoded name.
func filenameParam(c *fiber.Ctx) (string, bool) {
	name, err := url.PathUnescape(c.Params("filename"))
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}
