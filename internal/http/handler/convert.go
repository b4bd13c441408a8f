package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/converter"
	"docconvert/internal/model"
	"docconvert/internal/service"
	"docconvert/internal/session"
)

const (
	megabyte = 1024 * 1024

	flashError = "error"
	formRoute  = "/"

	markdownContentType = "text/markdown; charset=utf-8"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Flashes           []model.Flash
	AllowedExtensions []string
	MaxFileSizeMB     int64
	Files             []string
	Bundle            string
}

func addFlash(c *fiber.Ctx, sessions *session.Manager, logger *slog.Logger, msg string) {
	if err := sessions.AddFlash(c, flashError, msg); err != nil {
		logger.Error("flash_failed", "request_id", requestIDFromCtx(c), "error", err)
	}
}

// redirectWithFlash queues msg and sends the browser back to the form.
func redirectWithFlash(c *fiber.Ctx, sessions *session.Manager, logger *slog.Logger, msg string) error {
	addFlash(c, sessions, logger, msg)
	return c.Redirect(formRoute)
}

// Index renders the upload form.
//
// @Summary Upload form
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router / [get]
func Index(sessions *session.Manager, maxUploadBytes int64, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		flashes, err := sessions.PopFlashes(c)
		if err != nil {
			logger.Warn("flash_load_failed", "request_id", requestIDFromCtx(c), "error", err)
		}
		st, err := sessions.Load(c)
		if err != nil {
			logger.Warn("session_load_failed", "request_id", requestIDFromCtx(c), "error", err)
		}

		page := indexPage{
			Flashes:           flashes,
			AllowedExtensions: converter.AllowedExtensions(),
			MaxFileSizeMB:     maxUploadBytes / megabyte,
			Files:             st.Files,
			Bundle:            st.BundleFile,
		}
		if len(page.Files) == 0 && st.SingleFile != "" {
			page.Files = []string{st.SingleFile}
		}

		var sb strings.Builder
		if err := indexTemplate.Execute(&sb, page); err != nil {
			return err
		}
		c.Type("html", "utf-8")
		return c.SendString(sb.String())
	}
}

// Convert handles the form submission: a URL or one or more uploaded files.
//
// @Summary Convert a URL or uploaded files
// @Accept mpfd
// @Produce octet-stream
// @Param url formData string false "Web page, YouTube or s3:// URL"
// @Param files formData file false "Files to convert"
// @Success 200 {file} file "Markdown file or converted_files.zip"
// @Success 302 {string} string "Redirect back to the form with a flash message"
// @Router / [post]
func Convert(svc service.ConversionService, sessions *session.Manager, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rawURL := strings.TrimSpace(c.FormValue("url")); rawURL != "" {
			return convertURLForm(c, svc, sessions, logger, rawURL)
		}

		var headers []*multipart.FileHeader
		if form, err := c.MultipartForm(); err == nil {
			headers = form.File["files"]
		}
		uploads, closeAll, err := openUploads(headers)
		defer closeAll()
		if err != nil {
			logger.Error("upload_open_failed", "request_id", requestIDFromCtx(c), "error", err)
			return redirectWithFlash(c, sessions, logger, fmt.Sprintf("An unexpected error occurred: %v", err))
		}

		conv, err := svc.ConvertUploads(c.UserContext(), uploads)
		if conv != nil {
			for _, w := range conv.Warnings {
				addFlash(c, sessions, logger, w)
			}
		}
		switch {
		case errors.Is(err, service.ErrNoFiles):
			return redirectWithFlash(c, sessions, logger, "No files selected")
		case errors.Is(err, service.ErrNothingConverted):
			return redirectWithFlash(c, sessions, logger, "No files could be converted")
		case err != nil:
			logger.Error("conversion_failed", "request_id", requestIDFromCtx(c), "error", err)
			return redirectWithFlash(c, sessions, logger, fmt.Sprintf("An unexpected error occurred: %v", err))
		}

		st := model.SessionState{WorkspaceID: conv.WorkspaceID, Files: conv.Filenames()}
		if out := conv.Single(); out != nil {
			st.SingleFile = out.Filename
		} else {
			st.BundleFile = conv.Bundle
		}
		if err := sessions.Save(c, st); err != nil {
			logger.Error("session_state_failed", "request_id", requestIDFromCtx(c), "error", err)
		}
		return sendConversion(c, svc, conv)
	}
}

func convertURLForm(c *fiber.Ctx, svc service.ConversionService, sessions *session.Manager, logger *slog.Logger, rawURL string) error {
	conv, err := svc.ConvertURL(c.UserContext(), rawURL)
	if err != nil {
		logger.Error("url_conversion_failed", "request_id", requestIDFromCtx(c), "url", rawURL, "error", err)
		return redirectWithFlash(c, sessions, logger, fmt.Sprintf("Error converting URL: %v", err))
	}
	out := conv.Single()
	if err := sessions.Save(c, model.SessionState{WorkspaceID: conv.WorkspaceID, SingleFile: out.Filename}); err != nil {
		logger.Error("session_state_failed", "request_id", requestIDFromCtx(c), "error", err)
	}
	return sendMarkdown(c, out)
}

// ConvertAsync is the API variant of Convert. It converts a URL or the first
// uploaded file and reports failures as JSON.
//
// @Summary Convert a URL or a single file
// @Accept mpfd
// @Produce octet-stream
// @Param url formData string false "Web page, YouTube or s3:// URL"
// @Param file formData file false "File to convert"
// @Param files formData file false "Alternative field; only the first file is used"
// @Success 200 {file} file "Markdown file, or converted_files.zip for archives"
// @Failure 400 {object} asyncError
// @Failure 500 {object} asyncError
// @Router /convert_async [post]
func ConvertAsync(svc service.ConversionService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := requestIDFromCtx(c)
		if rawURL := strings.TrimSpace(c.FormValue("url")); rawURL != "" {
			conv, err := svc.ConvertURL(c.UserContext(), rawURL)
			if err != nil {
				logger.Error("url_conversion_failed", "request_id", rid, "url", rawURL, "error", err)
				return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: fmt.Sprintf("Error converting URL: %v", err)})
			}
			out := conv.Single()
			if out.Result.Failed() {
				logger.Warn("url_conversion_rejected", "request_id", rid, "url", rawURL, "reason", out.Result.Text)
				return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: out.Result.Text})
			}
			return sendMarkdown(c, out)
		}

		fh, msg := asyncUpload(c)
		if fh == nil {
			return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: msg})
		}
		uploads, closeAll, err := openUploads([]*multipart.FileHeader{fh})
		defer closeAll()
		if err != nil {
			logger.Error("upload_open_failed", "request_id", rid, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(asyncError{Error: "internal server error"})
		}

		conv, err := svc.ConvertFile(c.UserContext(), uploads[0])
		switch {
		case errors.Is(err, service.ErrNoFiles):
			return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: "No file selected"})
		case errors.Is(err, service.ErrUnsupportedType):
			return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: "File type not supported"})
		case errors.Is(err, service.ErrNothingConverted):
			return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: "No files could be converted"})
		case err != nil:
			logger.Error("conversion_failed", "request_id", rid, "file", fh.Filename, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(asyncError{Error: "internal server error"})
		}

		if out := conv.Single(); out != nil && !out.Result.OK() {
			logger.Warn("conversion_rejected", "request_id", rid, "file", fh.Filename, "status", out.Result.Status, "reason", out.Result.Text)
			return c.Status(fiber.StatusBadRequest).JSON(asyncError{Error: out.Result.Text})
		}
		return sendConversion(c, svc, conv)
	}
}

// asyncUpload picks "file", else the first of "files". It returns the
// client-facing reason when neither is usable.
func asyncUpload(c *fiber.Ctx) (*multipart.FileHeader, string) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, "No file or URL provided"
	}
	if files := form.File["file"]; len(files) > 0 {
		if files[0].Filename == "" {
			return nil, "No file selected"
		}
		return files[0], ""
	}
	if files := form.File["files"]; len(files) > 0 {
		if files[0].Filename == "" {
			return nil, "No file provided"
		}
		return files[0], ""
	}
	return nil, "No file or URL provided"
}

func openUploads(headers []*multipart.FileHeader) ([]model.Upload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	uploads := make([]model.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" {
			uploads = append(uploads, model.Upload{})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, model.Upload{Filename: fh.Filename, Reader: f, Size: fh.Size})
	}
	return uploads, closeAll, nil
}

// sendConversion streams the single output or the bundle as an attachment.
func sendConversion(c *fiber.Ctx, svc service.ConversionService, conv *model.Conversion) error {
	if out := conv.Single(); out != nil {
		return sendMarkdown(c, out)
	}
	p, err := svc.OpenFile(c.UserContext(), conv.WorkspaceID, conv.Bundle)
	if err != nil {
		return err
	}
	c.Attachment(conv.Bundle)
	c.Set(fiber.HeaderContentType, "application/zip")
	return c.SendFile(p)
}

func sendMarkdown(c *fiber.Ctx, out *model.Output) error {
	c.Attachment(out.Filename)
	c.Set(fiber.HeaderContentType, markdownContentType)
	return c.SendString(out.Result.Text)
}
