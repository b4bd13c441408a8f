package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docconvert/internal/archive"
	"docconvert/internal/converter"
	"docconvert/internal/http/middleware"
	"docconvert/internal/logging"
	"docconvert/internal/model"
	"docconvert/internal/service"
	serviceMocks "docconvert/internal/service/mocks"
	"docconvert/internal/session"
	"docconvert/internal/workspace"
)

const (
	testMaxUpload = 250 * megabyte
	testWorkspace = "11111111-1111-4111-8111-111111111111"
)

func newTestApp(t *testing.T, svc service.ConversionService) *fiber.App {
	t.Helper()
	sessions := session.NewManager(session.Options{})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(sessions, testMaxUpload, logging.Discard())})
	app.Use(middleware.RequestID())
	RegisterRoutes(app, Deps{
		Service:        svc,
		Sessions:       sessions,
		MaxUploadBytes: testMaxUpload,
		Gatherer:       prometheus.NewRegistry(),
	})
	return app
}

type formFile struct {
	field, name, body string
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		part.Write([]byte(f.body))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withCookie(req *http.Request, resp *http.Response) *http.Request {
	for _, ck := range resp.Cookies() {
		if ck.Name == session.CookieName {
			req.AddCookie(ck)
		}
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func singleConversion(name, text string, status model.Status) *model.Conversion {
	return &model.Conversion{
		WorkspaceID: testWorkspace,
		Outputs: []model.Output{{
			Source:   name,
			Filename: name,
			Result:   model.ConversionResult{Status: status, Text: text},
		}},
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil, func(context.Context) error { return nil }))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, Version, body.Version)
		assert.NotEmpty(t, body.Timestamp)
		assert.True(t, body.Features["zip_processing"])
		assert.Len(t, body.Features, 4)
		assert.Greater(t, body.SupportedFormats, 20)
	})

	t.Run("unhealthy", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil, func(context.Context) error { return errors.New("workspace root missing") }))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "workspace root missing", body.Error)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	app := newTestApp(t, new(serviceMocks.MockConversionService))
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndex(t *testing.T) {
	app := newTestApp(t, new(serviceMocks.MockConversionService))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")

	body := readBody(t, resp)
	assert.Contains(t, body, `name="files"`)
	assert.Contains(t, body, `name="url"`)
	assert.Contains(t, body, ".pdf")
	assert.Contains(t, body, "Maximum upload size: 250MB")
}

func TestConvert_URL(t *testing.T) {
	mockSvc := new(serviceMocks.MockConversionService)
	app := newTestApp(t, mockSvc)

	mockSvc.On("ConvertURL", mock.Anything, "https://example.com/page").
		Return(singleConversion("page.md", "# Page\n\nbody", model.StatusSuccess), nil).Once()

	resp, _ := app.Test(formRequest("/", url.Values{"url": {"https://example.com/page"}}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="page.md"`, resp.Header.Get(fiber.HeaderContentDisposition))
	assert.Equal(t, markdownContentType, resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "# Page\n\nbody", readBody(t, resp))

	// The session now points at the workspace.
	p := filepath.Join(t.TempDir(), "page.md")
	require.NoError(t, os.WriteFile(p, []byte("# Page\n\nbody"), 0o644))
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "page.md").Return(p, nil).Once()

	dl, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/download/page.md", nil), resp))
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get(fiber.HeaderContentDisposition), "page.md")
	assert.Equal(t, "# Page\n\nbody", readBody(t, dl))
	mockSvc.AssertExpectations(t)
}

func TestConvert_URLError(t *testing.T) {
	mockSvc := new(serviceMocks.MockConversionService)
	app := newTestApp(t, mockSvc)

	mockSvc.On("ConvertURL", mock.Anything, "https://example.com").
		Return(nil, errors.New("disk full")).Once()

	resp, _ := app.Test(formRequest("/", url.Values{"url": {"https://example.com"}}))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
	assert.Contains(t, readBody(t, page), "Error converting URL: disk full")
	mockSvc.AssertExpectations(t)
}

func TestConvert_Files(t *testing.T) {
	t.Run("single file", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)

		mockSvc.On("ConvertUploads", mock.Anything, mock.MatchedBy(func(uploads []model.Upload) bool {
			return len(uploads) == 1 && uploads[0].Filename == "notes.txt" && uploads[0].Size == 5
		})).Return(singleConversion("notes.md", "hello", model.StatusSuccess), nil).Once()

		resp, _ := app.Test(multipartRequest(t, "/", nil, formFile{"files", "notes.txt", "hello"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="notes.md"`, resp.Header.Get(fiber.HeaderContentDisposition))
		assert.Equal(t, "hello", readBody(t, resp))

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.Contains(t, readBody(t, page), `href="/download/notes.md"`)
		mockSvc.AssertExpectations(t)
	})

	t.Run("bundle", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)

		zipPath := filepath.Join(t.TempDir(), service.BundleName)
		require.NoError(t, os.WriteFile(zipPath, []byte("PK\x05\x06"+strings.Repeat("\x00", 18)), 0o644))
		conv := &model.Conversion{
			WorkspaceID: testWorkspace,
			Outputs: []model.Output{
				{Filename: "a.md", Result: model.Success("a")},
				{Filename: "b.md", Result: model.Success("b")},
			},
			Warnings: []string{"File type not supported: c.exe"},
			Bundle:   service.BundleName,
		}
		mockSvc.On("ConvertUploads", mock.Anything, mock.Anything).Return(conv, nil).Once()
		mockSvc.On("OpenFile", mock.Anything, testWorkspace, service.BundleName).Return(zipPath, nil).Once()

		resp, _ := app.Test(multipartRequest(t, "/", nil,
			formFile{"files", "a.txt", "a"}, formFile{"files", "b.txt", "b"}, formFile{"files", "c.exe", "c"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/zip", resp.Header.Get(fiber.HeaderContentType))
		assert.Equal(t, `attachment; filename="converted_files.zip"`, resp.Header.Get(fiber.HeaderContentDisposition))

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		body := readBody(t, page)
		assert.Contains(t, body, "File type not supported: c.exe")
		assert.Contains(t, body, `href="/download/converted_files.zip"`)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no files", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertUploads", mock.Anything, mock.Anything).Return(nil, service.ErrNoFiles).Once()

		resp, _ := app.Test(multipartRequest(t, "/", map[string]string{"url": " "}))
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.Contains(t, readBody(t, page), "No files selected")

		// Flashes are consumed by the render.
		again, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.NotContains(t, readBody(t, again), "No files selected")
		mockSvc.AssertExpectations(t)
	})

	t.Run("nothing converted", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		conv := &model.Conversion{WorkspaceID: testWorkspace, Warnings: []string{"File type not supported: x.exe"}}
		mockSvc.On("ConvertUploads", mock.Anything, mock.Anything).Return(conv, service.ErrNothingConverted).Once()

		resp, _ := app.Test(multipartRequest(t, "/", nil, formFile{"files", "x.exe", "MZ"}))
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		body := readBody(t, page)
		assert.Contains(t, body, "File type not supported: x.exe")
		assert.Contains(t, body, "No files could be converted")
	})

	t.Run("unexpected error", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertUploads", mock.Anything, mock.Anything).Return(nil, errors.New("disk full")).Once()

		resp, _ := app.Test(multipartRequest(t, "/", nil, formFile{"files", "a.txt", "a"}))
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.Contains(t, readBody(t, page), "An unexpected error occurred: disk full")
	})
}

func TestConvertAsync(t *testing.T) {
	decode := func(t *testing.T, resp *http.Response) string {
		t.Helper()
		var body asyncError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Error
	}

	t.Run("url success", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertURL", mock.Anything, "https://example.com").
			Return(singleConversion("example_com.md", "# Example", model.StatusSuccess), nil).Once()

		resp, _ := app.Test(formRequest("/convert_async", url.Values{"url": {"https://example.com"}}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="example_com.md"`, resp.Header.Get(fiber.HeaderContentDisposition))
		assert.Equal(t, "# Example", readBody(t, resp))
	})

	t.Run("url error result", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertURL", mock.Anything, "https://example.com").
			Return(singleConversion("example_com.md", "Error converting URL: 404 Not Found", model.StatusError), nil).Once()

		resp, _ := app.Test(formRequest("/convert_async", url.Values{"url": {"https://example.com"}}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Error converting URL: 404 Not Found", decode(t, resp))
	})

	t.Run("url warning result is delivered", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertURL", mock.Anything, "https://youtu.be/abc").
			Return(singleConversion("abc.md", "# YouTube Video", model.StatusWarning), nil).Once()

		resp, _ := app.Test(formRequest("/convert_async", url.Values{"url": {"https://youtu.be/abc"}}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("file success", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertFile", mock.Anything, mock.MatchedBy(func(u model.Upload) bool {
			return u.Filename == "a.csv"
		})).Return(singleConversion("a.md", "| a |", model.StatusSuccess), nil).Once()

		resp, _ := app.Test(multipartRequest(t, "/convert_async", nil, formFile{"file", "a.csv", "a\n"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "| a |", readBody(t, resp))
		mockSvc.AssertExpectations(t)
	})

	t.Run("first of files", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertFile", mock.Anything, mock.MatchedBy(func(u model.Upload) bool {
			return u.Filename == "first.txt"
		})).Return(singleConversion("first.md", "1", model.StatusSuccess), nil).Once()

		resp, _ := app.Test(multipartRequest(t, "/convert_async", nil,
			formFile{"files", "first.txt", "1"}, formFile{"files", "second.txt", "2"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("warning result is rejected", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertFile", mock.Anything, mock.Anything).
			Return(singleConversion("scan.md", "Warning: No text could be extracted from this PDF.", model.StatusWarning), nil).Once()

		resp, _ := app.Test(multipartRequest(t, "/convert_async", nil, formFile{"file", "scan.pdf", "%PDF"}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Warning: No text could be extracted from this PDF.", decode(t, resp))
	})

	t.Run("user errors", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertFile", mock.Anything, mock.MatchedBy(func(u model.Upload) bool { return u.Filename == "x.exe" })).
			Return(nil, service.ErrUnsupportedType).Once()

		resp, _ := app.Test(multipartRequest(t, "/convert_async", nil, formFile{"file", "x.exe", "MZ"}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "File type not supported", decode(t, resp))

		resp, _ = app.Test(multipartRequest(t, "/convert_async", map[string]string{"other": "1"}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "No file or URL provided", decode(t, resp))

		resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/convert_async", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "No file or URL provided", decode(t, resp))
		mockSvc.AssertExpectations(t)
	})

	t.Run("unexpected error", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertFile", mock.Anything, mock.Anything).Return(nil, errors.New("disk full")).Once()

		resp, _ := app.Test(multipartRequest(t, "/convert_async", nil, formFile{"file", "a.txt", "a"}))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal server error", decode(t, resp))
	})
}

func TestDownload(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		app := newTestApp(t, new(serviceMocks.MockConversionService))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/download/a.md", nil))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.Contains(t, readBody(t, page), "Session expired. Please convert files again.")
	})

	t.Run("missing file", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockConversionService)
		app := newTestApp(t, mockSvc)
		mockSvc.On("ConvertURL", mock.Anything, "https://example.com").
			Return(singleConversion("example_com.md", "x", model.StatusSuccess), nil).Once()
		mockSvc.On("OpenFile", mock.Anything, testWorkspace, "gone.md").Return("", service.ErrNotFound).Once()

		first, _ := app.Test(formRequest("/", url.Values{"url": {"https://example.com"}}))
		resp, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/download/gone.md", nil), first))
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), first))
		assert.Contains(t, readBody(t, page), "File not found or session expired")
		mockSvc.AssertExpectations(t)
	})
}

func zipBody(t *testing.T, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.String()
}

func TestDownload_EscapedFilename(t *testing.T) {
	workspaces, err := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	require.NoError(t, err)
	conv := converter.New(converter.Options{})
	svc := service.NewConversionService(conv, archive.New(conv, nil, 0), workspaces, nil)
	app := newTestApp(t, svc)

	upload := zipBody(t, map[string]string{"My Report.txt": "quarterly numbers", "b.txt": "bee"})
	resp, err := app.Test(multipartRequest(t, "/", nil, formFile{"files", "reports.zip", upload}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get(fiber.HeaderContentType))

	page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
	assert.Contains(t, readBody(t, page), `href="/download/My%20Report.md"`)

	got, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/download/My%20Report.md", nil), resp))
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "quarterly numbers", readBody(t, got))

	got, _ = app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/download/b.md", nil), resp))
	assert.Equal(t, http.StatusOK, got.StatusCode)

	// Decoding must not open a way out of the workspace.
	got, _ = app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/download/..%2F..%2Fetc%2Fpasswd", nil), resp))
	assert.Equal(t, http.StatusFound, got.StatusCode)
}

func TestDownloadFromWorkspace(t *testing.T) {
	mockSvc := new(serviceMocks.MockConversionService)
	app := newTestApp(t, mockSvc)

	p := filepath.Join(t.TempDir(), "a.md")
	require.NoError(t, os.WriteFile(p, []byte("alpha"), 0o644))
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "a.md").Return(p, nil).Once()
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "b.md").Return("", service.ErrNotFound).Once()
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "c.md").Return("", errors.New("io error")).Once()
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "my notes.md").Return(p, nil).Once()
	mockSvc.On("OpenFile", mock.Anything, testWorkspace, "../x.md").Return("", service.ErrInvalidFilename).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/download/"+testWorkspace+"/a.md", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alpha", readBody(t, resp))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/download/"+testWorkspace+"/b.md", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body asyncError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "File not found", body.Error)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/download/"+testWorkspace+"/c.md", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var env errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/download/"+testWorkspace+"/my%20notes.md", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alpha", readBody(t, resp))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/download/"+testWorkspace+"/..%2Fx.md", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestErrorHandler(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(sessions, testMaxUpload, logging.Discard())})
	app.Use(middleware.RequestID())
	app.Get("/", sessions.Middleware(), Index(sessions, testMaxUpload, logging.Discard()))
	app.Post("/", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Post("/convert_async", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	t.Run("too large on the form", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		page, _ := app.Test(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), resp))
		assert.Contains(t, readBody(t, page), "File too large. Maximum size is 250MB")
	})

	t.Run("too large on the api", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/convert_async", nil)
		req.Header.Set(middleware.RequestIDHeader, "rid-1")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "rid-1", body.RequestID)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", body.Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})

	t.Run("internal", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	})
}
