package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docconvert/internal/converter"
	"docconvert/internal/logging"
	"docconvert/internal/model"
	"docconvert/internal/workspace"
)

// BundleName is the archive holding every output of a multi-file conversion.
const BundleName = "converted_files.zip"

var (
	ErrURLRequired      = errors.New("url is required")
	ErrNoFiles          = errors.New("no files selected")
	ErrUnsupportedType  = errors.New("file type not supported")
	ErrNothingConverted = errors.New("no files could be converted")
	ErrNotFound         = errors.New("file not found")
	ErrInvalidFilename  = errors.New("invalid filename")
)

// Converter converts a single local file or a remote URI.
type Converter interface {
	Convert(ctx context.Context, path string) model.ConversionResult
	ConvertURI(ctx context.Context, uri string) model.ConversionResult
}

// ArchiveProcessor converts every supported member of a ZIP file into dir.
type ArchiveProcessor interface {
	Process(ctx context.Context, archivePath, dir string) []model.Output
}

// Workspaces hands out per-request directories.
type Workspaces interface {
	Create() (model.Workspace, error)
	Open(id string) (model.Workspace, error)
	Release(id string)
}

// ConversionService defines the conversion use cases behind the HTTP handlers.
type ConversionService interface {
	// ConvertURL converts a web page, video link or object URI into one markdown file.
	// The result is returned whatever its status; callers decide whether to deliver it.
	ConvertURL(ctx context.Context, rawURL string) (*model.Conversion, error)

	// ConvertUploads converts every acceptable upload into a fresh workspace.
	// Rejected files become Warnings. When nothing was produced the returned
	// Conversion still carries the warnings and the error is ErrNothingConverted.
	// Several outputs are bundled into BundleName.
	ConvertUploads(ctx context.Context, uploads []model.Upload) (*model.Conversion, error)

	// ConvertFile converts exactly one upload and rejects unsupported types with an error.
	ConvertFile(ctx context.Context, upload model.Upload) (*model.Conversion, error)

	// OpenFile resolves a downloadable file inside an existing workspace.
	OpenFile(ctx context.Context, workspaceID, filename string) (string, error)
}

// conversionService is a concrete implementation of ConversionService.
type conversionService struct {
	conv       Converter
	archives   ArchiveProcessor
	workspaces Workspaces
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewConversionService constructs a new ConversionService.
func NewConversionService(conv Converter, archives ArchiveProcessor, workspaces Workspaces, logger *slog.Logger) ConversionService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &conversionService{
		conv:       conv,
		archives:   archives,
		workspaces: workspaces,
		logger:     logger,
		tracer:     otel.Tracer("docconvert/internal/service"),
	}
}

func (s *conversionService) ConvertURL(ctx context.Context, rawURL string) (*model.Conversion, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	ctx, span := s.tracer.Start(ctx, "ConversionService.ConvertURL", trace.WithAttributes(attribute.String("url", rawURL)))
	defer span.End()

	ws, err := s.workspaces.Create()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer s.workspaces.Release(ws.ID)

	res := s.conv.ConvertURI(ctx, rawURL)
	filename, p, err := workspace.WriteOutput(ws.Dir, converter.OutputName(rawURL), res.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("result.status", string(res.Status)))

	s.logger.Info("url_converted",
		"workspace_id", ws.ID,
		"url", rawURL,
		"file", filename,
		"status", res.Status,
		"chars", len(res.Text),
	)
	return &model.Conversion{
		WorkspaceID: ws.ID,
		Outputs:     []model.Output{{Source: rawURL, Filename: filename, Path: p, Result: res}},
	}, nil
}

func (s *conversionService) ConvertUploads(ctx context.Context, uploads []model.Upload) (*model.Conversion, error) {
	if !anyNamed(uploads) {
		return nil, ErrNoFiles
	}
	ctx, span := s.tracer.Start(ctx, "ConversionService.ConvertUploads", trace.WithAttributes(attribute.Int("uploads", len(uploads))))
	defer span.End()

	ws, err := s.workspaces.Create()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer s.workspaces.Release(ws.ID)

	conv := &model.Conversion{WorkspaceID: ws.ID}
	for _, u := range uploads {
		if u.Filename == "" {
			continue
		}
		if !converter.Allowed(u.Filename) {
			conv.Warnings = append(conv.Warnings, fmt.Sprintf("File type not supported: %s", u.Filename))
			continue
		}
		outputs, err := s.convertUpload(ctx, ws, u)
		if err != nil {
			s.logger.Warn("upload_conversion_failed", "workspace_id", ws.ID, "file", u.Filename, "error", err)
			conv.Warnings = append(conv.Warnings, fmt.Sprintf("Error converting %s: %v", u.Filename, err))
			continue
		}
		conv.Outputs = append(conv.Outputs, outputs...)
	}

	span.SetAttributes(attribute.Int("outputs", len(conv.Outputs)), attribute.Int("warnings", len(conv.Warnings)))
	if len(conv.Outputs) == 0 {
		return conv, ErrNothingConverted
	}
	if err := s.finish(ws, conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return conv, nil
}

func (s *conversionService) ConvertFile(ctx context.Context, upload model.Upload) (*model.Conversion, error) {
	if upload.Filename == "" {
		return nil, ErrNoFiles
	}
	if !converter.Allowed(upload.Filename) {
		return nil, ErrUnsupportedType
	}
	ctx, span := s.tracer.Start(ctx, "ConversionService.ConvertFile", trace.WithAttributes(attribute.String("file", upload.Filename)))
	defer span.End()

	ws, err := s.workspaces.Create()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer s.workspaces.Release(ws.ID)

	outputs, err := s.convertUpload(ctx, ws, upload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	conv := &model.Conversion{WorkspaceID: ws.ID, Outputs: outputs}
	if len(conv.Outputs) == 0 {
		return conv, ErrNothingConverted
	}
	if err := s.finish(ws, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *conversionService) OpenFile(_ context.Context, workspaceID, filename string) (string, error) {
	ws, err := s.workspaces.Open(workspaceID)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidID) || errors.Is(err, workspace.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer s.workspaces.Release(ws.ID)

	p, err := workspace.FilePath(ws, filename)
	switch {
	case errors.Is(err, workspace.ErrInvalidName):
		return "", ErrInvalidFilename
	case errors.Is(err, workspace.ErrNoFile):
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	return p, nil
}

// convertUpload stages u under the workspace input directory and converts it.
// Archives expand to one output per member and are removed afterwards.
func (s *conversionService) convertUpload(ctx context.Context, ws model.Workspace, u model.Upload) ([]model.Output, error) {
	start := time.Now()
	inputDir := filepath.Join(ws.Dir, workspace.InputDir)
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create input directory: %w", err)
	}

	name := SanitizeFilename(u.Filename)
	staged := filepath.Join(inputDir, workspace.UniqueName(inputDir, name))
	if err := stage(staged, u.Reader); err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	if converter.Detect(name) == converter.FormatArchive {
		outputs := s.archives.Process(ctx, staged, ws.Dir)
		if err := os.Remove(staged); err != nil {
			s.logger.Warn("archive_remove_failed", "workspace_id", ws.ID, "file", name, "error", err)
		}
		s.logger.Info("archive_converted", "workspace_id", ws.ID, "file", name, "outputs", len(outputs),
			"duration_ms", time.Since(start).Milliseconds())
		return outputs, nil
	}

	res := s.conv.Convert(ctx, staged)
	filename, p, err := workspace.WriteOutput(ws.Dir, stem+".md", res.Text)
	if err != nil {
		return nil, err
	}
	s.logger.Info("file_converted",
		"workspace_id", ws.ID,
		"file", name,
		"output", filename,
		"status", res.Status,
		"bytes", u.Size,
		"chars", len(res.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return []model.Output{{Source: u.Filename, Filename: filename, Path: p, Result: res}}, nil
}

// finish bundles several outputs into BundleName.
func (s *conversionService) finish(ws model.Workspace, conv *model.Conversion) error {
	if len(conv.Outputs) < 2 {
		return nil
	}
	if err := writeBundle(filepath.Join(ws.Dir, BundleName), conv.Outputs); err != nil {
		return fmt.Errorf("bundle outputs: %w", err)
	}
	conv.Bundle = BundleName
	return nil
}

func stage(target string, r io.Reader) error {
	if r == nil {
		return fmt.Errorf("stage %s: no content", filepath.Base(target))
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(target), err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(target), err)
	}
	return nil
}

func writeBundle(target string, outputs []model.Output) (err error) {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	for _, o := range outputs {
		if o.Path == "" {
			continue
		}
		if err := addToBundle(zw, o); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addToBundle(zw *zip.Writer, o model.Output) error {
	src, err := os.Open(o.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: o.Filename, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func anyNamed(uploads []model.Upload) bool {
	for _, u := range uploads {
		if u.Filename != "" {
			return true
		}
	}
	return false
}
