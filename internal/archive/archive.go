// Package archive converts every supported member of an uploaded ZIP file.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"docconvert/internal/converter"
	"docconvert/internal/logging"
	"docconvert/internal/model"
	"docconvert/internal/workspace"
)

// DefaultMaxEntryBytes bounds the uncompressed size of a single member.
const DefaultMaxEntryBytes = 250 * 1024 * 1024

// Converter converts one extracted file.
type Converter interface {
	Convert(ctx context.Context, path string) model.ConversionResult
}

// Processor extracts archive members into a workspace and converts them one by one.
type Processor struct {
	conv          Converter
	logger        *slog.Logger
	maxEntryBytes int64
}

// New returns a Processor. A non-positive maxEntryBytes selects DefaultMaxEntryBytes.
func New(conv Converter, logger *slog.Logger, maxEntryBytes int64) *Processor {
	if logger == nil {
		logger = logging.Discard()
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	return &Processor{conv: conv, logger: logger, maxEntryBytes: maxEntryBytes}
}

// Process converts the members of archivePath in archive order and writes one
// markdown file per member into dir. Members are extracted under
// dir/input/<archive-stem>/. Problems with a single member become an error
// Output for that member; an unreadable archive yields one error Output.
func (p *Processor) Process(ctx context.Context, archivePath, dir string) []model.Output {
	name := filepath.Base(archivePath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	// ErrInsecurePath still returns a usable reader; such members are rejected one by one.
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		p.logger.Warn("archive_open_failed", "archive", name, "error", err)
		return []model.Output{p.write(dir, name, stem, model.Failure("Error processing %s: %v", name, err))}
	}
	defer zr.Close()

	root := filepath.Join(dir, workspace.InputDir, stem)
	var outputs []model.Output
	for _, f := range zr.File {
		if ctx.Err() != nil {
			p.logger.Warn("archive_cancelled", "archive", name, "error", ctx.Err())
			break
		}
		if out, ok := p.entry(ctx, f, root, dir); ok {
			outputs = append(outputs, out)
		}
	}
	p.logger.Info("archive_processed", "archive", name, "entries", len(zr.File), "outputs", len(outputs))
	return outputs
}

func (p *Processor) entry(ctx context.Context, f *zip.File, root, dir string) (model.Output, bool) {
	member := strings.ReplaceAll(f.Name, `\`, "/")
	if f.FileInfo().IsDir() || strings.HasSuffix(member, "/") {
		return model.Output{}, false
	}
	base := path.Base(member)
	stem := strings.TrimSuffix(base, path.Ext(base))

	switch {
	case strings.HasPrefix(base, "."):
		return model.Output{}, false
	case !converter.Allowed(base):
		p.logger.Warn("archive_entry_unsupported", "entry", member)
		return model.Output{}, false
	case converter.Detect(base) == converter.FormatArchive:
		p.logger.Warn("archive_entry_nested", "entry", member)
		return model.Output{}, false
	}

	target, ok := within(root, member)
	if !ok {
		p.logger.Warn("archive_entry_unsafe", "entry", member)
		return model.Output{}, false
	}

	if f.UncompressedSize64 > uint64(p.maxEntryBytes) {
		return p.write(dir, member, stem, model.Failure("Error: %s exceeds the maximum entry size of %dMB", base, p.maxEntryBytes/(1024*1024))), true
	}
	if err := p.extract(f, target); err != nil {
		p.logger.Warn("archive_entry_extract_failed", "entry", member, "error", err)
		return p.write(dir, member, stem, model.Failure("Error: %v", err)), true
	}

	res := p.conv.Convert(ctx, target)
	if res.Failed() {
		p.logger.Warn("archive_entry_failed", "entry", member, "reason", res.Text)
	}
	return p.write(dir, member, stem, res), true
}

// within joins member onto root and reports whether the result stays inside root.
func within(root, member string) (string, bool) {
	if path.IsAbs(member) || filepath.IsAbs(filepath.FromSlash(member)) {
		return "", false
	}
	target := filepath.Join(root, filepath.FromSlash(member))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func (p *Processor) extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	// The header size can lie; the copy is capped independently.
	n, err := io.Copy(out, io.LimitReader(rc, p.maxEntryBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > p.maxEntryBytes {
		return fmt.Errorf("%s exceeds the maximum entry size", path.Base(f.Name))
	}
	return nil
}

// write stores res as <stem>.md (deduplicated) in dir.
func (p *Processor) write(dir, source, stem string, res model.ConversionResult) model.Output {
	filename, target, err := workspace.WriteOutput(dir, stem+".md", res.Text)
	out := model.Output{Source: source, Filename: filename, Path: target, Result: res}
	if err != nil {
		p.logger.Error("archive_output_write_failed", "file", filename, "error", err)
		out.Result = model.Failure("Error: could not write %s: %v", filename, err)
	}
	return out
}
