package converter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"

	"docconvert/internal/model"
)

// ErrOCRUnavailable means no OCR engine can run on this host.
var ErrOCRUnavailable = errors.New("ocr engine unavailable")

const (
	minOCRConfidence = 0.1
	minOCRTextRunes  = 2
)

// Detection is one recognised text region with a confidence in [0, 1].
type Detection struct {
	Text       string
	Confidence float64
}

// OCRParams is one detection sensitivity setting.
type OCRParams struct {
	Name string
	// PageSegMode is the tesseract page segmentation mode.
	PageSegMode int
}

// ocrParameterSets are tried in increasing sensitivity until one yields detections.
var ocrParameterSets = []OCRParams{
	{Name: "standard", PageSegMode: 3},
	{Name: "sensitive", PageSegMode: 6},
	{Name: "very-sensitive", PageSegMode: 11},
}

// OCREngine recognises text in an image file.
type OCREngine interface {
	Recognize(ctx context.Context, path string, params OCRParams) ([]Detection, error)
}

type unavailableOCR struct{}

func (unavailableOCR) Recognize(context.Context, string, OCRParams) ([]Detection, error) {
	return nil, ErrOCRUnavailable
}

func (c *Converter) convertImage(ctx context.Context, path string) model.ConversionResult {
	var detections []Detection
	for _, params := range ocrParameterSets {
		found, err := c.ocr.Recognize(ctx, path, params)
		if errors.Is(err, ErrOCRUnavailable) {
			c.logger.Warn("ocr_unavailable", "path", path)
			break
		}
		if err != nil {
			c.logger.Warn("ocr_attempt_failed", "path", path, "params", params.Name, "error", err)
			continue
		}
		c.logger.Debug("ocr_attempt", "path", path, "params", params.Name, "regions", len(found))
		if len(found) > 0 {
			detections = found
			break
		}
	}

	var accepted []string
	for _, d := range detections {
		text := strings.TrimSpace(d.Text)
		if d.Confidence > minOCRConfidence && utf8.RuneCountInString(text) >= minOCRTextRunes {
			accepted = append(accepted, text)
		}
	}
	if len(accepted) == 0 {
		return model.Warning("No text could be extracted from this image.")
	}
	return model.Success(strings.Join(accepted, "\n\n"))
}

// TesseractEngine runs the tesseract CLI and reads its TSV output.
type TesseractEngine struct {
	binary   string
	language string
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewTesseract returns an engine using binary (looked up on PATH) and language, e.g. "eng".
func NewTesseract(binary, language string) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{
		binary:   binary,
		language: language,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Recognize returns one detection per recognised line.
func (t *TesseractEngine) Recognize(ctx context.Context, path string, params OCRParams) ([]Detection, error) {
	bin, err := exec.LookPath(t.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}
	out, err := t.run(ctx, bin, path, "stdout", "-l", t.language, "--psm", strconv.Itoa(params.PageSegMode), "tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return parseTesseractTSV(out), nil
}

type tsvLineKey struct {
	page, block, par, line string
}

// parseTesseractTSV groups word rows (level 5) into lines. A line's confidence
// is the mean word confidence scaled to [0, 1].
func parseTesseractTSV(data []byte) []Detection {
	type acc struct {
		words []string
		conf  float64
		n     int
	}
	var (
		order []tsvLineKey
		lines = map[tsvLineKey]*acc{}
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}
		key := tsvLineKey{cols[1], cols[2], cols[3], cols[4]}
		a, ok := lines[key]
		if !ok {
			a = &acc{}
			lines[key] = a
			order = append(order, key)
		}
		a.words = append(a.words, word)
		a.conf += conf
		a.n++
	}

	out := make([]Detection, 0, len(order))
	for _, k := range order {
		a := lines[k]
		out = append(out, Detection{
			Text:       strings.Join(a.words, " "),
			Confidence: a.conf / float64(a.n) / 100,
		})
	}
	return out
}
