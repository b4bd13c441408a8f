// Package converter turns documents, web pages and images into markdown-flavoured text.
//
// Every entry point returns a model.ConversionResult. Failures inside a format
// handler, panics included, come back as error results and are never returned
// as Go errors.
package converter

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docconvert/internal/logging"
	"docconvert/internal/model"
	"docconvert/internal/storage"
)

const (
	defaultMaxPDFBytes   = 125 * 1024 * 1024
	defaultSheetRowLimit = 100
	defaultFetchTimeout  = 30 * time.Second
)

// Format identifies which handler processes a file.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatRTF      Format = "rtf"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatXLSX     Format = "xlsx"
	FormatPPTX     Format = "pptx"
	FormatODT      Format = "odt"
	FormatODS      Format = "ods"
	FormatODP      Format = "odp"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXML      Format = "xml"
	FormatImage    Format = "image"
	FormatArchive  Format = "zip"
)

var extensionFormats = map[string]Format{
	".txt":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".rtf":      FormatRTF,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".doc":      FormatDOCX,
	".xlsx":     FormatXLSX,
	".xls":      FormatXLSX,
	".pptx":     FormatPPTX,
	".ppt":      FormatPPTX,
	".odt":      FormatODT,
	".ods":      FormatODS,
	".odp":      FormatODP,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".csv":      FormatCSV,
	".json":     FormatJSON,
	".xml":      FormatXML,
	".png":      FormatImage,
	".jpg":      FormatImage,
	".jpeg":     FormatImage,
	".gif":      FormatImage,
	".bmp":      FormatImage,
	".tiff":     FormatImage,
	".webp":     FormatImage,
	".zip":      FormatArchive,
}

// formatLabels name formats the way error messages refer to them.
var formatLabels = map[Format]string{
	FormatText:     "text",
	FormatMarkdown: "Markdown",
	FormatRTF:      "RTF",
	FormatPDF:      "PDF",
	FormatDOCX:     "DOCX",
	FormatXLSX:     "Excel",
	FormatPPTX:     "PowerPoint",
	FormatODT:      "ODT",
	FormatODS:      "ODS",
	FormatODP:      "ODP",
	FormatHTML:     "HTML",
	FormatCSV:      "CSV",
	FormatJSON:     "JSON",
	FormatXML:      "XML",
	FormatImage:    "image",
	FormatArchive:  "ZIP",
}

// Label is the human name of the format.
func (f Format) Label() string {
	if l, ok := formatLabels[f]; ok {
		return l
	}
	return string(f)
}

// Detect maps a path to its Format by lower-cased extension.
// Unknown extensions are decoded as plain text.
func Detect(path string) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatText
}

// AllowedExtensions returns the accepted upload extensions without the dot, sorted.
func AllowedExtensions() []string {
	out := make([]string, 0, len(extensionFormats))
	for ext := range extensionFormats {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

// Allowed reports whether filename carries an accepted extension.
func Allowed(filename string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

type convertFunc func(ctx context.Context, path string) model.ConversionResult

// Options configures a Converter. Zero values select the defaults.
type Options struct {
	MaxPDFBytes   int64
	SheetRowLimit int
	FetchTimeout  time.Duration
	// HTMLMarkdown renders HTML files and web pages as structural markdown instead of flat text.
	HTMLMarkdown bool
	OCR          OCREngine
	Transcripts  TranscriptFetcher
	// Objects resolves s3:// URIs. Nil disables them.
	Objects    storage.Storage
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Converter dispatches files and URIs to per-format handlers. It is safe for concurrent use.
type Converter struct {
	maxPDFBytes   int64
	sheetRowLimit int
	htmlMarkdown  bool
	ocr           OCREngine
	transcripts   TranscriptFetcher
	objects       storage.Storage
	client        *http.Client
	logger        *slog.Logger
	sanitizer     *bluemonday.Policy
	markdown      *htmlmd.Converter
	handlers      map[Format]convertFunc
}

// New builds a Converter from opts.
func New(opts Options) *Converter {
	c := &Converter{
		maxPDFBytes:   opts.MaxPDFBytes,
		sheetRowLimit: opts.SheetRowLimit,
		htmlMarkdown:  opts.HTMLMarkdown,
		ocr:           opts.OCR,
		transcripts:   opts.Transcripts,
		objects:       opts.Objects,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
		sanitizer:     bluemonday.StrictPolicy(),
		markdown: htmlmd.NewConverter(
			htmlmd.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	if c.maxPDFBytes <= 0 {
		c.maxPDFBytes = defaultMaxPDFBytes
	}
	if c.sheetRowLimit <= 0 {
		c.sheetRowLimit = defaultSheetRowLimit
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.client == nil {
		timeout := opts.FetchTimeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		c.client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.ocr == nil {
		c.ocr = unavailableOCR{}
	}
	if c.transcripts == nil {
		c.transcripts = NewTimedTextFetcher(c.client)
	}

	c.handlers = map[Format]convertFunc{
		FormatText:     c.convertText,
		FormatMarkdown: c.convertMarkdown,
		FormatRTF:      c.convertRTF,
		FormatPDF:      c.convertPDF,
		FormatDOCX:     c.convertDOCX,
		FormatXLSX:     c.convertXLSX,
		FormatPPTX:     c.convertPPTX,
		FormatODT:      c.convertODT,
		FormatODS:      c.convertODS,
		FormatODP:      c.convertODP,
		FormatHTML:     c.convertHTML,
		FormatCSV:      c.convertCSV,
		FormatJSON:     c.convertJSON,
		FormatXML:      c.convertXML,
		FormatImage:    c.convertImage,
	}
	return c
}

// Convert converts the file at path according to its extension.
func (c *Converter) Convert(ctx context.Context, path string) model.ConversionResult {
	format := Detect(path)
	fn, ok := c.handlers[format]
	if !ok {
		return model.Failure("Error: %s files cannot be converted directly", format.Label())
	}
	return c.guard(format.Label(), path, func() model.ConversionResult { return fn(ctx, path) })
}

// guard turns a panicking handler into an error result.
func (c *Converter) guard(label, source string, fn func() model.ConversionResult) (res model.ConversionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("converter_panic", "kind", label, "source", source, "panic", r)
			res = model.Failure("Error converting %s: %v", label, r)
		}
	}()
	return fn()
}
