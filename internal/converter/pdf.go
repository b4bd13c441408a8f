package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docconvert/internal/model"
)

const megabyte = 1024 * 1024

var errNoPages = errors.New("document has no pages")

// pdfStrategy is one way of reading a PDF. Strategies run in order until one yields text.
type pdfStrategy struct {
	name string
	// maxPages caps how many pages are read; zero reads all of them.
	maxPages int
	// tolerant skips pages that fail instead of failing the whole strategy.
	tolerant bool
	open     func(rs io.ReadSeeker) (*pdfmodel.Context, error)
}

var pdfStrategies = []pdfStrategy{
	{
		name: "default",
		open: func(rs io.ReadSeeker) (*pdfmodel.Context, error) {
			return api.ReadValidateAndOptimize(rs, pdfmodel.NewDefaultConfiguration())
		},
	},
	{
		name:     "page-capped",
		maxPages: 100,
		open: func(rs io.ReadSeeker) (*pdfmodel.Context, error) {
			conf := pdfmodel.NewDefaultConfiguration()
			conf.ValidationMode = pdfmodel.ValidationRelaxed
			pdfCtx, err := api.ReadContext(rs, conf)
			if err != nil {
				return nil, err
			}
			if err := api.ValidateContext(pdfCtx); err != nil {
				return nil, err
			}
			return pdfCtx, nil
		},
	},
	{
		name:     "low-level",
		maxPages: 50,
		tolerant: true,
		open: func(rs io.ReadSeeker) (*pdfmodel.Context, error) {
			conf := pdfmodel.NewDefaultConfiguration()
			conf.ValidationMode = pdfmodel.ValidationRelaxed
			return api.ReadContext(rs, conf)
		},
	},
}

func (c *Converter) convertPDF(ctx context.Context, path string) model.ConversionResult {
	info, err := os.Stat(path)
	if err != nil {
		return model.Failure("Error converting PDF: %v. This may be due to a corrupted file, password protection, or unsupported PDF format.", err)
	}
	if info.Size() > c.maxPDFBytes {
		return model.Failure("Error: PDF file too large (%dMB). Maximum size is %dMB.", info.Size()/megabyte, c.maxPDFBytes/megabyte)
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Failure("Error converting PDF: %v. This may be due to a corrupted file, password protection, or unsupported PDF format.", err)
	}
	defer f.Close()

	var (
		text     string
		failures []string
		anyRan   bool
	)
	for _, s := range pdfStrategies {
		if err := ctx.Err(); err != nil {
			return model.Failure("Error converting PDF: %v", err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return model.Failure("Error converting PDF: %v", err)
		}
		out, err := c.runPDFStrategy(ctx, s, f)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.name, err))
			c.logger.Debug("pdf_strategy_failed", "path", path, "strategy", s.name, "error", err)
			continue
		}
		anyRan = true
		if strings.TrimSpace(out) != "" {
			text = out
			break
		}
		c.logger.Debug("pdf_strategy_empty", "path", path, "strategy", s.name)
	}

	if !anyRan {
		c.logger.Warn("pdf_extraction_failed", "path", path, "diagnostics", failures)
		return model.Failure("Error: Could not extract text from PDF. All extraction methods failed. The file may be corrupted, password-protected, or contain only images.")
	}
	if strings.TrimSpace(text) == "" {
		return model.Warning("Warning: No text could be extracted from this PDF. The PDF might contain only images or be password protected.")
	}
	return model.Success(paragraphs(text))
}

func (c *Converter) runPDFStrategy(ctx context.Context, s pdfStrategy, rs io.ReadSeeker) (string, error) {
	pdfCtx, err := s.open(rs)
	if err != nil {
		return "", err
	}
	if pdfCtx.PageCount == 0 {
		return "", errNoPages
	}

	pages := pdfCtx.PageCount
	if s.maxPages > 0 && pages > s.maxPages {
		pages = s.maxPages
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= pages; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := pageContentText(pdfCtx, pageNr)
		if err != nil {
			if s.tolerant {
				continue
			}
			return "", fmt.Errorf("page %d: %w", pageNr, err)
		}
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

// pageContentText reads the content stream of one page. Parser panics on malformed
// pages are reported as errors.
func pageContentText(pdfCtx *pdfmodel.Context, pageNr int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return contentStreamText(data), nil
}
