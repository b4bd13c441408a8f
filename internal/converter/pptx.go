package converter

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"docconvert/internal/model"
)

func (c *Converter) convertPPTX(_ context.Context, path string) model.ConversionResult {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return model.Failure("Error converting PowerPoint: %v", err)
	}
	defer zr.Close()

	var sb strings.Builder
	sb.WriteString("# Presentation\n\n")
	for i, name := range slideOrder(&zr.Reader) {
		shapes, err := slideShapeTexts(&zr.Reader, name)
		if err != nil {
			return model.Failure("Error converting PowerPoint: %v", err)
		}
		fmt.Fprintf(&sb, "## Slide %d\n\n", i+1)
		for _, text := range shapes {
			sb.WriteString(text + "\n\n")
		}
	}
	return model.Success(sb.String())
}

// slideShapeTexts returns the trimmed, non-empty text of every shape on a slide.
// Paragraphs inside a shape are separated by newlines.
func slideShapeTexts(zr *zip.Reader, name string) ([]string, error) {
	rc, err := openZipMember(zr, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		out      []string
		shape    strings.Builder
		depth    int
		inText   bool
		paraSeen bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				depth++
				if depth == 1 {
					shape.Reset()
					paraSeen = false
				}
			case "p":
				if depth > 0 && t.Name.Space != "" && strings.Contains(t.Name.Space, "drawingml") {
					if paraSeen {
						shape.WriteByte('\n')
					}
					paraSeen = true
				}
			case "t":
				inText = depth > 0
			case "br":
				if depth > 0 {
					shape.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				shape.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "sp":
				depth--
				if depth == 0 {
					if text := strings.TrimSpace(shape.String()); text != "" {
						out = append(out, text)
					}
				}
			}
		}
	}
	return out, nil
}
