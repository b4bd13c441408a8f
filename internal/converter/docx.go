package converter

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"docconvert/internal/model"
)

func (c *Converter) convertDOCX(_ context.Context, path string) model.ConversionResult {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return model.Failure("Error converting DOCX: %v", err)
	}
	defer zr.Close()

	md, err := docxMarkdown(&zr.Reader)
	if err != nil {
		return model.Failure("Error converting DOCX: %v", err)
	}
	return model.Success(md)
}

// docxMarkdown renders body paragraphs first, then every top-level table.
func docxMarkdown(zr *zip.Reader) (string, error) {
	rc, err := openZipMember(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		body     strings.Builder
		tables   [][][]string
		row      []string
		cell     strings.Builder
		para     strings.Builder
		style    string
		tblDepth int
		inText   bool
		cellHas  bool
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
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					tables = append(tables, nil)
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					cellHas = false
				}
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if tblDepth > 0 {
					if cellHas {
						cell.WriteByte('\n')
					}
					cell.WriteString(para.String())
					cellHas = true
					continue
				}
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if prefix, ok := docxHeading(style); ok {
					body.WriteString(prefix + " " + text + "\n\n")
				} else {
					body.WriteString(text + "\n\n")
				}
			case "tc":
				if tblDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tblDepth == 1 {
					tables[len(tables)-1] = append(tables[len(tables)-1], row)
				}
			case "tbl":
				tblDepth--
			}
		}
	}

	for _, tbl := range tables {
		body.WriteString("\n")
		body.WriteString(pipeTable(tbl))
		body.WriteString("\n")
	}
	return body.String(), nil
}

// docxHeading maps a Heading style to its markdown prefix. "Heading2" and
// "Heading 2" become "##"; a heading style without a numeric level becomes "##".
func docxHeading(style string) (string, bool) {
	if len(style) < len("heading") || !strings.EqualFold(style[:len("heading")], "heading") {
		return "", false
	}
	level := strings.TrimSpace(style[len("heading"):])
	n, err := strconv.Atoi(level)
	if err != nil || n <= 0 {
		return "##", true
	}
	return strings.Repeat("#", n), true
}
