package converter

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"docconvert/internal/model"
)

// maxRepeat caps number-columns-repeated / number-rows-repeated expansion.
const maxRepeat = 256

// odfContent opens content.xml of an OpenDocument file and hands a decoder to fn.
func odfContent(path string, fn func(dec *xml.Decoder) (string, error)) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	rc, err := openZipMember(&zr.Reader, "content.xml")
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return fn(xml.NewDecoder(rc))
}

// odfRun handles the inline elements that stand for whitespace.
func odfRun(sb *strings.Builder, se xml.StartElement) {
	switch se.Name.Local {
	case "s":
		n := 1
		if v, err := strconv.Atoi(attr(se, "c")); err == nil && v > 0 {
			n = v
		}
		sb.WriteString(strings.Repeat(" ", n))
	case "tab":
		sb.WriteByte('\t')
	case "line-break":
		sb.WriteByte('\n')
	}
}

func repeatCount(se xml.StartElement, name string) int {
	n, err := strconv.Atoi(attr(se, name))
	if err != nil || n < 1 {
		return 1
	}
	if n > maxRepeat {
		return maxRepeat
	}
	return n
}

func (c *Converter) convertODT(_ context.Context, path string) model.ConversionResult {
	md, err := odfContent(path, odtMarkdown)
	if err != nil {
		return model.Failure("Error converting ODT: %v", err)
	}
	return model.Success(md)
}

// odtMarkdown renders headings, paragraphs and tables in document order.
func odtMarkdown(dec *xml.Decoder) (string, error) {
	var (
		out      strings.Builder
		text     strings.Builder
		cell     strings.Builder
		table    [][]string
		row      []string
		level    int
		inBlock  int
		tblDepth int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "h", "p":
				if inBlock == 0 {
					text.Reset()
					level = 0
					if t.Name.Local == "h" {
						level = 1
						if n, err := strconv.Atoi(attr(t, "outline-level")); err == nil && n > 0 {
							level = n
						}
					}
				}
				inBlock++
			case "table":
				tblDepth++
				if tblDepth == 1 {
					table = nil
				}
			case "table-row":
				if tblDepth == 1 {
					row = nil
				}
			case "table-cell":
				if tblDepth == 1 {
					cell.Reset()
				}
			default:
				if inBlock > 0 {
					odfRun(&text, t)
				}
			}
		case xml.CharData:
			if inBlock > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "h", "p":
				inBlock--
				if inBlock > 0 {
					continue
				}
				s := strings.TrimSpace(text.String())
				if tblDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteByte('\n')
					}
					cell.WriteString(s)
					continue
				}
				if s == "" {
					continue
				}
				if level > 0 {
					out.WriteString(strings.Repeat("#", level) + " ")
				}
				out.WriteString(s + "\n\n")
			case "table-cell":
				if tblDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "table-row":
				if tblDepth == 1 {
					table = append(table, row)
				}
			case "table":
				tblDepth--
				if tblDepth == 0 && len(table) > 0 {
					out.WriteString(pipeTable(table))
					out.WriteString("\n")
				}
			}
		}
	}
	return out.String(), nil
}

func (c *Converter) convertODS(_ context.Context, path string) model.ConversionResult {
	md, err := odfContent(path, func(dec *xml.Decoder) (string, error) {
		return odsMarkdown(dec, c.sheetRowLimit)
	})
	if err != nil {
		return model.Failure("Error converting ODS: %v", err)
	}
	return model.Success(md)
}

// odsMarkdown renders every sheet like the XLSX handler does.
func odsMarkdown(dec *xml.Decoder, limit int) (string, error) {
	var (
		out       strings.Builder
		rows      [][]string
		row       []string
		cell      strings.Builder
		rowRepeat int
		colRepeat int
		inCell    bool
		inPara    bool
		depth     int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				depth++
				if depth == 1 {
					rows = nil
					out.WriteString("# " + attr(t, "name") + "\n\n")
				}
			case "table-row":
				if depth == 1 {
					row = nil
					rowRepeat = repeatCount(t, "number-rows-repeated")
				}
			case "table-cell", "covered-table-cell":
				if depth == 1 {
					cell.Reset()
					inCell = true
					colRepeat = repeatCount(t, "number-columns-repeated")
				}
			case "p":
				if inCell {
					if inPara || cell.Len() > 0 {
						cell.WriteByte('\n')
					}
					inPara = true
				}
			default:
				if inCell {
					odfRun(&cell, t)
				}
			}
		case xml.CharData:
			if inCell && inPara {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara = false
			case "table-cell", "covered-table-cell":
				if depth == 1 {
					v := strings.TrimSpace(cell.String())
					for i := 0; i < colRepeat; i++ {
						row = append(row, v)
					}
					inCell = false
				}
			case "table-row":
				if depth == 1 && rowHasContent(row) {
					row = trimTrailingEmpty(row)
					for i := 0; i < rowRepeat; i++ {
						rows = append(rows, row)
					}
				}
			case "table":
				depth--
				if depth == 0 {
					if kept := sheetRows(rows, limit); len(kept) > 0 {
						out.WriteString(pipeTable(kept))
						out.WriteString("\n")
					}
				}
			}
		}
	}
	return out.String(), nil
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func (c *Converter) convertODP(_ context.Context, path string) model.ConversionResult {
	md, err := odfContent(path, odpMarkdown)
	if err != nil {
		return model.Failure("Error converting ODP: %v", err)
	}
	return model.Success(md)
}

// odpMarkdown lists the text of every frame on every page, skipping speaker notes.
func odpMarkdown(dec *xml.Decoder) (string, error) {
	var (
		out     strings.Builder
		frame   strings.Builder
		slide   int
		inFrame int
		inNotes int
		inPara  bool
	)
	out.WriteString("# Presentation\n\n")
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "page":
				slide++
				fmt.Fprintf(&out, "## Slide %d\n\n", slide)
			case "notes":
				inNotes++
			case "frame", "custom-shape":
				if inNotes == 0 {
					if inFrame == 0 {
						frame.Reset()
					}
					inFrame++
				}
			case "p", "h":
				if inFrame > 0 {
					if frame.Len() > 0 {
						frame.WriteByte('\n')
					}
					inPara = true
				}
			default:
				if inFrame > 0 && inPara {
					odfRun(&frame, t)
				}
			}
		case xml.CharData:
			if inFrame > 0 && inPara {
				frame.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "notes":
				inNotes--
			case "p", "h":
				inPara = false
			case "frame", "custom-shape":
				if inNotes == 0 && inFrame > 0 {
					inFrame--
					if inFrame == 0 {
						if s := strings.TrimSpace(frame.String()); s != "" {
							out.WriteString(s + "\n\n")
						}
					}
				}
			}
		}
	}
	return out.String(), nil
}
