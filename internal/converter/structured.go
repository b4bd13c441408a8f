package converter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"docconvert/internal/model"
)

func (c *Converter) convertCSV(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting CSV: %v", err)
	}
	src, err := decodeText(data)
	if err != nil {
		return model.Failure("Error converting CSV: %v", err)
	}

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(src, "\ufeff")))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return model.Failure("Error converting CSV: %v", err)
	}
	rows := sheetRows(records, 0)
	if len(rows) == 0 {
		return model.Failure("Error converting CSV: No columns to parse from file")
	}
	return model.Success(strings.TrimSuffix(pipeTable(rows), "\n"))
}

func (c *Converter) convertJSON(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting JSON: %v", err)
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Failure("Error converting JSON: %v", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return model.Failure("Error converting JSON: %v", err)
	}
	return model.Success("# JSON Data\n\n```json\n" + buf.String() + "\n```")
}

func (c *Converter) convertXML(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting XML: %v", err)
	}
	pretty, err := prettyXML(data)
	if err != nil {
		return model.Failure("Error converting XML: %v", err)
	}
	return model.Success("# XML Data\n\n```xml\n" + strings.TrimRight(pretty, "\n") + "\n```")
}

var (
	errNoRootElement = errors.New("document has no root element")
	xmlTextEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	xmlAttrEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;")
)

func newXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// prettyXML re-indents the root element with two spaces per level. Namespace
// prefixes are written as they appear in the source; the XML declaration,
// doctype and anything outside the root are dropped.
func prettyXML(data []byte) (string, error) {
	// Token enforces well-formedness; RawToken below keeps the original prefixes.
	check := newXMLDecoder(data)
	sawRoot := false
	for {
		tok, err := check.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawRoot = true
		}
	}
	if !sawRoot {
		return "", errNoRootElement
	}

	var toks []xml.Token
	dec := newXMLDecoder(data)
	depth := 0
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			toks = append(toks, t.Copy())
		case xml.EndElement:
			depth--
			toks = append(toks, t)
		case xml.CharData:
			if depth > 0 && len(bytes.TrimSpace(t)) > 0 {
				toks = append(toks, t.Copy())
			}
		case xml.Comment:
			if depth > 0 {
				toks = append(toks, t.Copy())
			}
		case xml.ProcInst:
			if depth > 0 && t.Target != "xml" {
				toks = append(toks, t.Copy())
			}
		}
	}

	var sb strings.Builder
	indent := func(level int) { sb.WriteString(strings.Repeat("  ", level)) }
	level := 0
	for i := 0; i < len(toks); i++ {
		switch t := toks[i].(type) {
		case xml.StartElement:
			indent(level)
			writeStartTag(&sb, t)
			if i+1 < len(toks) {
				if _, ok := toks[i+1].(xml.EndElement); ok {
					sb.WriteString("/>\n")
					i++
					continue
				}
				if text, ok := toks[i+1].(xml.CharData); ok && i+2 < len(toks) {
					if end, ok := toks[i+2].(xml.EndElement); ok {
						sb.WriteString(">")
						sb.WriteString(xmlTextEscaper.Replace(strings.TrimSpace(string(text))))
						sb.WriteString("</" + rawName(end.Name) + ">\n")
						i += 2
						continue
					}
				}
			}
			sb.WriteString(">\n")
			level++
		case xml.EndElement:
			level--
			indent(level)
			sb.WriteString("</" + rawName(t.Name) + ">\n")
		case xml.CharData:
			indent(level)
			sb.WriteString(xmlTextEscaper.Replace(strings.TrimSpace(string(t))))
			sb.WriteByte('\n')
		case xml.Comment:
			indent(level)
			sb.WriteString("<!--" + string(t) + "-->\n")
		case xml.ProcInst:
			indent(level)
			sb.WriteString("<?" + t.Target + " " + string(t.Inst) + "?>\n")
		}
	}
	return sb.String(), nil
}

func writeStartTag(sb *strings.Builder, se xml.StartElement) {
	sb.WriteString("<" + rawName(se.Name))
	for _, a := range se.Attr {
		sb.WriteString(" " + rawName(a.Name) + `="` + xmlAttrEscaper.Replace(a.Value) + `"`)
	}
}

// rawName joins a RawToken name, whose Space holds the source prefix.
func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
