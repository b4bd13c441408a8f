package converter

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// kerningSpace is the TJ displacement, in thousandths of text space, read as a word gap.
const kerningSpace = -250

type pdfOperand struct {
	text    string
	num     float64
	isText  bool
	isNum   bool
	inArray bool
}

// contentStreamText pulls shown text out of a page content stream. Text-showing
// operators (Tj, TJ, ', ") contribute strings; line moves (Td, TD, T*, ET) break lines.
func contentStreamText(data []byte) string {
	var (
		sb       strings.Builder
		operands []pdfOperand
		inArray  bool
	)
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for i := 0; i < len(data); {
		ch := data[i]
		switch {
		case isPDFSpace(ch):
			i++
		case ch == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case ch == '(':
			raw, next := readLiteralString(data, i)
			operands = append(operands, pdfOperand{text: decodePDFText(raw), isText: true, inArray: inArray})
			i = next
		case ch == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case ch == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case ch == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				return finishPDFText(sb.String())
			}
			raw := decodeHexString(data[i+1 : i+end])
			operands = append(operands, pdfOperand{text: decodePDFText(raw), isText: true, inArray: inArray})
			i += end + 1
		case ch == '[':
			inArray = true
			i++
		case ch == ']':
			inArray = false
			i++
		case ch == '/':
			j := i + 1
			for j < len(data) && !isPDFSpace(data[j]) && !isPDFDelimiter(data[j]) {
				j++
			}
			operands = append(operands, pdfOperand{})
			i = j
		default:
			j := i
			for j < len(data) && !isPDFSpace(data[j]) && !isPDFDelimiter(data[j]) {
				j++
			}
			if j == i {
				i++
				continue
			}
			tok := string(data[i:j])
			i = j
			if n, err := strconv.ParseFloat(tok, 64); err == nil {
				operands = append(operands, pdfOperand{num: n, isNum: true, inArray: inArray})
				continue
			}

			switch tok {
			case "Tj":
				writeOperandText(&sb, operands)
			case "TJ":
				for _, op := range operands {
					switch {
					case op.isText:
						sb.WriteString(op.text)
					case op.isNum && op.inArray && op.num <= kerningSpace:
						sb.WriteByte(' ')
					}
				}
			case "'", `"`:
				newline()
				writeOperandText(&sb, operands)
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if len(operands) >= 2 && operands[len(operands)-1].isNum && operands[len(operands)-1].num != 0 {
					newline()
				} else if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "ID":
				// Inline image data runs until EI.
				end := bytes.Index(data[i:], []byte("EI"))
				if end < 0 {
					return finishPDFText(sb.String())
				}
				i += end + 2
			}
			operands = operands[:0]
			inArray = false
		}
	}
	return finishPDFText(sb.String())
}

func writeOperandText(sb *strings.Builder, operands []pdfOperand) {
	for _, op := range operands {
		if op.isText {
			sb.WriteString(op.text)
		}
	}
}

// readLiteralString reads a balanced (...) string starting at data[start] and
// returns its unescaped bytes and the index after the closing parenthesis.
func readLiteralString(data []byte, start int) ([]byte, int) {
	var out []byte
	depth := 0
	for i := start; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r', '\n':
				if e == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		case c == '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return out, i + 1
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out, len(data)
}

func decodeHexString(h []byte) []byte {
	clean := make([]byte, 0, len(h)+1)
	for _, c := range h {
		if !isPDFSpace(c) {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(out, clean)
	if err != nil {
		return nil
	}
	return out[:n]
}

// decodePDFText reads UTF-16BE strings by their byte order mark and treats
// everything else as a single-byte Windows-1252 string.
func decodePDFText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u := make([]uint16, 0, len(raw)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u = append(u, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u))
	}
	var sb strings.Builder
	for _, b := range raw {
		sb.WriteRune(charmap.Windows1252.DecodeByte(b))
	}
	return sb.String()
}

// finishPDFText drops unprintable runes and trims every line.
func finishPDFText(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '\n' || r == ' ' || r == '\t' || unicode.IsPrint(r) {
			sb.WriteRune(r)
		}
	}
	lines := strings.Split(sb.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
