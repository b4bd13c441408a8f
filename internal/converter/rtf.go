package converter

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"docconvert/internal/model"
)

var errUnbalancedRTF = errors.New("unbalanced RTF groups")

// rtfDestinations are groups whose content is never document text.
var rtfDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true, "pict": true,
	"header": true, "headerl": true, "headerr": true, "headerf": true,
	"footer": true, "footerl": true, "footerr": true, "footerf": true,
	"object": true, "objdata": true, "themedata": true, "colorschememapping": true,
	"latentstyles": true, "datastore": true, "xmlnstbl": true, "listtable": true,
	"listoverridetable": true, "rsidtbl": true, "generator": true, "filetbl": true,
	"revtbl": true, "fldinst": true, "xe": true, "tc": true, "template": true,
}

var rtfSymbols = map[string]string{
	"par": "\n", "line": "\n", "sect": "\n\n", "page": "\n\n", "row": "\n",
	"tab": "\t", "cell": " ", "emdash": "—", "endash": "–",
	"lquote": "‘", "rquote": "’", "ldblquote": "“", "rdblquote": "”",
	"bullet": "•", "emspace": " ", "enspace": " ",
}

var (
	rtfControlWord = regexp.MustCompile(`\\[a-z]+\d*\s?`)
	rtfBraces      = regexp.MustCompile(`[{}]`)
	rtfWhitespace  = regexp.MustCompile(`\s+`)
)

// convertRTF extracts RTF text in two tiers. rtfToText is the full parser: it
// tracks groups, skips non-text destinations and decodes \' and \u escapes.
// When it rejects the input (unbalanced groups), stripRTFControls removes
// control words and braces with regular expressions instead.
func (c *Converter) convertRTF(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting RTF: %v", err)
	}
	src, err := decodeText(data)
	if err != nil {
		return model.Failure("Error converting RTF: %v", err)
	}

	text, err := rtfToText(src)
	if err != nil {
		c.logger.Warn("rtf_tokenizer_failed", "path", path, "error", err)
		return model.Success(stripRTFControls(src))
	}
	return model.Success(paragraphs(text))
}

// stripRTFControls is the coarse fallback for documents the tokenizer rejects.
func stripRTFControls(src string) string {
	text := rtfControlWord.ReplaceAllString(src, "")
	text = rtfBraces.ReplaceAllString(text, "")
	text = rtfWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

type rtfGroup struct {
	skip bool
	uc   int
}

// rtfToText walks the RTF token stream and keeps only document text.
func rtfToText(src string) (string, error) {
	var (
		out     strings.Builder
		stack   []rtfGroup
		cur     = rtfGroup{uc: 1}
		pending int
		// groupStart is true right after "{" so the first control word can open a destination.
		groupStart bool
		ignorable  bool
	)

	emit := func(s string) {
		if pending > 0 {
			pending--
			return
		}
		if !cur.skip {
			out.WriteString(s)
		}
	}

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch ch {
		case '{':
			stack = append(stack, cur)
			groupStart, ignorable = true, false
			continue
		case '}':
			if len(stack) == 0 {
				return "", errUnbalancedRTF
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			groupStart, ignorable, pending = false, false, 0
			continue
		case '\r', '\n':
			continue
		case '\\':
			if i+1 >= len(src) {
				return "", errUnbalancedRTF
			}
			next := src[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(string(next))
				i++
			case next == '\'':
				if i+3 >= len(src) {
					return "", errUnbalancedRTF
				}
				b, err := strconv.ParseUint(src[i+2:i+4], 16, 8)
				if err != nil {
					return "", err
				}
				emit(string(charmap.Windows1252.DecodeByte(byte(b))))
				i += 3
			case next == '*':
				ignorable = true
				i++
				continue
			case next == '~':
				emit(" ")
				i++
			case next == '_':
				emit("-")
				i++
			case next == '-':
				i++
			case next == '\n' || next == '\r':
				emit("\n")
				i++
			case isASCIILetter(next):
				j := i + 1
				for j < len(src) && isASCIILetter(src[j]) {
					j++
				}
				word := src[i+1 : j]
				k := j
				if k < len(src) && (src[k] == '-' || isASCIIDigit(src[k])) {
					k++
					for k < len(src) && isASCIIDigit(src[k]) {
						k++
					}
				}
				param, hasParam := 0, k > j
				if hasParam {
					param, _ = strconv.Atoi(src[j:k])
				}
				if k < len(src) && src[k] == ' ' {
					k++
				}
				i = k - 1

				if groupStart && (ignorable || rtfDestinations[word]) {
					cur.skip = true
				}
				groupStart = false

				switch word {
				case "uc":
					if hasParam {
						cur.uc = param
					}
				case "u":
					if param < 0 {
						param += 65536
					}
					pending = 0
					emit(string(rune(param)))
					pending = cur.uc
				case "bin":
					if hasParam && param > 0 {
						i += param
					}
				default:
					if sym, ok := rtfSymbols[word]; ok {
						emit(sym)
					}
				}
				continue
			default:
				i++
			}
			groupStart = false
			continue
		}
		groupStart = false
		r, size := utf8.DecodeRuneInString(src[i:])
		emit(string(r))
		i += size - 1
	}

	if len(stack) != 0 {
		return "", errUnbalancedRTF
	}
	return out.String(), nil
}

func isASCIILetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }
