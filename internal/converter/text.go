package converter

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"docconvert/internal/model"
)

func (c *Converter) convertText(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting text: %v", err)
	}
	text, err := decodeText(data)
	if err != nil {
		return model.Failure("Error converting text: %v", err)
	}
	return model.Success(text)
}

func (c *Converter) convertMarkdown(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error reading Markdown: %v", err)
	}
	return model.Success(string(data))
}

// decodeText reads data as UTF-8, falling back to ISO-8859-1 when it is not valid UTF-8.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// flatten collapses text into a single line: each line is trimmed, split on
// double spaces, and the surviving chunks are joined with one space.
func flatten(text string) string {
	var chunks []string
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if p := strings.TrimSpace(phrase); p != "" {
				chunks = append(chunks, p)
			}
		}
	}
	return strings.Join(chunks, " ")
}

// paragraphs trims every line, drops blank ones and separates the rest with a blank line.
func paragraphs(text string) string {
	var kept []string
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		if l := strings.TrimSpace(line); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n\n")
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// pipeTable renders rows as a markdown pipe table with a separator after the first row.
func pipeTable(rows [][]string) string {
	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(escapeCells(row), " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sep := make([]string, len(row))
			for j := range sep {
				sep[j] = "---"
			}
			sb.WriteString("| ")
			sb.WriteString(strings.Join(sep, " | "))
			sb.WriteString(" |\n")
		}
	}
	return sb.String()
}

func escapeCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		cell = strings.ReplaceAll(cell, "\n", " ")
		out[i] = strings.ReplaceAll(cell, "|", `\|`)
	}
	return out
}
