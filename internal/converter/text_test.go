package converter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"docconvert/internal/model"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"single line", "  hello  ", "hello"},
		{"lines joined", "a\n\n  b\r\nc", "a b c"},
		{"double space splits", "one  two   three", "one two three"},
		{"single space kept", "one two", "one two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flatten(tt.in))
		})
	}
}

func TestParagraphs(t *testing.T) {
	assert.Equal(t, "a\n\nb", paragraphs("  a \n\n\n b\n"))
	assert.Equal(t, "", paragraphs("\n \n"))
}

func TestPipeTable(t *testing.T) {
	got := pipeTable([][]string{{"h1", "h2"}, {"a|b", "line\nbreak"}})
	assert.Equal(t, "| h1 | h2 |\n| --- | --- |\n| a\\|b | line break |\n", got)
}

func TestSheetRows(t *testing.T) {
	rows := [][]string{{"a", "b", "c"}, {}, {"", ""}, {"1"}, {"2"}, {"3"}}

	got := sheetRows(rows, 2)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "", ""}}, got)

	assert.Len(t, sheetRows(rows, 0), 4)
	assert.Empty(t, sheetRows([][]string{{""}}, 10))
}

func TestConvertRTF(t *testing.T) {
	c := New(Options{})
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "paragraphs and destinations",
			src:  `{\rtf1\ansi{\fonttbl{\f0 Arial;}}{\colortbl;\red0\green0\blue0;}\f0 Hello \b World\b0\par Second line\par}`,
			want: "Hello World\n\nSecond line",
		},
		{
			name: "hex escape",
			src:  `{\rtf1 caf\'e9\par}`,
			want: "café",
		},
		{
			name: "unicode with fallback char",
			src:  `{\rtf1\uc1 snow\u9731?man\par}`,
			want: "snow☃man",
		},
		{
			name: "ignorable destination",
			src:  `{\rtf1{\*\generator Writer;}Body\par}`,
			want: "Body",
		},
		{
			name: "escaped braces",
			src:  `{\rtf1 a\{b\}c\par}`,
			want: "a{b}c",
		},
		{
			name: "unbalanced falls back to stripping",
			src:  `{\rtf1 Hello {\b World}`,
			want: "Hello World",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Convert(context.Background(), writeFile(t, "doc.rtf", []byte(tt.src)))
			assert.Equal(t, model.Success(tt.want), res)
		})
	}
}

func TestStripRTFControls(t *testing.T) {
	assert.Equal(t, "Hello World", stripRTFControls(`{\rtf1\ansi Hello \b World}`))
}
