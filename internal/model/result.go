package model

import "fmt"

// Status discriminates the outcome of a single conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// ConversionResult is the text produced from one input. On failure Text holds the
// human-readable reason, which is what ends up in the .md output.
type ConversionResult struct {
	Status Status `json:"status"`
	Text   string `json:"text"`
}

// Success wraps converted text.
func Success(text string) ConversionResult {
	return ConversionResult{Status: StatusSuccess, Text: text}
}

// Warning marks a conversion that ran but produced no usable text.
func Warning(text string) ConversionResult {
	return ConversionResult{Status: StatusWarning, Text: text}
}

// Failure builds an error result from a formatted message.
func Failure(format string, args ...any) ConversionResult {
	return ConversionResult{Status: StatusError, Text: fmt.Sprintf(format, args...)}
}

// OK reports whether the conversion produced real content.
func (r ConversionResult) OK() bool { return r.Status == StatusSuccess }

// Failed reports whether the conversion failed outright.
func (r ConversionResult) Failed() bool { return r.Status == StatusError }
