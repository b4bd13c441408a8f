package model

import (
	"io"
	"time"
)

// Output pairs one input with its derived markdown file inside a workspace.
type Output struct {
	Source   string           `json:"source"`
	Filename string           `json:"filename"`
	Path     string           `json:"-"`
	Result   ConversionResult `json:"result"`
}

// Upload is a single user-supplied file.
type Upload struct {
	Filename string
	Reader   io.Reader
	Size     int64
}

// Conversion is everything one request produced.
// Warnings are per-file problems that did not stop the request.
type Conversion struct {
	WorkspaceID string   `json:"workspace_id"`
	Outputs     []Output `json:"outputs"`
	Warnings    []string `json:"warnings,omitempty"`
	// Bundle is the zip filename inside the workspace when more than one output exists.
	Bundle string `json:"bundle,omitempty"`
}

// Single returns the only output, or nil when there are zero or several.
func (c *Conversion) Single() *Output {
	if c == nil || len(c.Outputs) != 1 {
		return nil
	}
	return &c.Outputs[0]
}

// Filenames lists output filenames in production order.
func (c *Conversion) Filenames() []string {
	names := make([]string, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		names = append(names, o.Filename)
	}
	return names
}

// Workspace is a per-request scratch directory.
type Workspace struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}
