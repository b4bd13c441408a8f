package model

// SessionState is what a browser session remembers about its last conversion.
type SessionState struct {
	WorkspaceID string   `json:"conversion_id"`
	Files       []string `json:"converted_files,omitempty"`
	SingleFile  string   `json:"single_file,omitempty"`
	BundleFile  string   `json:"zip_file,omitempty"`
}

// Empty reports whether no conversion is referenced.
func (s *SessionState) Empty() bool { return s == nil || s.WorkspaceID == "" }

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}
