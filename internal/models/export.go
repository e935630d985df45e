package models

import "time"

// ExportFile is the outcome of exporting one activity.
type ExportFile struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Points   int    `json:"points"`
	Error    string `json:"error,omitempty"`
}

// Succeeded reports whether a file was written.
func (f ExportFile) Succeeded() bool {
	return f.Error == "" && f.Path != ""
}

// ExportManifest summarizes an export run. It is written next to the exported files.
type ExportManifest struct {
	Format          string       `json:"format"`
	OutputDirectory string       `json:"output_directory"`
	CreatedAt       time.Time    `json:"created_at"`
	Total           int          `json:"total"`
	Succeeded       int          `json:"succeeded"`
	Failed          int          `json:"failed"`
	Files           []ExportFile `json:"files"`
}
