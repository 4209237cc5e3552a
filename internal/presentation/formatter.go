package presentation

import (
	"encoding/json"
	"io"
)

// Formatter writes indented JSON documents.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatOutcomes writes one outcome per registered manifest.
func (f *Formatter) FormatOutcomes(outcomes []OutcomeDTO) error {
	return f.encode(outcomes)
}

// FormatPreviews writes dry-run conflict previews.
func (f *Formatter) FormatPreviews(previews []PreviewDTO) error {
	return f.encode(previews)
}

// FormatConflicts writes a list of conflicts.
func (f *Formatter) FormatConflicts(conflicts []ConflictDTO) error {
	return f.encode(conflicts)
}

// FormatStats writes a stats summary together with per-owner holdings.
func (f *Formatter) FormatStats(stats StatsDTO, owners []OwnerResourcesDTO) error {
	return f.encode(struct {
		Stats  StatsDTO            `json:"stats"`
		Owners []OwnerResourcesDTO `json:"owners"`
	}{stats, owners})
}

// FormatResult writes any other result value.
func (f *Formatter) FormatResult(result any) error {
	return f.encode(result)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
