// Package export renders affinity results for files and HTTP responses.
// Renderers preserve the ordering of domain.ExportRecord, so the same
// result always produces the same bytes.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	_ ports.ResultExporter = JSONExporter{}
	_ ports.ResultExporter = YAMLExporter{}
)

// JSONExporter writes indented JSON followed by a newline.
type JSONExporter struct{}

// Format returns "json".
func (JSONExporter) Format() string { return FormatJSON }

// Export writes rec to w.
func (JSONExporter) Export(w io.Writer, rec domain.ExportRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// YAMLExporter writes a single YAML document with two-space indentation.
type YAMLExporter struct{}

// Format returns "yaml".
func (YAMLExporter) Format() string { return FormatYAML }

// Export writes rec to w.
func (YAMLExporter) Export(w io.Writer, rec domain.ExportRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return nil
}

// All returns every built-in exporter.
func All() []ports.ResultExporter {
	return []ports.ResultExporter{JSONExporter{}, YAMLExporter{}}
}

// New returns the exporter for format.
func New(format string) (ports.ResultExporter, error) {
	for _, e := range All() {
		if e.Format() == format {
			return e, nil
		}
	}
	return nil, fmt.Errorf("export format %q: %w", format, ports.ErrUnsupportedFormat)
}
