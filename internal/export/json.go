package export

import (
	"encoding/json"
	"io"

	"github.com/arbiterhq/arbiter/internal/core"
)

// JSONExporter exports debate results to JSON format.
type JSONExporter struct{}

// Export writes the results as indented JSON.
func (e *JSONExporter) Export(results *core.DebateResults, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}
