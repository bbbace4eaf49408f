// Package export renders debate results to various formats.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Exporter defines the interface for exporting debate results.
type Exporter interface {
	Export(results *core.DebateResults, w io.Writer) error
	FileExtension() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// GenerateFilename creates a filename for the export.
func GenerateFilename(debate *core.Debate, ext string) string {
	// Sanitize topic for filename
	topic := debate.Topic
	if len(topic) > 50 {
		topic = topic[:50]
	}

	// Replace unsafe characters
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	topic = replacer.Replace(topic)

	timestamp := debate.CreatedAt.Format("20060102")
	return fmt.Sprintf("debate_%s_%s.%s", timestamp, topic, ext)
}

// Helper to format a participant line
func formatParticipant(p *core.Participant) string {
	if p.Kind == core.KindAI {
		return fmt.Sprintf("%s (%s/%s)", p.Name, p.Provider, p.Model)
	}
	return fmt.Sprintf("%s (human)", p.Name)
}

// Helper to format duration
func formatDuration(start, end time.Time) string {
	d := end.Sub(start)
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}

// participantName resolves a participant ID to a display name.
func participantName(results *core.DebateResults, id string) string {
	for _, p := range results.Participants {
		if p.ID == id {
			return p.Name
		}
	}
	return "Unknown"
}
