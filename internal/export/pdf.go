package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/arbiterhq/arbiter/internal/core"
)

// PDFExporter exports debate results to PDF format.
type PDFExporter struct{}

// Participants are assigned rotating header colors by position.
var participantColors = [][3]int{
	{200, 230, 255}, // Light blue
	{200, 255, 200}, // Light green
	{255, 230, 200}, // Light orange
	{230, 200, 255}, // Light purple
}

// Export writes the results as PDF.
func (e *PDFExporter) Export(results *core.DebateResults, w io.Writer) error {
	debate := results.Debate

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, e.sanitizeText(debate.Topic), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	id := debate.ID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	e.addMetadataRow(pdf, "ID:", id)
	e.addMetadataRow(pdf, "Format:", debate.Format)
	e.addMetadataRow(pdf, "Status:", string(debate.Status))
	e.addMetadataRow(pdf, "Rounds:", fmt.Sprintf("%d of %d", debate.CurrentRound, debate.MaxRounds))
	e.addMetadataRow(pdf, "Created:", debate.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if debate.CompletedAt != nil {
		e.addMetadataRow(pdf, "Completed:", debate.CompletedAt.Format("January 2, 2006 at 3:04 PM"))
		start := debate.CreatedAt
		if debate.StartedAt != nil {
			start = *debate.StartedAt
		}
		e.addMetadataRow(pdf, "Duration:", formatDuration(start, *debate.CompletedAt))
	}
	pdf.Ln(5)

	// Participants section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Participants")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	colors := make(map[string][3]int, len(results.Participants))
	for i, p := range results.Participants {
		c := participantColors[i%len(participantColors)]
		colors[p.ID] = c
		e.addParticipantBox(pdf, p, c[0], c[1], c[2])
		pdf.Ln(3)
	}
	pdf.Ln(5)

	// Debate content
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate")
	pdf.Ln(8)

	if len(results.Rounds) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No rounds recorded.")
		pdf.Ln(6)
	} else {
		for _, round := range results.Rounds {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			pdf.SetFont("Arial", "B", 11)
			pdf.Cell(0, 7, fmt.Sprintf("Round %d", round.Number))
			pdf.Ln(7)

			for _, resp := range round.Responses {
				if pdf.GetY() > 250 {
					pdf.AddPage()
				}

				name := participantName(results, resp.ParticipantID)
				c, ok := colors[resp.ParticipantID]
				if !ok {
					c = [3]int{230, 230, 230}
				}
				pdf.SetFillColor(c[0], c[1], c[2])

				pdf.SetFont("Arial", "B", 10)
				header := fmt.Sprintf("%s (%s)", name, resp.CreatedAt.Format("3:04 PM"))
				if resp.TimedOut() {
					header = fmt.Sprintf("%s (timed out)", name)
				}
				pdf.CellFormat(0, 7, e.sanitizeText(header), "", 1, "", true, 0, "")

				pdf.SetFillColor(255, 255, 255)
				if resp.TimedOut() {
					pdf.SetFont("Arial", "I", 9)
					pdf.Cell(0, 5, "No response recorded before the round time limit.")
					pdf.Ln(8)
					continue
				}

				pdf.SetFont("Arial", "", 9)
				pdf.MultiCell(0, 5, e.sanitizeText(resp.Content), "", "", false)
				pdf.Ln(5)
			}
		}
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from arbiter", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// Helper to add a metadata row
func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

// Helper to add a participant box
func (e *PDFExporter) addParticipantBox(pdf *gofpdf.Fpdf, p *core.Participant, r, g, b int) {
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, e.sanitizeText(p.Name), "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.Cell(25, 5, "Kind:")
	pdf.Cell(0, 5, string(p.Kind))
	pdf.Ln(5)
	if p.Kind == core.KindAI {
		pdf.Cell(25, 5, "Provider:")
		pdf.Cell(0, 5, p.Provider)
		pdf.Ln(5)
		pdf.Cell(25, 5, "Model:")
		pdf.Cell(0, 5, p.Model)
		pdf.Ln(5)
	}
	if p.Metrics.ResponseCount > 0 {
		pdf.Cell(25, 5, "Responses:")
		pdf.Cell(0, 5, fmt.Sprintf("%d (%d tokens)", p.Metrics.ResponseCount, p.Metrics.TotalTokens))
		pdf.Ln(5)
	}
}

// Sanitize text for PDF (remove problematic characters)
func (e *PDFExporter) sanitizeText(text string) string {
	// gofpdf uses Windows-1252 encoding by default
	// Replace common Unicode characters that might cause issues
	replacer := strings.NewReplacer(
		"‘", "'", // Left single quote
		"’", "'", // Right single quote
		"“", "\"", // Left double quote
		"”", "\"", // Right double quote
		"–", "-", // En dash
		"—", "--", // Em dash
		"…", "...", // Ellipsis
		"•", "*", // Bullet
		" ", " ", // Non-breaking space
	)
	return replacer.Replace(text)
}
