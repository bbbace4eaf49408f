package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/arbiterhq/arbiter/internal/core"
)

// MarkdownExporter exports debate results to Markdown format.
type MarkdownExporter struct{}

// Export writes the results as Markdown.
func (e *MarkdownExporter) Export(results *core.DebateResults, w io.Writer) error {
	debate := results.Debate
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# %s\n\n", debate.Topic))

	// Metadata
	sb.WriteString("## Debate Information\n\n")
	sb.WriteString(fmt.Sprintf("- **ID:** `%s`\n", debate.ID))
	sb.WriteString(fmt.Sprintf("- **Format:** %s\n", debate.Format))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", debate.Status))
	sb.WriteString(fmt.Sprintf("- **Rounds:** %d of %d\n", debate.CurrentRound, debate.MaxRounds))
	sb.WriteString(fmt.Sprintf("- **Created:** %s\n", debate.CreatedAt.Format("January 2, 2006 at 3:04 PM")))
	if debate.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("- **Completed:** %s\n", debate.CompletedAt.Format("January 2, 2006 at 3:04 PM")))
		start := debate.CreatedAt
		if debate.StartedAt != nil {
			start = *debate.StartedAt
		}
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(start, *debate.CompletedAt)))
	}
	sb.WriteString("\n")

	// Participants
	sb.WriteString("## Participants\n\n")
	for _, p := range results.Participants {
		sb.WriteString(fmt.Sprintf("- **%s**", formatParticipant(p)))
		if p.Metrics.ResponseCount > 0 {
			sb.WriteString(fmt.Sprintf(" — %d responses, %d tokens", p.Metrics.ResponseCount, p.Metrics.TotalTokens))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// Debate content
	sb.WriteString("## Debate\n\n")

	if len(results.Rounds) == 0 {
		sb.WriteString("*No rounds recorded.*\n\n")
	} else {
		for _, round := range results.Rounds {
			sb.WriteString(fmt.Sprintf("### Round %d\n\n", round.Number))

			for _, resp := range round.Responses {
				name := participantName(results, resp.ParticipantID)
				if resp.TimedOut() {
					sb.WriteString(fmt.Sprintf("#### %s\n\n*No response (timed out)*\n\n---\n\n", name))
					continue
				}
				sb.WriteString(fmt.Sprintf("#### %s\n\n", name))
				sb.WriteString(fmt.Sprintf("*%s*\n\n", resp.CreatedAt.Format("3:04 PM")))
				sb.WriteString(resp.Content)
				sb.WriteString("\n\n---\n\n")
			}
		}
	}

	// Footer
	sb.WriteString("*Exported from arbiter*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}
