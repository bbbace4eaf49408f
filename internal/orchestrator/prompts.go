package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/format"
)

var promptTemplate = template.Must(template.New("round").Parse(`You are {{.Name}}, a participant in a {{.Format}} debate.

Topic: {{.Topic}}
{{if .Instructions}}
{{.Instructions}}
{{end}}{{if .Transcript}}
Debate so far:
{{.Transcript}}{{end}}
This is round {{.Round}} of {{.MaxRounds}}. Present your argument for this round. Respond to the strongest points made so far and be direct and substantive. Do not repeat earlier arguments verbatim.

Your response:`))

type promptData struct {
	Name         string
	Format       string
	Instructions string
	Topic        string
	Transcript   string
	Round        int
	MaxRounds    int
}

// buildPrompt renders the completion prompt for one participant's turn,
// including the transcript of every completed exchange so far.
func buildPrompt(debate *core.Debate, round *core.Round, p *core.Participant) string {
	data := promptData{
		Name:       p.Name,
		Format:     debate.Format,
		Topic:      debate.Topic,
		Transcript: buildTranscript(debate, round),
		Round:      round.Number,
		MaxRounds:  debate.MaxRounds,
	}
	if f := format.Get(debate.Format); f != nil {
		data.Instructions = f.Instructions
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		// The template is static; a render failure means bad data, so
		// fall back to the bare topic.
		return debate.Topic
	}
	return buf.String()
}

// buildTranscript formats all responses recorded before the given round,
// attributed by participant name.
func buildTranscript(debate *core.Debate, current *core.Round) string {
	names := make(map[string]string, len(debate.Participants))
	for _, p := range debate.Participants {
		names[p.ID] = p.Name
	}

	var b strings.Builder
	for _, r := range debate.Rounds {
		if r.Number >= current.Number || len(r.Responses) == 0 {
			continue
		}
		fmt.Fprintf(&b, "--- Round %d ---\n", r.Number)
		for _, resp := range r.Responses {
			name := names[resp.ParticipantID]
			if name == "" {
				name = resp.ParticipantID
			}
			if resp.TimedOut() {
				fmt.Fprintf(&b, "[%s] (no response, timed out)\n", name)
				continue
			}
			if resp.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "[%s]\n%s\n", name, resp.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
