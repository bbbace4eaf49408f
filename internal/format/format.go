// Package format defines the built-in debate formats.
package format

// Format describes how a debate's rounds are framed for participants.
type Format struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Instructions is injected into every generation prompt for debates
	// of this format.
	Instructions string `json:"instructions"`
}

// DefaultFormats returns the built-in debate formats.
func DefaultFormats() []Format {
	return []Format{
		{
			ID:          "structured",
			Name:        "Structured",
			Description: "Each participant states and defends a clear position every round",
			Instructions: `This is a structured debate. In each round:
- State your position on the topic clearly
- Support it with your strongest arguments
- Address the points other participants raised in earlier rounds
- Keep your contribution focused; aim for 2-3 paragraphs`,
		},
		{
			ID:          "freeform",
			Name:        "Freeform",
			Description: "Open discussion without positional constraints",
			Instructions: `This is an open discussion. There are no assigned positions:
- Share your genuine perspective on the topic
- React to and build on what others have said
- Change your mind when an argument persuades you, and say so`,
		},
		{
			ID:          "adversarial",
			Name:        "Adversarial",
			Description: "Participants argue opposing sides and try to win",
			Instructions: `This is an adversarial debate. You are trying to win:
- Commit to your side of the topic and do not concede it
- Attack weaknesses in the other participants' arguments
- Anticipate counterarguments and preempt them
- Be persuasive but intellectually honest`,
		},
		{
			ID:          "panel",
			Name:        "Panel",
			Description: "Each participant contributes expert analysis from their own angle",
			Instructions: `This is an expert panel. Contribute analysis, not advocacy:
- Examine the topic from your own professional angle
- Separate facts from judgment calls and label uncertainty
- Point out considerations the other panelists have missed
- End with a concrete recommendation`,
		},
	}
}

// Get returns a format by ID, or nil.
func Get(id string) *Format {
	for _, f := range DefaultFormats() {
		if f.ID == id {
			return &f
		}
	}
	return nil
}

// List returns all available format IDs.
func List() []string {
	formats := DefaultFormats()
	ids := make([]string, len(formats))
	for i, f := range formats {
		ids[i] = f.ID
	}
	return ids
}

// Valid checks if a format ID is valid.
func Valid(id string) bool {
	return Get(id) != nil
}

// Default returns the default debate format.
func Default() *Format {
	return Get("structured")
}
