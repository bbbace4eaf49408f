package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterhq/arbiter/internal/core"
)

func baseRequest() *core.CompletionRequest {
	return &core.CompletionRequest{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Prompt:      "Argue for renewable energy subsidies.",
		MaxTokens:   512,
		Temperature: 0.7,
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(baseRequest())
	b := Fingerprint(baseRequest())
	assert.Equal(t, a, b)
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base := Fingerprint(baseRequest())

	variants := map[string]func(*core.CompletionRequest){
		"provider":    func(r *core.CompletionRequest) { r.Provider = "anthropic" },
		"model":       func(r *core.CompletionRequest) { r.Model = "gpt-4o" },
		"prompt":      func(r *core.CompletionRequest) { r.Prompt = "Argue against renewable energy subsidies." },
		"max tokens":  func(r *core.CompletionRequest) { r.MaxTokens = 256 },
		"temperature": func(r *core.CompletionRequest) { r.Temperature = 0.2 },
		"stream":      func(r *core.CompletionRequest) { r.Stream = true },
		"system":      func(r *core.CompletionRequest) { r.System = "Be concise." },
	}

	for name, mutate := range variants {
		req := baseRequest()
		mutate(req)
		assert.NotEqual(t, base, Fingerprint(req), "changing %s must change the key", name)
	}
}

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Prompt = "  Argue for\n\trenewable   energy subsidies.  "
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintKeyNamespace(t *testing.T) {
	key := Fingerprint(baseRequest())
	assert.True(t, strings.HasPrefix(key, "completion:openai:gpt-4o-mini:"))
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "a b c", NormalizePrompt("  a \n b\t\tc "))
	assert.Equal(t, "", NormalizePrompt("   \n\t "))
}
