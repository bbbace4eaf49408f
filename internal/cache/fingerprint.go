// Package cache provides content-addressed caching of completion results.
//
// Identical logical requests always map to the same fingerprint; a hit
// short-circuits the provider gateway entirely. Cache failures are never
// fatal: they degrade to a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/arbiterhq/arbiter/internal/core"
)

// Fingerprint computes the deterministic cache key for a completion
// request from its semantically relevant fields: provider, model,
// normalized prompt, max tokens, temperature, streaming flag and
// system-message flag.
func Fingerprint(req *core.CompletionRequest) string {
	keyData := struct {
		Provider    string  `json:"provider"`
		Model       string  `json:"model"`
		Prompt      string  `json:"prompt"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
		System      bool    `json:"system"`
	}{
		Provider:    req.Provider,
		Model:       req.Model,
		Prompt:      NormalizePrompt(req.Prompt),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
		System:      req.System != "",
	}

	data, _ := json.Marshal(keyData)
	hash := sha256.Sum256(data)
	return keyPrefix(req.Provider, req.Model) + hex.EncodeToString(hash[:16])
}

// NormalizePrompt canonicalizes prompt text for fingerprinting: leading
// and trailing whitespace is dropped and internal runs collapse to a
// single space, so formatting-only differences share a cache entry.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}

// keyPrefix builds the key namespace that makes per-provider and
// per-provider+model invalidation a prefix scan.
func keyPrefix(provider, model string) string {
	return "completion:" + provider + ":" + model + ":"
}

// providerPrefix covers every key for one provider.
func providerPrefix(provider string) string {
	return "completion:" + provider + ":"
}
