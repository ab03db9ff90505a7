// Package backend classifies model identifiers into the upstream API family
// that serves them. Classification is a lookup over an ordered rule table so
// new models can be registered without touching call sites.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Family is the upstream API shape a model routes to.
type Family string

const (
	// FamilyUnknown means no rule matched the model.
	FamilyUnknown Family = "unknown"
	// FamilyOpenAI is the OpenAI-style REST shape (/v1/videos ...).
	FamilyOpenAI Family = "openai"
	// FamilyVertex is the Vertex-AI long-running-operation shape.
	FamilyVertex Family = "vertex"
)

// ErrInvalidFamily is returned by ParseFamily for unrecognized names.
var ErrInvalidFamily = errors.New("backend: invalid family")

// IsKnown reports whether f names a concrete backend.
func (f Family) IsKnown() bool {
	return f == FamilyOpenAI || f == FamilyVertex
}

// ParseFamily parses a family name. The empty string parses to FamilyUnknown.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FamilyUnknown, nil
	case "openai", "openai-compatible":
		return FamilyOpenAI, nil
	case "vertex", "vertex-ai", "vertex-ai-compatible":
		return FamilyVertex, nil
	default:
		return FamilyUnknown, fmt.Errorf("%w: %q", ErrInvalidFamily, s)
	}
}

// Rule maps matching model identifiers to a family.
type Rule struct {
	Name   string
	Match  func(model string) bool
	Family Family
}

// Contains matches models containing sub.
func Contains(sub string) func(string) bool {
	return func(model string) bool { return strings.Contains(model, sub) }
}

// HasPrefix matches models starting with prefix.
func HasPrefix(prefix string) func(string) bool {
	return func(model string) bool { return strings.HasPrefix(model, prefix) }
}

// DefaultRules is the initial capability table.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "sora", Match: Contains("sora"), Family: FamilyOpenAI},
		{Name: "openai-prefix", Match: HasPrefix("openai/"), Family: FamilyOpenAI},
		{Name: "veo", Match: HasPrefix("veo-"), Family: FamilyVertex},
		{Name: "veo-namespaced", Match: Contains("/veo-"), Family: FamilyVertex},
	}
}

// Registry is an ordered model-to-family lookup table.
type Registry struct {
	rules    []Rule
	fallback Family
}

// Option configures a Registry.
type Option func(*Registry)

// WithRules appends rules evaluated after the existing ones.
func WithRules(rules ...Rule) Option {
	return func(r *Registry) {
		r.rules = append(r.rules, rules...)
	}
}

// WithFallback sets the family returned when no rule matches.
// FamilyVertex reproduces the historical "anything not OpenAI is Vertex" behavior.
func WithFallback(f Family) Option {
	return func(r *Registry) {
		r.fallback = f
	}
}

// NewRegistry creates a registry seeded with DefaultRules.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rules:    DefaultRules(),
		fallback: FamilyUnknown,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the family of the first matching rule, or the fallback.
func (r *Registry) Classify(model string) Family {
	for _, rule := range r.rules {
		if rule.Match(model) {
			return rule.Family
		}
	}
	return r.fallback
}

// ImageProvider is the request shape used for image models.
type ImageProvider string

const (
	// ImageProviderGemini routes through chat completions with inline images.
	ImageProviderGemini ImageProvider = "gemini"
	// ImageProviderOpenAI routes through /images endpoints.
	ImageProviderOpenAI ImageProvider = "openai"
	// ImageProviderUnknown falls through to the OpenAI-shaped builder.
	ImageProviderUnknown ImageProvider = "unknown"
)

// ClassifyImage returns the image provider for model.
func ClassifyImage(model string) ImageProvider {
	switch {
	case strings.Contains(model, "maia/gemini"):
		return ImageProviderGemini
	case strings.Contains(model, "openai/"):
		return ImageProviderOpenAI
	default:
		return ImageProviderUnknown
	}
}
