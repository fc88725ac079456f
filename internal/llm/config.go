// Package llm wraps the generative model used to describe reports. Callers
// depend on the Client interface; GeminiClient is the production implementation.
package llm

// ModelTier represents the capability level of a model.
type ModelTier string

const (
	// TierLite is for cheap, high-volume calls
	TierLite ModelTier = "lite"
	// TierStandard is the default for report descriptions
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long or unusually complex queries
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider.
type Provider string

// ProviderGemini is the only supported provider.
const ProviderGemini Provider = "gemini"

// Generation defaults. A low temperature keeps descriptions consistent
// between runs.
const (
	DefaultTemperature     float32 = 0.1
	DefaultMaxOutputTokens int32   = 1500
)

// Config holds the model configuration.
type Config struct {
	Provider        Provider
	Models          map[ModelTier]string
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultConfig returns the default Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok && model != "" {
		return model
	}
	// Fallback chain: standard, then lite
	if model, ok := c.Models[TierStandard]; ok && model != "" {
		return model
	}
	if model, ok := c.Models[TierLite]; ok && model != "" {
		return model
	}
	return ""
}

// WithModel returns a copy of the config with model assigned to tier.
// An empty model returns an unchanged copy.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := &Config{
		Provider:        c.Provider,
		Models:          make(map[ModelTier]string, len(c.Models)+1),
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	}
	for k, v := range c.Models {
		next.Models[k] = v
	}
	if model != "" {
		next.Models[tier] = model
	}
	return next
}
