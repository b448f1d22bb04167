package config

// LLMConfig configures the three named model profiles the runtime's
// Client wraps: default (the main loop's reasoning model), cheap
// (routing/summarizing/exploration/delegation), and routing (an optional
// low-latency override for the depth classifier).
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	Profiles LLMProfiles `yaml:"profiles"`
}

// LLMProviderConfig holds one provider's credentials.
type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMProfiles names which provider/model backs each of the runtime's three
// calling conventions.
type LLMProfiles struct {
	Default LLMProfile `yaml:"default"`
	Cheap   LLMProfile `yaml:"cheap"`
	Routing LLMProfile `yaml:"routing"`
}

// LLMProfile selects a provider and model for one calling convention.
type LLMProfile struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

func (c *LLMConfig) applyDefaults() {
	if c.Profiles.Default.Provider == "" {
		c.Profiles.Default = LLMProfile{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}
	}
	if c.Profiles.Cheap.Provider == "" {
		c.Profiles.Cheap = LLMProfile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"}
	}
	if c.Profiles.Routing.Provider == "" {
		c.Profiles.Routing = c.Profiles.Cheap
	}
}
