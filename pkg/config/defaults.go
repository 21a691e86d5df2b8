package config

import "time"

// Defaults contains system-wide default configurations, used when the
// environment doesn't override a specific value (spec §6 "Environment
// configuration").
type Defaults struct {
	// LLMProvider selects the pluggable llmclient.Backend ("openai" or
	// "anthropic").
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// LLMModel is the model name passed to the selected provider.
	LLMModel string `yaml:"llm_model,omitempty"`

	// MaxAttachmentSize is an attachment size limit in bytes (default
	// 10 MiB). It is validated at load but not read by admission, which
	// always applies the constant attachment.MaxAttachmentSize.
	MaxAttachmentSize int64 `yaml:"max_attachment_size,omitempty"`

	// PollInterval is the mail ingress poll cadence (spec §6, default 10s).
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// Masking holds the PII-masking defaults applied to logged correspondence.
	Masking *MaskingConfig `yaml:"masking,omitempty"`
}

// DefaultDefaults returns the built-in system defaults (spec §6).
func DefaultDefaults() *Defaults {
	return &Defaults{
		LLMProvider:       "openai",
		LLMModel:          "gpt-4o",
		MaxAttachmentSize: 10 * 1024 * 1024,
		PollInterval:      10 * time.Second,
		Masking: &MaskingConfig{
			Enabled:       true,
			PatternGroups: []string{"email", "phone"},
			Patterns:      []string{"policy_number"},
		},
	}
}
