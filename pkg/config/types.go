package config

// MaskingConfig defines PII masking configuration applied to claim
// correspondence before it is debug-logged. Text sent to the LLM
// capability is not masked.
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	Patterns       []string         `yaml:"patterns,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// MaskingPattern defines a regex-based masking pattern.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// AgentIDsConfig maps each of the fifteen incident-type agent names, plus
// the clarifier/triage/follow-up roles, to their configured LLM agent id
// (spec §6 "Environment configuration"). A blank value means that agent
// is skipped for any claim (spec §6: "Missing agent id ⇒ skip").
type AgentIDsConfig struct {
	Agents          map[string]string `yaml:"agents,omitempty"`
	ClarifierAgent  string            `yaml:"clarifier_agent,omitempty"`
	TriageAgent     string            `yaml:"triage_agent,omitempty"`
	FollowupAgent   string            `yaml:"followup_agent,omitempty"`
}
