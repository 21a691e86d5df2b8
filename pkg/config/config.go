package config

// MailConfig holds inbound/outbound mail transport settings (spec §6).
type MailConfig struct {
	ImapHost     string `yaml:"imap_host"`
	ImapPort     int    `yaml:"imap_port"`
	ImapUser     string `yaml:"imap_user"`
	ImapPassword string `yaml:"imap_password"`
	ImapTLS      bool   `yaml:"imap_tls"`

	SmtpHost     string `yaml:"smtp_host"`
	SmtpPort     int    `yaml:"smtp_port"`
	SmtpUser     string `yaml:"smtp_user"`
	SmtpPassword string `yaml:"smtp_password"`
	SmtpFrom     string `yaml:"smtp_from"`
}

// LLMConfig holds credentials and provider selection for the LLM capability.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model"`
}

// Config is the umbrella configuration object returned by Initialize and
// used to wire every component in cmd/claimflow.
type Config struct {
	configDir string

	StoreDir string `yaml:"store_dir"`

	Mail      *MailConfig     `yaml:"mail"`
	LLM       *LLMConfig      `yaml:"llm"`
	AgentIDs  *AgentIDsConfig `yaml:"agent_ids"`
	Defaults  *Defaults       `yaml:"defaults"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
