package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Mail: &MailConfig{
			ImapHost: "imap.example.com", ImapUser: "claims@example.com",
			SmtpHost: "smtp.example.com", SmtpFrom: "claims@example.com",
		},
		LLM:      &LLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o"},
		AgentIDs: &AgentIDsConfig{Agents: map[string]string{}},
		Defaults: &Defaults{MaxAttachmentSize: 10 * 1024 * 1024, PollInterval: 10 * time.Second},
	}
}

func TestValidateAllAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateMailRequiresImapHost(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.ImapHost = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidateLLMRejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "gemini"
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidateDefaultsRejectsZeroPollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Defaults.PollInterval = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
