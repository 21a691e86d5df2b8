package config

import "fmt"

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateMail(); err != nil {
		return fmt.Errorf("mail validation failed: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateMail() error {
	m := v.cfg.Mail
	if m.ImapHost == "" {
		return NewValidationError("mail", "imap_host", ErrMissingRequiredField)
	}
	if m.ImapUser == "" {
		return NewValidationError("mail", "imap_user", ErrMissingRequiredField)
	}
	if m.SmtpHost == "" {
		return NewValidationError("mail", "smtp_host", ErrMissingRequiredField)
	}
	if m.SmtpFrom == "" {
		return NewValidationError("mail", "smtp_from", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.Provider != "openai" && l.Provider != "anthropic" {
		return NewValidationError("llm", "provider", fmt.Errorf("%w: must be 'openai' or 'anthropic', got %q", ErrInvalidValue, l.Provider))
	}
	if l.APIKey == "" {
		return NewValidationError("llm", "api_key", ErrMissingRequiredField)
	}
	if l.Model == "" {
		return NewValidationError("llm", "model", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d.MaxAttachmentSize <= 0 {
		return NewValidationError("defaults", "max_attachment_size", ErrInvalidValue)
	}
	if d.PollInterval <= 0 {
		return NewValidationError("defaults", "poll_interval", ErrInvalidValue)
	}
	return nil
}
