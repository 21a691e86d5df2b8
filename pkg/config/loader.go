package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// claimflowYAMLConfig represents the complete claimflow.yaml file structure.
type claimflowYAMLConfig struct {
	StoreDir string          `yaml:"store_dir"`
	Mail     *MailConfig     `yaml:"mail"`
	LLM      *LLMConfig      `yaml:"llm"`
	AgentIDs *AgentIDsConfig `yaml:"agent_ids"`
	Defaults *Defaults       `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load claimflow.yaml from configDir
//  2. Expand environment variables
//  3. Merge built-in defaults for any unset values
//  4. Validate all configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"llm_provider", cfg.LLM.Provider,
		"store_dir", cfg.StoreDir,
		"agents_configured", len(cfg.AgentIDs.Agents))

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadClaimflowYAML()
	if err != nil {
		return nil, NewLoadError("claimflow.yaml", err)
	}

	defaults := yamlCfg.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if err := mergo.Merge(defaults, DefaultDefaults()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	mail := yamlCfg.Mail
	if mail == nil {
		mail = &MailConfig{}
	}
	llm := yamlCfg.LLM
	if llm == nil {
		llm = &LLMConfig{}
	}
	if llm.Provider == "" {
		llm.Provider = defaults.LLMProvider
	}
	if llm.Model == "" {
		llm.Model = defaults.LLMModel
	}

	agentIDs := yamlCfg.AgentIDs
	if agentIDs == nil {
		agentIDs = &AgentIDsConfig{Agents: map[string]string{}}
	}
	if agentIDs.Agents == nil {
		agentIDs.Agents = map[string]string{}
	}

	storeDir := yamlCfg.StoreDir
	if storeDir == "" {
		storeDir = "./data/claims"
	}

	return &Config{
		configDir: configDir,
		StoreDir:  storeDir,
		Mail:      mail,
		LLM:       llm,
		AgentIDs:  agentIDs,
		Defaults:  defaults,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand ${VAR}/$VAR references (credentials, hosts) before parsing.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadClaimflowYAML() (*claimflowYAMLConfig, error) {
	var cfg claimflowYAMLConfig
	if err := l.loadYAML("claimflow.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
