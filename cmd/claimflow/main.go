// claimflow ingests insurance claim correspondence over IMAP, routes each
// message through the claim state machine, and replies over SMTP.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/claimflow/pkg/agentrunner"
	"github.com/codeready-toolchain/claimflow/pkg/attachment"
	"github.com/codeready-toolchain/claimflow/pkg/config"
	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/mail"
	"github.com/codeready-toolchain/claimflow/pkg/masking"
	"github.com/codeready-toolchain/claimflow/pkg/orchestrator"
	"github.com/codeready-toolchain/claimflow/pkg/registry"
	"github.com/codeready-toolchain/claimflow/pkg/store"
	"github.com/codeready-toolchain/claimflow/pkg/thread"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	st, err := store.New(cfg.StoreDir)
	if err != nil {
		log.Fatalf("Failed to initialize claim store: %v", err)
	}

	var backend llmclient.Backend
	switch cfg.LLM.Provider {
	case "anthropic":
		backend = llmclient.NewAnthropicBackend(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	default:
		backend = llmclient.NewOpenAIBackend(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	}
	llm := llmclient.New(backend)

	masker := masking.NewService(cfg.Defaults.Masking)

	mailCfg := mail.Config{
		ImapHost:     cfg.Mail.ImapHost,
		ImapPort:     cfg.Mail.ImapPort,
		ImapUser:     cfg.Mail.ImapUser,
		ImapPassword: cfg.Mail.ImapPassword,
		ImapTLS:      cfg.Mail.ImapTLS,
		SmtpHost:     cfg.Mail.SmtpHost,
		SmtpPort:     cfg.Mail.SmtpPort,
		SmtpUser:     cfg.Mail.SmtpUser,
		SmtpPassword: cfg.Mail.SmtpPassword,
		SmtpFrom:     cfg.Mail.SmtpFrom,
		PollInterval: cfg.Defaults.PollInterval,
	}
	poller := mail.NewPoller(mailCfg)
	sender := mail.NewSender(mailCfg)

	reg := registry.New(
		registry.AgentIDs(cfg.AgentIDs.Agents),
		cfg.AgentIDs.ClarifierAgent,
		cfg.AgentIDs.TriageAgent,
		cfg.AgentIDs.FollowupAgent,
	)
	resolver := thread.New(st)
	orch := orchestrator.New(st, llm, sender, resolver, reg, masker)

	slog.Info("claimflow starting",
		"config_dir", *configDir,
		"store_dir", cfg.StoreDir,
		"llm_provider", cfg.LLM.Provider,
		"agent_runner_pool", agentrunner.MaxConcurrentAgents)

	mail.Run(ctx, poller, st.IsMailProcessed, st.MarkMailProcessed, func(ctx context.Context, msg mail.Message) error {
		claimID, _, err := resolver.Resolve(msg.Sender, msg.Subject)
		if err != nil {
			return err
		}

		body := msg.Text
		if body == "" {
			body = msg.HTML
		}

		raws := make([]attachment.Raw, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			raws = append(raws, attachment.Raw{Filename: a.Filename, Bytes: a.Bytes})
		}

		return orch.Orchestrate(ctx, claimID, orchestrator.Inbound{
			Sender:      msg.Sender,
			Subject:     msg.Subject,
			Body:        body,
			Attachments: raws,
		})
	})
}
