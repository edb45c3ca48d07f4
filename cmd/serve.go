package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banterworks/banter/internal/channels/discord"
	"github.com/banterworks/banter/internal/config"
	"github.com/banterworks/banter/internal/history"
	"github.com/banterworks/banter/internal/orchestrator"
	"github.com/banterworks/banter/internal/prompt"
	"github.com/banterworks/banter/internal/providers"
	"github.com/banterworks/banter/internal/telemetry"
	"github.com/banterworks/banter/internal/tokens"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// runServe is the composition root: it owns the cache, the clients, and the
// orchestrator, and wires them together for the process lifetime.
func runServe() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.SetupLogging(cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traces, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traces.Shutdown(shutdownCtx); err != nil {
			slog.Warn("trace shutdown failed", "error", err)
		}
	}()

	// Unknown model encoding is a fatal configuration error.
	counter, err := tokens.ForModel(cfg.OpenAI.Model)
	if err != nil {
		return err
	}

	store := config.NewStore(cfg, cfgPath)
	go func() {
		if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	cache := history.NewCache(cfg.Chat.CacheMaxEntries)
	defer cache.Stop()

	chatClient := providers.NewChatClient(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase)
	imagesClient := providers.NewImagesClient(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.ImageModel, cfg.OpenAI.ImageSize)
	assembler := prompt.NewAssembler(cfg.OpenAI.Model, cfg.Chat.Temperature, cfg.Chat.MaxResponseTokens)

	orcCfg := orchestrator.Config{
		Chat:             chatClient,
		Images:           imagesClient,
		Cache:            cache,
		Counter:          counter,
		Prompts:          assembler,
		Options:          store,
		Tracer:           traces.Tracer,
		CommandPrefix:    cfg.Discord.CommandPrefix,
		ContextWindow:    cfg.Chat.ContextWindow,
		RepliesPerMinute: cfg.Chat.RepliesPerMinute,
	}

	bot, err := discord.New(cfg.Discord, nil)
	if err != nil {
		return err
	}
	// The bot doubles as the operational error sink (error channel posts).
	orcCfg.Errors = bot
	orc := orchestrator.New(orcCfg)
	bot.SetOrchestrator(orc)

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("start discord channel: %w", err)
	}

	slog.Info("banter running", "model", cfg.OpenAI.Model, "config", cfgPath)
	<-ctx.Done()

	if err := bot.Stop(); err != nil {
		slog.Warn("discord shutdown error", "error", err)
	}
	return nil
}
