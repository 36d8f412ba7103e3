package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Athemis/squidbot/internal/config"
	"github.com/Athemis/squidbot/internal/logger"
	"github.com/Athemis/squidbot/pkg/agent"
	"github.com/Athemis/squidbot/pkg/channels"
	"github.com/Athemis/squidbot/pkg/cron"
	"github.com/Athemis/squidbot/pkg/memory"
	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/skills"
	"github.com/Athemis/squidbot/pkg/store"
	"github.com/Athemis/squidbot/pkg/subagent"
	"github.com/Athemis/squidbot/pkg/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistant",
	Long: `Start the assistant with the configured channels. The process runs in
the foreground until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cfg.Log.Console,
		Pretty:  cfg.Log.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	zl := lg.Zerolog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, zl)
}

func run(ctx context.Context, cfg *config.Config, zl zerolog.Logger) error {
	historyStore, err := store.NewSQLiteStore(cfg.Storage.Path, zl)
	if err != nil {
		return err
	}
	defer historyStore.Close()

	library := skills.NewLibrary(cfg.Skills.Dir, zl)
	if err := library.Load(); err != nil {
		return err
	}
	if cfg.Skills.Watch {
		watcher, err := skills.NewWatcher(library, zl)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			zl.Warn().Err(err).Msg("Skills watcher unavailable, continuing without live reload")
		} else {
			defer watcher.Stop()
		}
	}

	pool, err := buildPool(cfg.Providers, zl)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, historyStore, zl)
	if err != nil {
		return err
	}

	assembler, err := memory.New(memory.Config{
		Store:  historyStore,
		Skills: library,
		Window: cfg.Agent.HistoryWindow,
		Logger: zl,
	})
	if err != nil {
		return err
	}

	loop, err := agent.New(agent.Config{
		Pool:         pool,
		Assembler:    assembler,
		Registry:     registry,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxRounds:    cfg.Agent.MaxRounds,
		Logger:       zl,
	})
	if err != nil {
		return err
	}

	if err := wireSubagents(cfg, pool, registry, zl); err != nil {
		return err
	}

	dispatch := func(ctx context.Context, in agent.Inbound, sink agent.Sink) (string, error) {
		return loop.Run(ctx, in, agent.Options{Sink: sink})
	}

	channelRegistry := channels.NewRegistry(dispatch)
	if cfg.Channels.Terminal.Enabled {
		if err := channelRegistry.Register(channels.NewTerminalChannel(cfg.Channels.Terminal.Sender, zl)); err != nil {
			return err
		}
	}
	if cfg.Channels.WebSocket.Enabled {
		ws, err := channels.NewWebSocketChannel(channels.WebSocketConfig{
			Addr:   cfg.Channels.WebSocket.Addr,
			Path:   cfg.Channels.WebSocket.Path,
			Tokens: cfg.Channels.WebSocket.Tokens,
			Logger: zl,
		})
		if err != nil {
			return err
		}
		if err := channelRegistry.Register(ws); err != nil {
			return err
		}
	}

	if err := channelRegistry.StartAll(ctx); err != nil {
		return err
	}
	defer channelRegistry.StopAll(context.Background())

	scheduler, err := cron.NewService(func(ctx context.Context, entry cron.Entry) (string, error) {
		return loop.Run(ctx, agent.Inbound{Channel: "cron", Content: entry.Prompt}, agent.Options{Pool: entry.Pool})
	}, zl)
	if err != nil {
		return err
	}
	for _, entry := range cfg.Cron {
		var entryPool *providers.Pool
		if len(entry.Providers) > 0 {
			entryPool, err = buildPool(entry.Providers, zl)
			if err != nil {
				return fmt.Errorf("cron entry %s: %w", entry.Name, err)
			}
		}
		if _, err := scheduler.Add(entry.Name, entry.Schedule, entry.Prompt, entryPool); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	zl.Info().Strs("channels", channelRegistry.Names()).Msg("squidbot started")
	<-ctx.Done()
	zl.Info().Msg("Shutting down")
	return nil
}

// buildPool creates backends in configured order.
func buildPool(providerConfigs []config.ProviderConfig, zl zerolog.Logger) (*providers.Pool, error) {
	backends := make([]providers.Backend, 0, len(providerConfigs))
	for _, pc := range providerConfigs {
		switch pc.Kind {
		case "anthropic":
			backend, err := providers.NewAnthropicBackend(providers.AnthropicConfig{
				APIKey:    pc.APIKey,
				BaseURL:   pc.BaseURL,
				Model:     pc.Model,
				MaxTokens: pc.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			backends = append(backends, backend)
		case "openai":
			backend, err := providers.NewOpenAIBackend(providers.OpenAIConfig{
				Provider:  pc.Name,
				APIKey:    pc.APIKey,
				BaseURL:   pc.BaseURL,
				Model:     pc.Model,
				MaxTokens: pc.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			backends = append(backends, backend)
		default:
			return nil, fmt.Errorf("unknown provider kind: %s", pc.Kind)
		}
	}
	return providers.NewPool(zl, backends...)
}

// buildRegistry registers the built-in tools.
func buildRegistry(cfg *config.Config, historyStore *store.SQLiteStore, zl zerolog.Logger) (*tools.Registry, error) {
	if err := os.MkdirAll(cfg.Workspace.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	registry := tools.NewRegistry(zl)
	builtin := []tools.Tool{
		&tools.ReadFileTool{Root: cfg.Workspace.Dir},
		&tools.WriteFileTool{Root: cfg.Workspace.Dir},
		&tools.ListDirTool{Root: cfg.Workspace.Dir},
		tools.NewWebFetchTool(),
		&tools.SaveMemoryTool{Store: historyStore},
		&tools.SearchHistoryTool{Searcher: historyStore},
	}
	for _, tool := range builtin {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// wireSubagents adds the spawn/collect pair to the shared registry.
func wireSubagents(cfg *config.Config, pool *providers.Pool, registry *tools.Registry, zl zerolog.Logger) error {
	profiles := make([]subagent.Profile, 0, len(cfg.Subagents.Profiles))
	for _, pc := range cfg.Subagents.Profiles {
		var profilePool *providers.Pool
		if len(pc.Providers) > 0 {
			built, err := buildPool(pc.Providers, zl)
			if err != nil {
				return fmt.Errorf("profile %s: %w", pc.Name, err)
			}
			profilePool = built
		}
		profiles = append(profiles, subagent.Profile{
			Name:         pc.Name,
			SystemPrompt: pc.SystemPrompt,
			Tools:        pc.Tools,
			Pool:         profilePool,
		})
	}

	factory, err := subagent.NewFactory(subagent.FactoryConfig{
		Pool:      pool,
		Registry:  registry,
		Profiles:  profiles,
		MaxRounds: cfg.Subagents.MaxRounds,
		Logger:    zl,
	})
	if err != nil {
		return err
	}

	jobs := subagent.NewJobStore(zl)
	if err := registry.Register(&subagent.SpawnTool{Factory: factory, Jobs: jobs}); err != nil {
		return err
	}
	return registry.Register(&subagent.CollectTool{Jobs: jobs})
}
