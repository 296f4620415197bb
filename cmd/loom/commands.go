package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loomhq/loom/internal/db"
	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/guardrails"
	"github.com/loomhq/loom/internal/orchestrator"
	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/internal/remote"
	"github.com/loomhq/loom/internal/settings"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/webhook"
	"github.com/loomhq/loom/pkg/models"
)

func openDatabase() (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return db.Open(dbPath)
}

// serveConfig is the YAML file the serve command loads.
type serveConfig struct {
	Provider models.ProviderConfig  `yaml:"provider"`
	Telegram remote.TelegramConfig  `yaml:"telegram"`
	Gateway  remote.GatewayConfig   `yaml:"gateway"`
	Webhook  string                 `yaml:"webhook_url"`
	Allowed  []string               `yaml:"allowed_project_paths"`
	System   string                 `yaml:"system_prompt"`
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remote gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			var cfg serveConfig
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}

			handle, err := openDatabase()
			if err != nil {
				return err
			}
			defer handle.Close()

			logger := slog.Default()

			adapter, err := remote.NewTelegramAdapter(cfg.Telegram)
			if err != nil {
				return err
			}

			schemaRail, err := guardrails.NewSchemaValidationGuardrail()
			if err != nil {
				return err
			}

			factory := func(projectPath, providerName, model string) (remote.SessionHandle, error) {
				providerCfg := cfg.Provider
				if providerName != "" {
					providerCfg.Kind = models.ProviderKind(providerName)
				}
				if model != "" {
					providerCfg.Model = model
				}
				provider, err := providers.New(providerCfg)
				if err != nil {
					return nil, err
				}

				registry := tools.NewRegistry()
				registry.Freeze()

				orc := orchestrator.New(provider, registry, []guardrails.Guardrail{schemaRail}, orchestrator.Config{
					Provider:     providerCfg,
					SystemPrompt: cfg.System,
					ProjectRoot:  projectPath,
					SessionID:    uuid.NewString(),
				}, logger)
				return newCLISession(orc), nil
			}

			bridge := remote.NewSessionBridge(factory, cfg.Allowed)
			audit := remote.NewAuditLogger(handle, logger)
			hooks := webhook.NewService(cfg.Webhook, cfg.Provider.Proxy, logger)
			gateway := remote.NewGateway(adapter, bridge, audit, hooks, cfg.Gateway, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return gateway.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "loom.yaml", "path to the serve configuration")
	return cmd
}

// cliSession adapts an orchestrator to the bridge's SessionHandle.
type cliSession struct {
	id     string
	orc    *orchestrator.Orchestrator
	cancel context.CancelFunc
	status string
}

func newCLISession(orc *orchestrator.Orchestrator) *cliSession {
	return &cliSession{id: uuid.NewString()[:8], orc: orc, status: "idle"}
}

func (s *cliSession) ID() string { return s.id }

func (s *cliSession) Send(ctx context.Context, content string) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = "running"
	defer func() { s.status = "idle"; s.cancel = nil }()

	result, err := s.orc.Run(runCtx, content, nil)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%s", result.Error)
	}
	return result.Content, nil
}

func (s *cliSession) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *cliSession) Status() string { return s.status }
func (s *cliSession) Close()         { s.Cancel() }

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List provider capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(providers.Capabilities(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	var kind, model, apiKey, baseURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Health-check one provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providers.New(models.ProviderConfig{
				Kind: models.ProviderKind(kind), Model: model, APIKey: apiKey, BaseURL: baseURL,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := provider.HealthCheck(ctx); err != nil {
				return err
			}
			fmt.Printf("%s: ok (context window %d)\n", provider.Name(), provider.ContextWindow())
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "provider", "", "provider kind")
	cmd.Flags().StringVar(&model, "model", "", "model id")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL override")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newEmbeddingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "embedding", Short: "Embedding configuration"}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the persisted embedding config",
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := openDatabase()
			if err != nil {
				return err
			}
			defer handle.Close()

			cfg, err := settings.NewStore(handle).GetEmbeddingConfig(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	var cfgJSON string
	set := &cobra.Command{
		Use:   "set",
		Short: "Persist the embedding config (JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg settings.PersistedEmbeddingConfig
			if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
				return fmt.Errorf("invalid config JSON: %w", err)
			}

			// Validate by constructing the provider with a placeholder
			// secret; the real key stays in the keyring.
			probe := embedding.Config{
				Type: cfg.Type, Model: cfg.Model, BaseURL: cfg.BaseURL,
				Dimension: cfg.Dimension, BatchSize: cfg.BatchSize, APIKey: "placeholder",
			}
			if _, err := embedding.New(probe); err != nil {
				return err
			}

			handle, err := openDatabase()
			if err != nil {
				return err
			}
			defer handle.Close()
			return settings.NewStore(handle).SetEmbeddingConfig(cmd.Context(), cfg)
		},
	}
	set.Flags().StringVar(&cfgJSON, "json", "", "embedding config as JSON")
	_ = set.MarkFlagRequired("json")
	cmd.AddCommand(set)

	return cmd
}

func newIndexConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "index-config", Short: "Codebase index exclusions"}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print effective exclusions",
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := openDatabase()
			if err != nil {
				return err
			}
			defer handle.Close()

			cfg, err := settings.NewStore(handle).GetCodebaseIndexConfig(cmd.Context())
			if err != nil {
				return err
			}
			dirs, exts := settings.EffectiveExclusions(cfg)
			out, err := json.MarshalIndent(map[string]any{
				"excluded_dirs":     dirs,
				"binary_extensions": exts,
				"user_extras":       cfg,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	var dirs, exts []string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set user extra exclusions",
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := openDatabase()
			if err != nil {
				return err
			}
			defer handle.Close()
			return settings.NewStore(handle).SetCodebaseIndexConfig(cmd.Context(), settings.CodebaseIndexConfig{
				ExtraExcludedDirs:     dirs,
				ExtraBinaryExtensions: exts,
			})
		},
	}
	set.Flags().StringSliceVar(&dirs, "dirs", nil, "extra excluded directories")
	set.Flags().StringSliceVar(&exts, "extensions", nil, "extra binary extensions")
	cmd.AddCommand(set)

	return cmd
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Keyring-backed API keys"}

	var alias, value string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return settings.SetAPIKey(alias, value)
		},
	}
	set.Flags().StringVar(&alias, "alias", "", "key alias (qwen_embedding, glm_embedding, openai_embedding)")
	set.Flags().StringVar(&value, "value", "", "key value")
	_ = set.MarkFlagRequired("alias")
	_ = set.MarkFlagRequired("value")
	cmd.AddCommand(set)

	var getAlias string
	get := &cobra.Command{
		Use:   "get",
		Short: "Check an API key is present",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := settings.GetAPIKey(getAlias); err != nil {
				return err
			}
			fmt.Println("present")
			return nil
		},
	}
	get.Flags().StringVar(&getAlias, "alias", "", "key alias")
	_ = get.MarkFlagRequired("alias")
	cmd.AddCommand(get)

	return cmd
}
