package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/calbot-io/calbot/internal/auth"
	"github.com/calbot-io/calbot/internal/bot"
	"github.com/calbot-io/calbot/internal/calendar"
	"github.com/calbot-io/calbot/internal/classifier"
	"github.com/calbot-io/calbot/internal/dispatch"
	"github.com/calbot-io/calbot/internal/logging"
	"github.com/calbot-io/calbot/internal/server"
	"github.com/calbot-io/calbot/internal/store"
	"github.com/calbot-io/calbot/internal/telegram"
)

// ServeConfig holds all settings for the serve command.
type ServeConfig struct {
	Debug    bool
	HTTPAddr string

	// BaseURL is the public base URL; the OAuth redirect target is
	// BaseURL + /callback and must match the Google Cloud console.
	BaseURL string

	GoogleClientID     string
	GoogleClientSecret string

	TelegramToken string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// StoreDir persists credentials on disk when set; empty keeps them
	// in memory only.
	StoreDir string
}

func newServeCmd() *cobra.Command {
	var cfg ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the OAuth callback server",
		Long: `Start the calbot service: the Telegram polling loop, the intent
classifier, and the HTTP server for the OAuth callback, health probes, and
Prometheus metrics.

Configuration:
  Every flag falls back to an environment variable. A .env file in the
  working directory is loaded if present.

    --base-url              CALBOT_BASE_URL         (required)
    --google-client-id      GOOGLE_CLIENT_ID        (required)
    --google-client-secret  GOOGLE_CLIENT_SECRET    (required)
    --telegram-token        TELEGRAM_BOT_TOKEN      (required)
    --openai-api-key        OPENAI_API_KEY          (required)
    --openai-base-url       OPENAI_BASE_URL
    --openai-model          OPENAI_MODEL
    --store-dir             CALBOT_STORE_DIR
    --http-addr             CALBOT_HTTP_ADDR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is not an error.
			_ = godotenv.Load()

			applyEnvFallbacks(&cfg)
			if err := validateServeConfig(&cfg); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", "", "HTTP server address for callback, health, and metrics. Default :8080. Can also use CALBOT_HTTP_ADDR env var.")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "", "Public base URL for the OAuth redirect, e.g. https://calbot.example.com. Can also use CALBOT_BASE_URL env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth client secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.TelegramToken, "telegram-token", "", "Telegram bot token. Can also use TELEGRAM_BOT_TOKEN env var.")
	cmd.Flags().StringVar(&cfg.OpenAIAPIKey, "openai-api-key", "", "API key for the classification endpoint. Can also use OPENAI_API_KEY env var.")
	cmd.Flags().StringVar(&cfg.OpenAIBaseURL, "openai-base-url", "", "Base URL of an OpenAI-compatible endpoint. Can also use OPENAI_BASE_URL env var.")
	cmd.Flags().StringVar(&cfg.OpenAIModel, "openai-model", "", "Classification model name. Can also use OPENAI_MODEL env var.")
	cmd.Flags().StringVar(&cfg.StoreDir, "store-dir", "", "Directory for persisted credentials. Empty keeps credentials in memory. Can also use CALBOT_STORE_DIR env var.")

	return cmd
}

func applyEnvFallbacks(cfg *ServeConfig) {
	fallback := func(value *string, key string) {
		if *value == "" {
			*value = os.Getenv(key)
		}
	}
	fallback(&cfg.HTTPAddr, "CALBOT_HTTP_ADDR")
	fallback(&cfg.BaseURL, "CALBOT_BASE_URL")
	fallback(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	fallback(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	fallback(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	fallback(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	fallback(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	fallback(&cfg.OpenAIModel, "OPENAI_MODEL")
	fallback(&cfg.StoreDir, "CALBOT_STORE_DIR")
}

func validateServeConfig(cfg *ServeConfig) error {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "--base-url / CALBOT_BASE_URL")
	}
	if cfg.GoogleClientID == "" {
		missing = append(missing, "--google-client-id / GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "--google-client-secret / GOOGLE_CLIENT_SECRET")
	}
	if cfg.TelegramToken == "" {
		missing = append(missing, "--telegram-token / TELEGRAM_BOT_TOKEN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "--openai-api-key / OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runServe(cfg ServeConfig) error {
	logger := logging.Setup(cfg.Debug)

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Credential store
	var credStore store.Store
	if cfg.StoreDir != "" {
		fileStore, err := store.NewFileStore(cfg.StoreDir, logger)
		if err != nil {
			return fmt.Errorf("failed to create credential store: %w", err)
		}
		credStore = fileStore
		logger.Info("using file credential store", slog.String("dir", cfg.StoreDir))
	} else {
		credStore = store.NewMemoryStore(logger)
		logger.Info("using in-memory credential store")
	}

	// OAuth lifecycle
	redirectURL := strings.TrimRight(cfg.BaseURL, "/") + server.CallbackPath
	oauthConfig := auth.NewGoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, redirectURL)
	locks := auth.NewUserLocks()
	coordinator := auth.NewCoordinator(oauthConfig, credStore, locks, logger)
	refresher := auth.NewRefresher(oauthConfig, credStore, locks, logger)

	// Metrics
	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	refresher.SetObserver(metrics)

	// Dispatch
	backend := calendar.NewGoogleBackend()
	engine := dispatch.NewEngine(refresher, backend, logger)
	engine.SetObserver(metrics)

	// Chat
	transport, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}
	cls := classifier.NewOpenAIClassifier(classifier.Config{
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		APIKey:  cfg.OpenAIAPIKey,
	}, logger)
	router := bot.NewRouter(transport, cls, coordinator, engine, logger)

	// HTTP surface
	health := server.NewHealthChecker()
	httpServer := server.New(server.Config{
		Addr:        cfg.HTTPAddr,
		Coordinator: coordinator,
		Sessions:    credStore,
		Notifier:    router,
		Health:      health,
		Metrics:     metrics,
		Logger:      logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- router.Run(shutdownCtx)
	}()

	health.SetReady(true)
	logger.Info("calbot started",
		slog.String("version", version),
		slog.String("redirect_url", redirectURL))

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	case err := <-routerErr:
		if err != nil && shutdownCtx.Err() == nil {
			runErr = fmt.Errorf("chat loop failed: %w", err)
		}
	}

	health.SetReady(false)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Error("http server shutdown failed", logging.Err(err))
	}

	return runErr
}
