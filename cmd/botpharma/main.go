// botpharma runs the Léa WhatsApp assistant for the Parapharmacie
// Libreville: the webhook API, the conversation pipeline and the scheduled
// post-purchase automations.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FranckSowax/botpharma/internal/api"
	"github.com/FranckSowax/botpharma/internal/automation"
	"github.com/FranckSowax/botpharma/internal/genai"
	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/pipeline"
	"github.com/FranckSowax/botpharma/internal/scheduler"
	"github.com/FranckSowax/botpharma/internal/store"
	"github.com/FranckSowax/botpharma/internal/twiliowhatsapp"
	"github.com/FranckSowax/botpharma/internal/util"
	"github.com/FranckSowax/botpharma/internal/whapi"
	"github.com/FranckSowax/botpharma/internal/whatsapp"
)

const (
	// DefaultStateDir is where botpharma keeps its SQLite databases.
	DefaultStateDir = "/var/lib/botpharma"
	// DefaultDBFileName is the store database file inside the state directory.
	DefaultDBFileName = "botpharma.db"
	// DefaultAutomationCron runs the automation cycle every morning at nine.
	DefaultAutomationCron = "0 9 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping botpharma", "provider", *flags.provider, "api_addr", *flags.apiAddr)
	if err := run(flags); err != nil {
		slog.Error("botpharma failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("botpharma exited successfully")
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	Provider       string
	WhapiKey       string
	WhapiBaseURL   string
	CartBaseURL    string
	AutomationCron string
}

// Flags holds command line flag values.
type Flags struct {
	dbDSN          *string
	stateDir       *string
	openaiKey      *string
	apiAddr        *string
	provider       *string
	whapiKey       *string
	whapiBaseURL   *string
	cartBaseURL    *string
	automationCron *string
	qrOutput       *string
	numeric        *bool
}

func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// the .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("BOTPHARMA_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		Provider:       os.Getenv("MESSAGING_PROVIDER"),
		WhapiKey:       os.Getenv("WHAPI_API_KEY"),
		WhapiBaseURL:   os.Getenv("WHAPI_BASE_URL"),
		CartBaseURL:    os.Getenv("ECOMMERCE_CART_BASE_URL"),
		AutomationCron: os.Getenv("AUTOMATION_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOTPHARMA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.Provider == "" {
		config.Provider = "whapi"
	}
	if config.AutomationCron == "" {
		config.AutomationCron = DefaultAutomationCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BOTPHARMA_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"MESSAGING_PROVIDER", config.Provider,
		"WHAPI_API_KEY_SET", config.WhapiKey != "",
		"AUTOMATION_SCHEDULE", config.AutomationCron)
	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for botpharma data (overrides $BOTPHARMA_STATE_DIR)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:       flag.String("provider", config.Provider, "messaging provider: whapi, whatsmeow or twilio (overrides $MESSAGING_PROVIDER)"),
		whapiKey:       flag.String("whapi-api-key", config.WhapiKey, "Whapi.Cloud API key (overrides $WHAPI_API_KEY)"),
		whapiBaseURL:   flag.String("whapi-base-url", config.WhapiBaseURL, "Whapi.Cloud base URL (overrides $WHAPI_BASE_URL)"),
		cartBaseURL:    flag.String("cart-base-url", config.CartBaseURL, "e-commerce cart base URL (overrides $ECOMMERCE_CART_BASE_URL)"),
		automationCron: flag.String("automation-cron", config.AutomationCron, "cron schedule for the automation cycle (overrides $AUTOMATION_SCHEDULE)"),
		qrOutput:       flag.String("qr-output", "", "path to write the whatsmeow login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use a numeric whatsmeow login code instead of a QR code"),
	}
	flag.Parse()
	return flags
}

func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildMessagingService constructs the Service for the configured provider.
// For whatsmeow it also returns the underlying client so incoming events can
// be wired to the pipeline.
func buildMessagingService(flags Flags) (messaging.Service, *whatsapp.Client, error) {
	switch *flags.provider {
	case "whatsmeow":
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db") + "?_foreign_keys=on"),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), client, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewTwilioService(client), nil, nil
	default:
		whapiOpts := []whapi.Option{whapi.WithAPIKey(*flags.whapiKey)}
		if *flags.whapiBaseURL != "" {
			whapiOpts = append(whapiOpts, whapi.WithBaseURL(*flags.whapiBaseURL))
		}
		client, err := whapi.NewClient(whapiOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhapiService(client), nil, nil
	}
}

func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, waClient, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if waClient != nil {
		defer waClient.Disconnect()
	}

	genaiOpts := []genai.Option{}
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithHistoryLimit(util.ParseIntEnv("PIPELINE_HISTORY_LIMIT", pipeline.DefaultHistoryLimit)),
	}
	if *flags.cartBaseURL != "" {
		pipeOpts = append(pipeOpts, pipeline.WithCartBaseURL(*flags.cartBaseURL))
	}
	handler := pipeline.NewHandler(st, ai, msgService, pipeOpts...)

	orch := automation.NewOrchestrator(st, msgService)

	// Over whatsmeow, incoming messages arrive as events instead of
	// webhooks; feed them straight into the pipeline.
	if waClient != nil {
		waClient.OnIncoming(func(in models.IncomingMessage) {
			if _, err := handler.HandleIncoming(context.Background(), in); err != nil {
				slog.Error("Incoming WhatsApp message failed", "error", err, "from", in.From)
			}
		})
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if util.ParseBoolEnv("AUTOMATION_ENABLED", true) {
		if err := sched.AddJob(*flags.automationCron, func() {
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			orch.RunAll(runCtx, time.Now())
		}); err != nil {
			return err
		}
		slog.Info("Automation cycle scheduled", "cron", *flags.automationCron)
	} else {
		slog.Warn("Automation cycle disabled by AUTOMATION_ENABLED")
	}

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, handler, orch, apiOpts...)
	return server.Start(ctx)
}
