package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/entrylane/onboard/internal/api"
	"github.com/entrylane/onboard/internal/flow"
	"github.com/entrylane/onboard/internal/notify"
	"github.com/entrylane/onboard/internal/session"
	"github.com/entrylane/onboard/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Onboard state data
	DefaultStateDir = "/var/lib/onboard"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "onboard.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags)
	notifier := buildNotifier(flags)

	st, err := store.New(storeOpts...)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	defs := flow.NewDefinitionStore(st)
	orch := flow.NewStageOrchestrator(st, notifier, nil, nil)
	sessions := session.NewManager(st, defs, orch)
	server := api.NewServer(st, defs, orch, sessions, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the service
	slog.Info("Bootstrapping Onboard with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "redis_set", *flags.redisAddr != "", "api_addr", *flags.apiAddr)
	if err := server.Run(ctx); err != nil {
		slog.Error("Onboard failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Onboard exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	StateDir      string
	APIAddr       string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	TwilioOps     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	redisAddr     *string
	redisPassword *string
	apiAddr       *string
	twilioSID     *string
	twilioToken   *string
	twilioFrom    *string
	twilioOps     *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		StateDir:      os.Getenv("ONBOARD_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioOps:     os.Getenv("TWILIO_OPS_NUMBER"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ONBOARD_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("ONBOARD_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL and no Redis address, default to SQLite in the state directory
	if config.DatabaseURL == "" && config.RedisAddr == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"ONBOARD_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"TWILIO_FROM_NUMBER", config.TwilioFrom)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for Onboard data (overrides $ONBOARD_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		redisAddr:     flag.String("redis-addr", config.RedisAddr, "Redis address for the store (overrides $REDIS_ADDR)"),
		redisPassword: flag.String("redis-password", config.RedisPassword, "Redis auth password (overrides $REDIS_PASSWORD)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		twilioSID:     flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:   flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:    flag.String("twilio-from", config.TwilioFrom, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioOps:     flag.String("twilio-ops", config.TwilioOps, "operations number for completion notices (overrides $TWILIO_OPS_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr_set", *flags.redisAddr != "",
		"apiAddr", *flags.apiAddr,
		"twilioSID_set", *flags.twilioSID != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.redisAddr != "" {
		slog.Debug("Configuring Redis store", "addr", *flags.redisAddr)
		storeOpts = append(storeOpts, store.WithRedisAddr(*flags.redisAddr))
		if *flags.redisPassword != "" {
			storeOpts = append(storeOpts, store.WithRedisPassword(*flags.redisPassword))
		}
		return storeOpts
	}
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// buildNotifier selects the completion notifier. Twilio requires the full
// credential set; anything less falls back to log-only delivery.
func buildNotifier(flags Flags) notify.Notifier {
	if *flags.twilioSID != "" && *flags.twilioToken != "" && *flags.twilioFrom != "" && *flags.twilioOps != "" {
		return notify.NewTwilioNotifier(notify.TwilioOpts{
			AccountSID: *flags.twilioSID,
			AuthToken:  *flags.twilioToken,
			From:       *flags.twilioFrom,
			OpsNumber:  *flags.twilioOps,
		})
	}
	slog.Debug("Twilio credentials incomplete, using log notifier")
	return notify.NewLogNotifier()
}
