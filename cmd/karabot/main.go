package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/karabot/karabot/internal/api"
	"github.com/karabot/karabot/internal/flow"
	"github.com/karabot/karabot/internal/store"
	"github.com/karabot/karabot/internal/util"
	"github.com/karabot/karabot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for KaraBot state data
	DefaultStateDir = "/var/lib/karabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "karabot.db"
	// DefaultScriptFileName is the default conversation script filename
	DefaultScriptFileName = "script.json"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	flowCfg := buildFlowConfig(config)
	apiOpts := buildAPIOptions(config, flags)

	slog.Info("Bootstrapping KaraBot with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(waOpts, storeOpts, flowCfg, apiOpts); err != nil {
		slog.Error("KaraBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("KaraBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppToken     string
	PhoneNumberID     string
	VerifyToken       string
	AdminUsername     string
	AdminPassword     string
	DatabaseURL       string
	StateDir          string
	APIAddr           string
	ScriptPath        string
	PublicBaseURL     string
	PromoImageURL     string
	PromoImageCaption string
	InfoLinkURL       string
	FallbackText      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	apiAddr    *string
	scriptPath *string
	waToken    *string
	waPhoneID  *string
}

// initializeLogger sets up structured logging; KARABOT_DEBUG raises the level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("KARABOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		WhatsAppToken:     os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:     os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		VerifyToken:       os.Getenv("VERIFY_TOKEN"),
		AdminUsername:     util.GetenvDefault("ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          util.GetenvDefault("KARABOT_STATE_DIR", DefaultStateDir),
		APIAddr:           os.Getenv("API_ADDR"),
		ScriptPath:        os.Getenv("SCRIPT_PATH"),
		PublicBaseURL:     util.GetenvDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		PromoImageURL:     os.Getenv("PROMO_IMAGE_URL"),
		PromoImageCaption: os.Getenv("PROMO_IMAGE_CAPTION"),
		InfoLinkURL:       os.Getenv("INFO_LINK_URL"),
		FallbackText:      os.Getenv("FALLBACK_TEXT"),
	}

	// Default to SQLite in the state directory when no database URL is set.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ScriptPath == "" {
		config.ScriptPath = filepath.Join(config.StateDir, DefaultScriptFileName)
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_TOKEN_SET", config.WhatsAppToken != "",
		"WHATSAPP_PHONE_NUMBER_ID_SET", config.PhoneNumberID != "",
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"KARABOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"SCRIPT_PATH", config.ScriptPath)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for KaraBot data (overrides $KARABOT_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		scriptPath: flag.String("script", config.ScriptPath, "conversation script path (overrides $SCRIPT_PATH)"),
		waToken:    flag.String("whatsapp-token", config.WhatsAppToken, "WhatsApp Cloud API token (overrides $WHATSAPP_TOKEN)"),
		waPhoneID:  flag.String("phone-number-id", config.PhoneNumberID, "WhatsApp phone number id (overrides $WHATSAPP_PHONE_NUMBER_ID)"),
	}

	flag.Parse()

	// Keep the SQLite default in step with an overridden state directory.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.waToken != "" {
		waOpts = append(waOpts, whatsapp.WithToken(*flags.waToken))
	}
	if *flags.waPhoneID != "" {
		waOpts = append(waOpts, whatsapp.WithPhoneNumberID(*flags.waPhoneID))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildFlowConfig constructs the flow engine copy configuration
func buildFlowConfig(config Config) flow.Config {
	return flow.Config{
		PromoImageURL:     config.PromoImageURL,
		PromoImageCaption: config.PromoImageCaption,
		InfoLinkURL:       config.InfoLinkURL,
		FallbackText:      config.FallbackText,
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithVerifyToken(config.VerifyToken),
		api.WithAdminCredentials(config.AdminUsername, config.AdminPassword),
		api.WithUploadsDir(filepath.Join(*flags.stateDir, "uploads")),
		api.WithMediaDir(filepath.Join(*flags.stateDir, "media")),
		api.WithPublicBaseURL(config.PublicBaseURL),
		api.WithScriptPath(*flags.scriptPath),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
