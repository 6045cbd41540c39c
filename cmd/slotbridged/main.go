package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/playnexus/slotbridge/internal/httpapi"
	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/internal/providerapi"
	"github.com/playnexus/slotbridge/internal/slot"
	"github.com/playnexus/slotbridge/internal/store/gormstore"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagCallbackBaseURL = "callback-base-url"
	flagProvidersConfig = "providers-config"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagFreshness       = "freshness-window"
	flagSweepInterval   = "sweep-interval"
	flagAllowedOrigins  = "allowed-origins"
	flagCurrencyCode    = "currency-code"
	flagHomeURL         = "home-url"
	flagLanguage        = "language"
	flagPlatform        = "platform"
	flagProviderTimeout = "provider-timeout"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyCallbackBaseURL = "callback_base_url"
	configKeyProvidersConfig = "providers_config"
	configKeyJWTSigningKey   = "jwt_signing_key"
	configKeyJWTIssuer       = "jwt_issuer"
	configKeyFreshness       = "freshness_window"
	configKeySweepInterval   = "sweep_interval"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyCurrencyCode    = "currency_code"
	configKeyHomeURL         = "home_url"
	configKeyLanguage        = "language"
	configKeyPlatform        = "platform"
	configKeyProviderTimeout = "provider_timeout"

	defaultDatabaseURL     = "sqlite:///tmp/slotbridge.db"
	defaultListenAddr      = ":8080"
	defaultFreshness       = 5 * time.Minute
	defaultSweepInterval   = time.Minute
	defaultSweepBatch      = 100
	defaultCurrencyCode    = "PHP"
	defaultLanguage        = "en"
	defaultPlatform        = "web"
	defaultProviderTimeout = 30 * time.Second
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	CallbackBaseURL string
	ProvidersConfig string
	JWTSigningKey   string
	JWTIssuer       string
	Freshness       time.Duration
	SweepInterval   time.Duration
	AllowedOrigins  []string
	CurrencyCode    string
	HomeURL         string
	Language        string
	Platform        string
	ProviderTimeout time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "slotbridged: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "slotbridged",
		Short:         "Slot-provider integration and wallet reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runService(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagCallbackBaseURL, "", "public base URL providers call back to")
	cmd.Flags().String(flagProvidersConfig, "", "YAML file with the provider registry")
	cmd.Flags().String(flagJWTSigningKey, "", "HMAC signing key for player bearer tokens")
	cmd.Flags().String(flagJWTIssuer, "", "expected issuer of player bearer tokens")
	cmd.Flags().Duration(flagFreshness, defaultFreshness, "accepted callback timestamp skew")
	cmd.Flags().Duration(flagSweepInterval, defaultSweepInterval, "session expiry sweep interval")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().String(flagCurrencyCode, defaultCurrencyCode, "currency code sent on launches")
	cmd.Flags().String(flagHomeURL, "", "lobby URL embedded in launch payloads")
	cmd.Flags().String(flagLanguage, defaultLanguage, "language sent on launches")
	cmd.Flags().String(flagPlatform, defaultPlatform, "platform tag sent on launches")
	cmd.Flags().Duration(flagProviderTimeout, defaultProviderTimeout, "outbound provider call timeout")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyCallbackBaseURL: "CALLBACK_BASE_URL",
		configKeyProvidersConfig: "PROVIDERS_CONFIG",
		configKeyJWTSigningKey:   "JWT_SIGNING_KEY",
		configKeyJWTIssuer:       "JWT_ISSUER",
		configKeyFreshness:       "FRESHNESS_WINDOW",
		configKeySweepInterval:   "SWEEP_INTERVAL",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyCurrencyCode:    "CURRENCY_CODE",
		configKeyHomeURL:         "HOME_URL",
		configKeyLanguage:        "LANGUAGE",
		configKeyPlatform:        "PLATFORM",
		configKeyProviderTimeout: "PROVIDER_TIMEOUT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyCallbackBaseURL: flagCallbackBaseURL,
		configKeyProvidersConfig: flagProvidersConfig,
		configKeyJWTSigningKey:   flagJWTSigningKey,
		configKeyJWTIssuer:       flagJWTIssuer,
		configKeyFreshness:       flagFreshness,
		configKeySweepInterval:   flagSweepInterval,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyCurrencyCode:    flagCurrencyCode,
		configKeyHomeURL:         flagHomeURL,
		configKeyLanguage:        flagLanguage,
		configKeyPlatform:        flagPlatform,
		configKeyProviderTimeout: flagProviderTimeout,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.CallbackBaseURL = viper.GetString(configKeyCallbackBaseURL)
	cfg.ProvidersConfig = viper.GetString(configKeyProvidersConfig)
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.JWTIssuer = viper.GetString(configKeyJWTIssuer)
	cfg.Freshness = viper.GetDuration(configKeyFreshness)
	cfg.SweepInterval = viper.GetDuration(configKeySweepInterval)
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins))
	cfg.CurrencyCode = viper.GetString(configKeyCurrencyCode)
	cfg.HomeURL = viper.GetString(configKeyHomeURL)
	cfg.Language = viper.GetString(configKeyLanguage)
	cfg.Platform = viper.GetString(configKeyPlatform)
	cfg.ProviderTimeout = viper.GetDuration(configKeyProviderTimeout)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.CallbackBaseURL == "" {
		return fmt.Errorf("callback base url is required")
	}
	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = defaultFreshness
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return nil
}

func runService(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	if cfg.ProvidersConfig != "" {
		if err := loadProviderRegistry(ctx, store, cfg.ProvidersConfig, logger); err != nil {
			return fmt.Errorf("provider registry: %w", err)
		}
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	ledger, err := wallet.NewLedger(clock, wallet.WithOperationLogger(zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}

	providerClient := providerapi.NewClient(cfg.ProviderTimeout, logger)
	launcher, err := slot.NewLauncher(store, providerClient, slot.LaunchConfig{
		CallbackBaseURL: cfg.CallbackBaseURL,
		HomeURL:         cfg.HomeURL,
		CurrencyCode:    cfg.CurrencyCode,
		Language:        cfg.Language,
		Platform:        cfg.Platform,
	}, time.Now, logger)
	if err != nil {
		return fmt.Errorf("launcher init: %w", err)
	}
	reconciler, err := slot.NewReconciler(store, ledger, time.Now, cfg.Freshness, logger)
	if err != nil {
		return fmt.Errorf("reconciler init: %w", err)
	}
	sweeper, err := slot.NewSweeper(store, providerClient, ledger, time.Now, cfg.SweepInterval, defaultSweepBatch, logger)
	if err != nil {
		return fmt.Errorf("sweeper init: %w", err)
	}
	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSigningKey:  cfg.JWTSigningKey,
		JWTIssuer:      cfg.JWTIssuer,
	}, store, ledger, launcher, reconciler, logger)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go func() {
		if err := sweeper.Run(sweepCtx); err != nil && ctx.Err() == nil {
			logger.Warn("sweeper stopped", zap.Error(err))
		}
	}()

	return server.Run(ctx)
}

// providerRegistry is the YAML shape of the provider config file.
type providerRegistry struct {
	Providers []struct {
		Code           string        `mapstructure:"code"`
		Name           string        `mapstructure:"name"`
		APIBaseURL     string        `mapstructure:"api_base_url"`
		AgencyUID      string        `mapstructure:"agency_uid"`
		EncryptionKey  string        `mapstructure:"encryption_key"`
		PlayerPrefix   string        `mapstructure:"player_prefix"`
		CipherMode     string        `mapstructure:"cipher_mode"`
		SessionTimeout time.Duration `mapstructure:"session_timeout"`
		Active         bool          `mapstructure:"active"`
		WalletModes    struct {
			Seamless bool `mapstructure:"seamless"`
			Transfer bool `mapstructure:"transfer"`
			Demo     bool `mapstructure:"demo"`
		} `mapstructure:"wallet_modes"`
		Games []struct {
			RemoteGameUID string `mapstructure:"remote_game_uid"`
			Name          string `mapstructure:"name"`
			Category      string `mapstructure:"category"`
			Manufacturer  string `mapstructure:"manufacturer"`
			Active        bool   `mapstructure:"active"`
		} `mapstructure:"games"`
	} `mapstructure:"providers"`
}

// loadProviderRegistry upserts the configured providers and their game
// catalogs at boot. The registry file is the source of truth for provider
// credentials; rows are never mutated at runtime.
func loadProviderRegistry(ctx context.Context, store *gormstore.Store, path string, logger *zap.Logger) error {
	registryViper := viper.New()
	registryViper.SetConfigFile(path)
	if err := registryViper.ReadInConfig(); err != nil {
		return err
	}
	var registry providerRegistry
	if err := registryViper.Unmarshal(&registry); err != nil {
		return err
	}

	for _, entry := range registry.Providers {
		mode, err := payload.ParseCipherMode(entry.CipherMode)
		if err != nil {
			return fmt.Errorf("provider %s: %w", entry.Code, err)
		}
		provider, err := store.UpsertProvider(ctx, slot.Provider{
			Code:          entry.Code,
			Name:          entry.Name,
			APIBaseURL:    entry.APIBaseURL,
			AgencyUID:     entry.AgencyUID,
			EncryptionKey: entry.EncryptionKey,
			PlayerPrefix:  entry.PlayerPrefix,
			CipherMode:    mode,
			WalletModes: slot.WalletModes{
				Seamless: entry.WalletModes.Seamless,
				Transfer: entry.WalletModes.Transfer,
				Demo:     entry.WalletModes.Demo,
			},
			SessionTimeout: entry.SessionTimeout,
			Active:         entry.Active,
		})
		if err != nil {
			return fmt.Errorf("provider %s: %w", entry.Code, err)
		}
		for _, game := range entry.Games {
			if _, err := store.UpsertGame(ctx, slot.Game{
				ProviderID:    provider.ID,
				RemoteGameUID: game.RemoteGameUID,
				Name:          game.Name,
				Category:      game.Category,
				Manufacturer:  game.Manufacturer,
				Active:        game.Active,
			}); err != nil {
				return fmt.Errorf("provider %s game %s: %w", entry.Code, game.RemoteGameUID, err)
			}
		}
		logger.Info("provider registered",
			zap.String("code", provider.Code),
			zap.Int("games", len(entry.Games)),
			zap.Bool("active", provider.Active))
	}
	return nil
}

// zapOperationLogger forwards ledger operation logs to zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (operationLogger zapOperationLogger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.Int64("user_id", entry.UserID.Int64()),
		zap.String("type", entry.Type.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("reference", entry.Reference),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("ledger operation", fields...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "slotbridge.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
