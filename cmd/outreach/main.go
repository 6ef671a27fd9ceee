// Command outreach runs LinkedIn outreach campaigns: it schedules each lead's
// sequence steps, executes them in per-account browser sessions within daily
// limits, and exposes campaign control and status commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/storage"
)

// Version info
const (
	AppName    = "outreach"
	AppVersion = "1.0.0"
)

// options are the persistent flags shared by every command
type options struct {
	configPath string
	logLevel   string
	headless   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          AppName,
		Short:        "LinkedIn campaign action orchestration engine",
		Version:      AppVersion,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "./config/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.headless, "headless", false, "Force headless browser mode")

	root.AddCommand(
		newRunCommand(opts),
		newCampaignCommand(opts),
		newStatusCommand(opts),
		newSeedCommand(opts),
	)
	return root
}

// App holds the configuration, logger and stores every command needs
type App struct {
	config *config.Config
	logger zerolog.Logger
	db     *storage.Database

	campaigns *storage.CampaignStore
	sequences *storage.SequenceStore
	leads     *storage.LeadStore
	actions   *storage.ActionStore
	accounts  *storage.AccountStore
	proxies   *storage.ProxyStore
	stats     *storage.StatsStore
}

// NewApp loads and validates configuration, sets up logging and opens the database
func NewApp(opts *options) (*App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.headless {
		cfg.Browser.Headless = true
	}

	app := &App{config: cfg}
	app.setupLogging()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db

	app.campaigns = storage.NewCampaignStore(db)
	app.sequences = storage.NewSequenceStore(db)
	app.leads = storage.NewLeadStore(db)
	app.actions = storage.NewActionStore(db)
	app.accounts = storage.NewAccountStore(db)
	app.proxies = storage.NewProxyStore(db)
	app.stats = storage.NewStatsStore(db)

	app.logger.Debug().Str("database", cfg.Storage.DatabasePath).Msg("Application initialized")
	return app, nil
}

// setupLogging configures the root logger from the config
func (app *App) setupLogging() {
	level, err := zerolog.ParseLevel(app.config.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if app.config.LogFormat == "json" {
		app.logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		app.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	log.Logger = app.logger
}

// Cleanup releases the database
func (app *App) Cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// withApp builds the App for a command and releases it afterwards
func withApp(opts *options, fn func(app *App) error) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Cleanup()
	return fn(app)
}
