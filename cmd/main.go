package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Riboost-Studio/print-agent/internal/agent"
	"github.com/Riboost-Studio/print-agent/internal/config"
	"github.com/Riboost-Studio/print-agent/internal/utils"
)

const appVersion = "2.0.0"

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("print agent exited")
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		dryRun      bool
		logLevel    string
		template    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("print-agent", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to the .env file")
	flagSet.BoolVar(&dryRun, "dry-run", false, "write tickets to files instead of the printer")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&template, "template", "", "default ticket template")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("print-agent %s\n", appVersion)
		return nil
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(console)

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flagSet.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if template != "" {
		cfg.DefaultTemplate = template
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	root := utils.AppDataPath(cfg.AppDataDir)
	store, err := utils.NewStore(root)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(filepath.Join(store.LogsDir(), "agent.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logger := zerolog.New(zerolog.MultiLevelWriter(console, logFile)).With().Timestamp().Logger()
	log.Logger = logger

	if cfg.UsesPlaceholderToken() {
		logger.Warn().Msg("PRINT_AGENT_TOKEN is the sample token, set a real one in production")
	}

	sys := utils.DetectSystem(root)
	logger.Info().
		Str("version", appVersion).
		Str("os", sys.OS).
		Str("arch", sys.Architecture).
		Str("hostname", sys.Hostname).
		Str("ip", sys.LocalIP).
		Str("data_dir", sys.AppDataPath).
		Bool("chrome", sys.ChromePresent).
		Str("server", cfg.ServerURL).
		Str("restaurant_id", cfg.RestaurantID).
		Bool("dry_run", cfg.DryRun).
		Msg("starting print agent")

	a, err := agent.New(cfg, store, appVersion, logger)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			a.EmergencyBackup()
			panic(r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
