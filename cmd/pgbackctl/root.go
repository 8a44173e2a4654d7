package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/command"
	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/launcher"
	"github.com/fgeck/pgbackctl/internal/models"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile  string
	catalogPath string
	verbose     bool
	quiet       bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "pgbackctl",
	Short: "A PostgreSQL base backup and archive catalog manager",
	Long: `pgbackctl manages PostgreSQL backup archives:
  - Archive and connection registration in a SQLite catalog
  - Base backups over the streaming replication protocol
  - Backup profiles (compression, rate limits, checkpoint behavior)
  - Retention policies with pin/unpin protection
  - A detached background worker for unattended backups

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(archiveCmds()...)
	rootCmd.AddCommand(connectionCmds()...)
	rootCmd.AddCommand(profileCmds()...)
	rootCmd.AddCommand(backupCmds()...)
	rootCmd.AddCommand(retentionCmds()...)
	rootCmd.AddCommand(variableCmds()...)
	rootCmd.AddCommand(workerCmd())
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// newRuntime assembles the command runtime from flags and the optional
// config file. The catalog handle is created closed; commands open it
// on first use.
func newRuntime() (command.Runtime, error) {
	cfg := &models.ToolConfig{}

	if configFile != "" {
		parser := config.NewParser()
		loaded, err := parser.LoadFile(configFile)
		if err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
			return command.Runtime{}, err
		}
		if err := config.Validate(loaded); err != nil {
			log.Error().Err(err).Msg("invalid configuration")
			return command.Runtime{}, err
		}
		cfg = loaded
	}

	path := catalogPath
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		defaultPath, err := config.DefaultCatalogPath()
		if err != nil {
			return command.Runtime{}, err
		}
		path = defaultPath
	}

	vars := config.NewVariables()
	for name, value := range cfg.Variables {
		if err := vars.SetFromString(name, value); err != nil {
			log.Error().Err(err).Str("variable", name).Msg("invalid config variable")
			return command.Runtime{}, err
		}
	}

	return command.Runtime{
		Logger:   log.Logger,
		Catalog:  catalog.New(log.Logger, path),
		Vars:     vars,
		Launcher: launcher.New(log.Logger),
		Out:      os.Stdout,
	}, nil
}

// dispatch runs one descriptor through the command factory with signal
// aware cancellation.
func dispatch(descr *models.CatalogDescr, flag bool) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Catalog.Close(); err != nil {
			log.Warn().Err(err).Msg("catalog close failed")
		}
	}()

	cmd, err := command.New(rt, descr)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := cmd.Execute(ctx, flag); err != nil {
		log.Error().Err(err).Str("command", descr.Tag.String()).Msg("command failed")
		return err
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
