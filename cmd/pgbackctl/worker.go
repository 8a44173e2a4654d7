package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/command"
	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/models"
)

// workerCmd is the hidden entry point a detached launcher child runs.
// It opens its own catalog handle and executes the assigned job.
// Errors never cross the process boundary: the worker logs and exits
// non-zero.
func workerCmd() *cobra.Command {
	var workerCatalog string
	var archiveName string

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Int("pid", os.Getpid()).
				Str("catalog", workerCatalog).
				Str("archive", archiveName).
				Msg("background worker started")

			if archiveName == "" {
				log.Info().Msg("no archive assigned, worker exiting")
				return nil
			}

			rt := command.Runtime{
				Logger:  log.Logger,
				Catalog: catalog.New(log.Logger, workerCatalog),
				Vars:    config.NewVariables(),
				Out:     os.Stdout,
			}
			defer func() {
				if err := rt.Catalog.Close(); err != nil {
					log.Warn().Err(err).Msg("catalog close failed")
				}
			}()

			descr := models.NewCatalogDescr()
			descr.Tag = models.BackgroundWorkerCommand
			descr.ArchiveName = archiveName

			job, err := command.New(rt, descr)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := job.Execute(ctx, true); err != nil {
				log.Error().Err(err).Str("archive", archiveName).Msg("worker job failed")
				return err
			}

			log.Info().Str("archive", archiveName).Msg("worker job completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&workerCatalog, "catalog", "", "catalog database path")
	cmd.Flags().StringVar(&archiveName, "archive", "", "archive to back up")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}
