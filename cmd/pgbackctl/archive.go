package main

import (
	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/models"
)

func archiveCmds() []*cobra.Command {
	return []*cobra.Command{
		createArchiveCommand(),
		alterArchiveCommand(),
		dropArchiveCommand(),
		verifyArchiveCommand(),
		listArchivesCommand(),
	}
}

func createArchiveCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var existsOk bool

	cmd := &cobra.Command{
		Use:   "create-archive NAME",
		Short: "Register a backup archive and its basebackup connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.CreateArchive
			descr.ArchiveName = args[0]
			if existsOk {
				// The directory selects the existing row, the name
				// and compression flags become the update set.
				descr.PushAttribute(models.ArchiveAttrName)
				if cmd.Flags().Changed("compression") {
					descr.PushAttribute(models.ArchiveAttrCompression)
				}
			}
			return dispatch(descr, existsOk)
		},
	}

	cmd.Flags().StringVarP(&descr.Directory, "directory", "d", "", "archive directory (required)")
	cmd.Flags().BoolVar(&descr.Compression, "compression", false, "compress archived WAL segments")
	cmd.Flags().StringVar(&descr.Coninfo.PGHost, "pghost", "localhost", "PostgreSQL host")
	cmd.Flags().IntVar(&descr.Coninfo.PGPort, "pgport", 5432, "PostgreSQL port")
	cmd.Flags().StringVar(&descr.Coninfo.PGUser, "pguser", "postgres", "replication user")
	cmd.Flags().StringVar(&descr.Coninfo.PGDatabase, "pgdatabase", "postgres", "database name")
	cmd.Flags().StringVar(&descr.Coninfo.DSN, "dsn", "", "connection DSN (overrides host/port/user/database)")
	cmd.Flags().BoolVar(&existsOk, "exists-ok", false, "update the archive if it already exists")
	_ = cmd.MarkFlagRequired("directory")
	return cmd
}

func alterArchiveCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:   "alter-archive NAME",
		Short: "Change attributes of a registered archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.AlterArchive
			descr.ArchiveName = args[0]
			if cmd.Flags().Changed("directory") {
				descr.PushAttribute(models.ArchiveAttrDirectory)
			}
			if cmd.Flags().Changed("compression") {
				descr.PushAttribute(models.ArchiveAttrCompression)
			}
			if len(descr.Attributes()) == 0 {
				return cmd.Help()
			}
			return dispatch(descr, ignoreMissing)
		},
	}

	cmd.Flags().StringVarP(&descr.Directory, "directory", "d", "", "move the archive directory")
	cmd.Flags().BoolVar(&descr.Compression, "compression", false, "compress archived WAL segments")
	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "succeed when the archive does not exist")
	return cmd
}

func dropArchiveCommand() *cobra.Command {
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:   "drop-archive NAME",
		Short: "Remove an archive and its catalog entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.DropArchive
			descr.ArchiveName = args[0]
			return dispatch(descr, ignoreMissing)
		},
	}

	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "succeed when the archive does not exist")
	return cmd
}

func verifyArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-archive NAME",
		Short: "Check the on-disk structure of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.VerifyArchive
			descr.ArchiveName = args[0]
			return dispatch(descr, false)
		},
	}
}

func listArchivesCommand() *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "list-archives [NAME]",
		Short: "List registered archives",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListArchive
			if len(args) == 1 {
				descr.ArchiveName = args[0]
				descr.PushAttribute(models.ArchiveAttrName)
			}
			return dispatch(descr, details)
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "include connection details")
	return cmd
}
