package main

import (
	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/models"
)

func backupCmds() []*cobra.Command {
	return []*cobra.Command{
		startBasebackupCommand(),
		listBackupsCommand(),
		catalogStatusCommand(),
		pinCommand(models.PinBasebackup),
		pinCommand(models.UnpinBasebackup),
		startLauncherCommand(),
	}
}

func startBasebackupCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var background bool

	cmd := &cobra.Command{
		Use:   "start-basebackup ARCHIVE",
		Short: "Stream a base backup into an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.StartBasebackup
			descr.ArchiveName = args[0]
			return dispatch(descr, background)
		},
	}

	cmd.Flags().StringVar(&descr.Profile.Name, "profile", "", "backup profile (defaults to \"default\")")
	cmd.Flags().BoolVar(&background, "background", false, "hint that the backup runs unattended")
	return cmd
}

func listBackupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups ARCHIVE",
		Short: "List the base backups of an archive, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListBackupList
			descr.ArchiveName = args[0]
			return dispatch(descr, false)
		},
	}
}

func catalogStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog-status ARCHIVE",
		Short: "Show aggregate backup statistics for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListBackupCatalog
			descr.ArchiveName = args[0]
			return dispatch(descr, false)
		},
	}
}

func pinCommand(tag models.CatalogTag) *cobra.Command {
	var (
		backupID string
		count    string
		newest   bool
		oldest   bool
		pinned   bool
	)

	use := "pin ARCHIVE"
	short := "Pin base backups so retention never deletes them"
	if tag == models.UnpinBasebackup {
		use = "unpin ARCHIVE"
		short = "Unpin base backups"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = tag
			descr.ArchiveName = args[0]

			op := models.PinOpUndefined
			switch {
			case backupID != "":
				op = models.PinOpID
			case count != "":
				op = models.PinOpCount
			case newest:
				op = models.PinOpNewest
			case oldest:
				op = models.PinOpOldest
			case pinned:
				op = models.PinOpPinned
			default:
				return cmd.Help()
			}

			pin, err := descr.MakePinDescr(op)
			if err != nil {
				return err
			}
			if op == models.PinOpID {
				if err := pin.SetBackupIDString(backupID); err != nil {
					return err
				}
			}
			if op == models.PinOpCount {
				if err := pin.SetCountString(count); err != nil {
					return err
				}
			}
			return dispatch(descr, false)
		},
	}

	cmd.Flags().StringVar(&backupID, "id", "", "select one base backup by id")
	cmd.Flags().StringVar(&count, "count", "", "select the N newest base backups")
	cmd.Flags().BoolVar(&newest, "newest", false, "select the newest base backup")
	cmd.Flags().BoolVar(&oldest, "oldest", false, "select the oldest base backup")
	if tag == models.UnpinBasebackup {
		cmd.Flags().BoolVar(&pinned, "pinned", false, "select all currently pinned base backups")
	}
	return cmd
}

func startLauncherCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var noDetach bool

	cmd := &cobra.Command{
		Use:   "start-launcher",
		Short: "Launch a detached background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.StartLauncher
			descr.Detach = !noDetach
			return dispatch(descr, false)
		},
	}

	cmd.Flags().StringVar(&descr.ArchiveName, "archive", "", "archive the worker operates on")
	cmd.Flags().BoolVar(&noDetach, "no-detach", false, "keep the worker attached to this terminal")
	return cmd
}
