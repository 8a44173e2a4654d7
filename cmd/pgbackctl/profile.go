package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/models"
)

func profileCmds() []*cobra.Command {
	return []*cobra.Command{
		createProfileCommand(),
		dropProfileCommand(),
		listProfilesCommand(),
	}
}

func createProfileCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var existsOk bool
	var compression string

	cmd := &cobra.Command{
		Use:   "create-profile NAME",
		Short: "Create a backup profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.CreateBackupProfile
			descr.Profile.Name = args[0]

			compressType, ok := models.ParseCompressType(compression)
			if !ok {
				return fmt.Errorf("unknown compression type %q", compression)
			}
			descr.Profile.CompressType = compressType
			return dispatch(descr, existsOk)
		},
	}

	cmd.Flags().StringVar(&compression, "compression", "none", "compression codec (none, gzip, zstd, pbzip, plain)")
	cmd.Flags().UintVar(&descr.Profile.MaxRate, "max-rate", 0, "transfer rate limit in kbps (0 = unlimited)")
	cmd.Flags().StringVar(&descr.Profile.Label, "label", "", "backup label")
	cmd.Flags().BoolVar(&descr.Profile.FastCheckpoint, "fast-checkpoint", false, "request a fast checkpoint")
	cmd.Flags().BoolVar(&descr.Profile.IncludeWAL, "include-wal", false, "include WAL segments in the backup")
	cmd.Flags().BoolVar(&descr.Profile.WaitForWAL, "wait-for-wal", true, "wait for required WAL to be archived")
	cmd.Flags().BoolVar(&descr.Profile.NoVerifyChecksums, "noverify-checksums", false, "skip page checksum verification")
	cmd.Flags().BoolVar(&existsOk, "exists-ok", false, "succeed when the profile already exists")
	return cmd
}

func dropProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-profile NAME",
		Short: "Remove a backup profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.DropBackupProfile
			descr.Profile.Name = args[0]
			return dispatch(descr, false)
		},
	}
}

func listProfilesCommand() *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "list-profiles",
		Short: "List backup profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListBackupProfile
			if details {
				descr.Tag = models.ListBackupProfileDetail
			}
			return dispatch(descr, details)
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "show all profile attributes")
	return cmd
}
