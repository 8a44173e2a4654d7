package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/models"
)

func connectionCmds() []*cobra.Command {
	return []*cobra.Command{
		createConnectionCommand(),
		dropConnectionCommand(),
		listConnectionsCommand(),
	}
}

func parseConnectionType(s string) (string, error) {
	switch s {
	case models.ConnectionTypeBasebackup, models.ConnectionTypeStreamer:
		return s, nil
	}
	return "", fmt.Errorf("unknown connection type %q (want %s or %s)",
		s, models.ConnectionTypeBasebackup, models.ConnectionTypeStreamer)
}

func createConnectionCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var connType string

	cmd := &cobra.Command{
		Use:   "create-connection ARCHIVE",
		Short: "Register an additional connection for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.CreateConnection
			descr.ArchiveName = args[0]

			parsed, err := parseConnectionType(connType)
			if err != nil {
				return err
			}
			descr.Coninfo.Type = parsed
			return dispatch(descr, false)
		},
	}

	cmd.Flags().StringVarP(&connType, "type", "t", models.ConnectionTypeStreamer, "connection type (basebackup, streamer)")
	cmd.Flags().StringVar(&descr.Coninfo.PGHost, "pghost", "localhost", "PostgreSQL host")
	cmd.Flags().IntVar(&descr.Coninfo.PGPort, "pgport", 5432, "PostgreSQL port")
	cmd.Flags().StringVar(&descr.Coninfo.PGUser, "pguser", "postgres", "replication user")
	cmd.Flags().StringVar(&descr.Coninfo.PGDatabase, "pgdatabase", "postgres", "database name")
	cmd.Flags().StringVar(&descr.Coninfo.DSN, "dsn", "", "connection DSN (overrides host/port/user/database)")
	return cmd
}

func dropConnectionCommand() *cobra.Command {
	descr := models.NewCatalogDescr()
	var connType string

	cmd := &cobra.Command{
		Use:   "drop-connection ARCHIVE",
		Short: "Remove a connection from an archive",
		Long: `Remove a connection from an archive. The basebackup connection is
part of the archive itself and cannot be dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr.Tag = models.DropConnection
			descr.ArchiveName = args[0]

			parsed, err := parseConnectionType(connType)
			if err != nil {
				return err
			}
			descr.Coninfo.Type = parsed
			return dispatch(descr, false)
		},
	}

	cmd.Flags().StringVarP(&connType, "type", "t", models.ConnectionTypeStreamer, "connection type to drop")
	return cmd
}

func listConnectionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-connections ARCHIVE",
		Short: "List the connections of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListConnection
			descr.ArchiveName = args[0]
			return dispatch(descr, false)
		},
	}
}
