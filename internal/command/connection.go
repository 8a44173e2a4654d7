package command

import (
	"context"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/models"
)

// createConnectionCmd adds a connection of a new type to an archive.
type createConnectionCmd struct {
	baseCommand
}

func (c *createConnectionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}

		conn := c.descr.Coninfo
		if conn == nil {
			return models.NewCatalogError("CREATE CONNECTION requires connection info")
		}
		conn.ArchiveID = archive.ID

		existing, err := c.rt.Catalog.GetConnections(archive.ID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Type == conn.Type {
				return models.NewCatalogError("archive %q already has a %s connection",
					c.descr.ArchiveName, conn.Type)
			}
		}
		return c.rt.Catalog.CreateConnection(conn)
	})
}

// dropConnectionCmd removes the connection of one type from an
// archive. The basebackup connection is refused by the catalog.
type dropConnectionCmd struct {
	baseCommand
}

func (c *dropConnectionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		if c.descr.Coninfo == nil {
			return models.NewCatalogError("DROP CONNECTION requires a connection type")
		}
		return c.rt.Catalog.DropConnection(archive.ID, c.descr.Coninfo.Type)
	})
}

// listConnectionCmd prints the connections of an archive ordered by
// type.
type listConnectionCmd struct {
	baseCommand
}

func (c *listConnectionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}

		conns, err := c.rt.Catalog.GetConnections(archive.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out(), "connections of archive %q\n", c.descr.ArchiveName)
		for _, conn := range conns {
			if conn.DSN != "" {
				fmt.Fprintf(c.out(), "%-12s\tdsn=%s\n", conn.Type, conn.DSN)
				continue
			}
			fmt.Fprintf(c.out(), "%-12s\t%s:%d user=%s db=%s\n",
				conn.Type, conn.PGHost, conn.PGPort, conn.PGUser, conn.PGDatabase)
		}
		return nil
	})
}
