package command

import (
	"context"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/archivedir"
	"github.com/fgeck/pgbackctl/internal/models"
)

// createArchiveCmd registers a new archive together with its
// basebackup connection. flag is existsOk: an existing archive is
// updated with the descriptor's affected attributes instead of
// failing.
type createArchiveCmd struct {
	baseCommand
}

func (c *createArchiveCmd) Execute(ctx context.Context, existsOk bool) error {
	created := false

	err := c.withTransaction(func() error {
		existing, err := c.rt.Catalog.Exists(c.descr.Directory)
		if err != nil {
			return err
		}

		if existing.ID >= 0 {
			if !existsOk {
				return models.NewArchiveError("archive in %q already exists", c.descr.Directory)
			}
			c.descr.ID = existing.ID
			return c.rt.Catalog.UpdateArchiveAttributes(c.descr, c.descr.Attributes())
		}

		if err := c.rt.Catalog.CreateArchive(c.descr); err != nil {
			return err
		}

		conn := c.descr.Coninfo
		if conn == nil {
			return models.NewCatalogError("CREATE ARCHIVE requires connection info")
		}
		conn.ArchiveID = c.descr.ID
		conn.Type = models.ConnectionTypeBasebackup
		if err := c.rt.Catalog.CreateConnection(conn); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil || !created {
		return err
	}

	// The directory layout is laid out only after the catalog rows are
	// committed, so a failed registration leaves no stray directories.
	return archivedir.New(c.rt.Logger, c.descr.Directory).Initialize()
}

// alterArchiveCmd updates the affected attributes of an archive. flag
// is ignoreMissing.
type alterArchiveCmd struct {
	baseCommand
}

func (c *alterArchiveCmd) Execute(ctx context.Context, ignoreMissing bool) error {
	return c.withTransaction(func() error {
		existing, err := c.rt.Catalog.ExistsByName(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		if existing.ID < 0 {
			if ignoreMissing {
				c.rt.Logger.Info().
					Str("archive", c.descr.ArchiveName).
					Msg("archive does not exist, nothing to alter")
				return nil
			}
			return models.NewArchiveError("archive %q does not exist", c.descr.ArchiveName)
		}
		c.descr.ID = existing.ID
		return c.rt.Catalog.UpdateArchiveAttributes(c.descr, c.descr.Attributes())
	})
}

// dropArchiveCmd removes an archive and all dependent catalog rows.
// flag is existsOk: a missing archive is not an error.
type dropArchiveCmd struct {
	baseCommand
}

func (c *dropArchiveCmd) Execute(ctx context.Context, existsOk bool) error {
	return c.withTransaction(func() error {
		existing, err := c.rt.Catalog.ExistsByName(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		if existing.ID < 0 {
			if existsOk {
				c.rt.Logger.Info().
					Str("archive", c.descr.ArchiveName).
					Msg("archive does not exist, nothing to drop")
				return nil
			}
			return models.NewArchiveError("archive %q does not exist", c.descr.ArchiveName)
		}
		return c.rt.Catalog.DropArchive(c.descr.ArchiveName)
	})
}

// verifyArchiveCmd checks the on-disk structure of an archive.
type verifyArchiveCmd struct {
	baseCommand
}

func (c *verifyArchiveCmd) Execute(ctx context.Context, flag bool) error {
	var directory string

	err := c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		directory = archive.Directory
		return nil
	})
	if err != nil {
		return err
	}

	if err := archivedir.New(c.rt.Logger, directory).Verify(); err != nil {
		return err
	}
	fmt.Fprintf(c.out(), "archive %q in %s verified OK\n", c.descr.ArchiveName, directory)
	return nil
}

// listArchiveCmd prints the archive inventory. The descriptor's
// affected-attribute set narrows the listing (FILTERED mode); flag
// requests the detail view including connections.
type listArchiveCmd struct {
	baseCommand
}

func (c *listArchiveCmd) Execute(ctx context.Context, detail bool) error {
	return c.withTransaction(func() error {
		archives, err := c.rt.Catalog.GetArchiveList(c.descr)
		if err != nil {
			return err
		}

		if len(archives) == 0 {
			fmt.Fprintln(c.out(), "no archives")
			return nil
		}

		fmt.Fprintf(c.out(), "%-6s\t%-20s\t%-40s\t%s\n", "ID", "NAME", "DIRECTORY", "COMPRESSION")
		for _, archive := range archives {
			fmt.Fprintf(c.out(), "%-6d\t%-20s\t%-40s\t%t\n",
				archive.ID, archive.ArchiveName, archive.Directory, archive.Compression)

			if !detail {
				continue
			}
			conns, err := c.rt.Catalog.GetConnections(archive.ID)
			if err != nil {
				return err
			}
			for _, conn := range conns {
				fmt.Fprintf(c.out(), "\t%-12s\t%s:%d user=%s db=%s\n",
					conn.Type, conn.PGHost, conn.PGPort, conn.PGUser, conn.PGDatabase)
			}
		}
		return nil
	})
}
