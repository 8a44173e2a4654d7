package command

import (
	"context"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/basebackup"
	"github.com/fgeck/pgbackctl/internal/launcher"
	"github.com/fgeck/pgbackctl/internal/models"
)

// listBackupCatalogCmd prints the aggregate statistics of one archive.
type listBackupCatalogCmd struct {
	baseCommand
}

func (c *listBackupCatalogCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		stat, err := c.rt.Catalog.StatCatalog(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out(), stat.FormattedString())
		return nil
	})
}

// listBackupsCmd prints the base backups of one archive, newest first.
type listBackupsCmd struct {
	baseCommand
}

func (c *listBackupsCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}

		backups, err := c.rt.Catalog.GetBackupList(archive.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out(), "%-6s\t%-28s\t%-12s\t%-20s\t%-10s\t%s\n",
			"ID", "LABEL", "STATUS", "STARTED", "DURATION", "PINNED")
		for _, b := range backups {
			fmt.Fprintf(c.out(), "%-6d\t%-28s\t%-12s\t%-20s\t%-10s\t%d\n",
				b.ID, b.Label, b.Status, b.Started, b.Duration, b.Pinned)
		}
		return nil
	})
}

// startBasebackupCmd runs one base backup through the orchestrator.
// flag is the background hint; the backup sequence is identical either
// way.
type startBasebackupCmd struct {
	baseCommand
}

func (c *startBasebackupCmd) Execute(ctx context.Context, background bool) error {
	if err := c.ensureCatalog(); err != nil {
		return err
	}
	if background {
		c.rt.Logger.Debug().Msg("base backup requested in background mode")
	}

	var o *basebackup.Orchestrator
	if c.rt.Stream != nil {
		o = basebackup.NewWithStream(c.rt.Logger, c.rt.Catalog, c.rt.Stream)
	} else {
		o = basebackup.New(c.rt.Logger, c.rt.Catalog)
	}

	backup, err := o.Run(ctx, c.descr)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out(), "base backup %d of archive %q completed (%s .. %s)\n",
		backup.ID, c.descr.ArchiveName, backup.XlogPos, backup.XlogPosEnd)
	return nil
}

// startLauncherCmd forks a background worker process running the
// worker command against its own catalog handle.
type startLauncherCmd struct {
	baseCommand
}

func (c *startLauncherCmd) Execute(ctx context.Context, flag bool) error {
	if c.rt.Launcher == nil {
		return models.NewCatalogError("START LAUNCHER requires a worker launcher")
	}
	if err := c.ensureCatalog(); err != nil {
		return err
	}

	args := []string{"worker", "--catalog", c.rt.Catalog.FullPath()}
	if c.descr.ArchiveName != "" {
		args = append(args, "--archive", c.descr.ArchiveName)
	}

	pid, err := c.rt.Launcher.Launch(launcher.JobInfo{
		Detach:     c.descr.Detach,
		CloseStdFd: c.descr.Detach,
		Args:       args,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out(), "launcher started, pid %d\n", pid)
	return nil
}

// pinCmd executes one PIN or UNPIN action against the base backups of
// an archive.
type pinCmd struct {
	baseCommand
}

func (c *pinCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		if c.descr.Pin == nil {
			return models.NewCatalogError("%s requires a pin action", c.descr.Tag)
		}

		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}

		affected, err := c.rt.Catalog.PerformPinAction(c.descr.Pin, archive.ID)
		if err != nil {
			return err
		}

		verb := "pinned"
		if c.descr.Tag == models.UnpinBasebackup {
			verb = "unpinned"
		}
		fmt.Fprintf(c.out(), "%d basebackups %s\n", affected, verb)
		return nil
	})
}
