package command

import (
	"context"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/archivedir"
	"github.com/fgeck/pgbackctl/internal/models"
)

// createRetentionCmd registers a retention policy with its rules.
type createRetentionCmd struct {
	baseCommand
}

func (c *createRetentionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		if c.descr.Retention == nil {
			return models.NewCatalogError("CREATE RETENTION POLICY requires a policy definition")
		}
		c.descr.Retention.Name = c.descr.RetentionName
		return c.rt.Catalog.CreateRetentionPolicy(c.descr.Retention)
	})
}

// dropRetentionCmd removes a retention policy by name.
type dropRetentionCmd struct {
	baseCommand
}

func (c *dropRetentionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		return c.rt.Catalog.DropRetentionPolicy(c.descr.RetentionName)
	})
}

// listRetentionCmd prints all retention policies or, for the
// single-policy tag, one policy with its rules.
type listRetentionCmd struct {
	baseCommand
}

func (c *listRetentionCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		if c.descr.Tag == models.ListRetentionPolicy {
			retention, err := c.rt.Catalog.GetRetentionPolicy(c.descr.RetentionName)
			if err != nil {
				return err
			}
			if retention.ID < 0 {
				return models.NewCatalogError("retention policy %q does not exist",
					c.descr.RetentionName)
			}
			c.printPolicy(retention)
			return nil
		}

		policies, err := c.rt.Catalog.GetRetentionPolicies()
		if err != nil {
			return err
		}
		for _, retention := range policies {
			c.printPolicy(retention)
		}
		return nil
	})
}

func (c *listRetentionCmd) printPolicy(retention *models.RetentionDescr) {
	fmt.Fprintf(c.out(), "retention policy %q (created %s)\n", retention.Name, retention.Created)
	for _, rule := range retention.Rules {
		fmt.Fprintf(c.out(), "\t%s %s\n", rule.Type, rule.Value)
	}
}

// applyRetentionCmd evaluates a retention policy against an archive
// and executes the resulting cleanup plan: catalog rows are deleted
// inside the transaction, backup directories are removed after the
// commit so a crash leaves orphan directories, never dangling rows.
type applyRetentionCmd struct {
	baseCommand
}

func (c *applyRetentionCmd) Execute(ctx context.Context, flag bool) error {
	var (
		directory string
		deleted   []string
		plan      *models.BackupCleanupDescr
	)

	err := c.withTransaction(func() error {
		archive, err := c.resolveArchive(c.descr.ArchiveName)
		if err != nil {
			return err
		}
		directory = archive.Directory

		retention, err := c.rt.Catalog.GetRetentionPolicy(c.descr.RetentionName)
		if err != nil {
			return err
		}
		if retention.ID < 0 {
			return models.NewCatalogError("retention policy %q does not exist",
				c.descr.RetentionName)
		}

		plan, err = c.rt.Catalog.ApplyRetentionPolicy(retention, archive.ID)
		if err != nil {
			return err
		}

		for i, backup := range plan.Basebackups {
			if plan.Decisions[i] != models.BasebackupDelete {
				continue
			}
			if err := c.rt.Catalog.DeleteBasebackup(backup.ID); err != nil {
				return err
			}
			deleted = append(deleted, backup.FSEntry)
		}
		return nil
	})
	if err != nil {
		return err
	}

	archive := archivedir.New(c.rt.Logger, directory)
	for _, fsentry := range deleted {
		if err := archive.RemoveBackup(fsentry); err != nil {
			c.rt.Logger.Warn().Err(err).Str("fsentry", fsentry).
				Msg("backup directory removal failed")
		}
	}

	fmt.Fprintf(c.out(), "retention policy %q applied to archive %q: %d of %d basebackups deleted\n",
		c.descr.RetentionName, c.descr.ArchiveName, len(deleted), len(plan.Basebackups))
	c.printWALCleanup(plan)
	return nil
}

func (c *applyRetentionCmd) printWALCleanup(plan *models.BackupCleanupDescr) {
	switch plan.Mode {
	case models.NoWALToDelete:
		fmt.Fprintln(c.out(), "no WAL segments to clean up")
	case models.WALCleanupAll:
		fmt.Fprintln(c.out(), "all WAL segments can be cleaned up")
	case models.WALCleanupOffset, models.WALCleanupRange:
		for timeline, off := range plan.OffList {
			fmt.Fprintf(c.out(), "timeline %d: WAL older than %s can be cleaned up\n",
				timeline, off.WALCleanupEnd)
		}
	}
}
