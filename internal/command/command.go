// Package command implements one executable command per catalog
// operation. Commands share a transaction envelope: assert the catalog
// handle, open it lazily, run the work inside a single transaction and
// roll back on any failure, re-raising the original error.
package command

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/launcher"
	"github.com/fgeck/pgbackctl/internal/models"
	"github.com/fgeck/pgbackctl/internal/stream"
)

// Command is one executable catalog operation. The meaning of flag is
// command specific: existsOk for the create commands, ignoreMissing
// for alter, background for start-basebackup, extended for the list
// commands.
type Command interface {
	Execute(ctx context.Context, flag bool) error
	Tag() models.CatalogTag
}

// Runtime bundles the shared dependencies a command executes against.
// Stream overrides the replication stream implementation used by
// start-basebackup (for testing); nil selects the pgconn-backed one.
type Runtime struct {
	Logger   zerolog.Logger
	Catalog  *catalog.Catalog
	Vars     *config.Variables
	Launcher launcher.Service
	Out      io.Writer
	Stream   stream.Service
}

// New selects the command implementation for the descriptor's tag.
func New(rt Runtime, descr *models.CatalogDescr) (Command, error) {
	base := baseCommand{rt: rt, descr: descr}

	switch descr.Tag {
	case models.CreateArchive:
		return &createArchiveCmd{base}, nil
	case models.AlterArchive:
		return &alterArchiveCmd{base}, nil
	case models.DropArchive:
		return &dropArchiveCmd{base}, nil
	case models.VerifyArchive:
		return &verifyArchiveCmd{base}, nil
	case models.ListArchive:
		return &listArchiveCmd{base}, nil
	case models.CreateConnection:
		return &createConnectionCmd{base}, nil
	case models.DropConnection:
		return &dropConnectionCmd{base}, nil
	case models.ListConnection:
		return &listConnectionCmd{base}, nil
	case models.CreateBackupProfile:
		return &createProfileCmd{base}, nil
	case models.DropBackupProfile:
		return &dropProfileCmd{base}, nil
	case models.ListBackupProfile, models.ListBackupProfileDetail:
		return &listProfileCmd{base}, nil
	case models.ListBackupCatalog:
		return &listBackupCatalogCmd{base}, nil
	case models.ListBackupList:
		return &listBackupsCmd{base}, nil
	case models.StartBasebackup, models.BackgroundWorkerCommand:
		return &startBasebackupCmd{base}, nil
	case models.StartLauncher:
		return &startLauncherCmd{base}, nil
	case models.PinBasebackup, models.UnpinBasebackup:
		return &pinCmd{base}, nil
	case models.CreateRetentionPolicy:
		return &createRetentionCmd{base}, nil
	case models.DropRetentionPolicy:
		return &dropRetentionCmd{base}, nil
	case models.ListRetentionPolicies, models.ListRetentionPolicy:
		return &listRetentionCmd{base}, nil
	case models.ApplyRetentionPolicy:
		return &applyRetentionCmd{base}, nil
	case models.ShowVariables, models.ShowVariable:
		return &showVariableCmd{base}, nil
	case models.SetVariable:
		return &setVariableCmd{base}, nil
	case models.ResetVariable:
		return &resetVariableCmd{base}, nil
	}
	return nil, models.NewCatalogError("no command for tag %s", descr.Tag)
}

type baseCommand struct {
	rt    Runtime
	descr *models.CatalogDescr
}

// Tag returns the catalog tag the command was built for.
func (b *baseCommand) Tag() models.CatalogTag {
	return b.descr.Tag
}

func (b *baseCommand) out() io.Writer {
	if b.rt.Out != nil {
		return b.rt.Out
	}
	return io.Discard
}

// ensureCatalog asserts the catalog handle and opens it on first use.
func (b *baseCommand) ensureCatalog() error {
	if b.rt.Catalog == nil {
		return models.NewCatalogError("%s requires a catalog", b.descr.Tag)
	}
	if !b.rt.Catalog.Available() {
		return b.rt.Catalog.OpenRW()
	}
	return nil
}

// withTransaction runs fn inside one catalog transaction. On failure
// the transaction is rolled back and the original error re-raised; a
// rollback failure is logged, never returned.
func (b *baseCommand) withTransaction(fn func() error) error {
	if err := b.ensureCatalog(); err != nil {
		return err
	}
	if err := b.rt.Catalog.StartTransaction(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := b.rt.Catalog.Rollback(); rbErr != nil {
			b.rt.Logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return b.rt.Catalog.Commit()
}

// resolveArchive loads the archive by name inside the current
// transaction. A missing archive is an ArchiveError.
func (b *baseCommand) resolveArchive(name string) (*models.CatalogDescr, error) {
	archive, err := b.rt.Catalog.ExistsByName(name)
	if err != nil {
		return nil, err
	}
	if archive.ID < 0 {
		return nil, models.NewArchiveError("archive %q does not exist", name)
	}
	return archive, nil
}
