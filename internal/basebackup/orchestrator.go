// Package basebackup orchestrates one base backup run: catalog
// resolution, the replication stream conversation and the archive
// directory writes, with catalog compensation when a step fails.
package basebackup

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/archivedir"
	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/models"
	"github.com/fgeck/pgbackctl/internal/stream"
)

// Orchestrator drives base backup runs against one catalog.
type Orchestrator struct {
	logger  zerolog.Logger
	catalog *catalog.Catalog
	stream  stream.Service
}

// New creates an orchestrator with a pgconn-backed replication stream.
func New(logger zerolog.Logger, cat *catalog.Catalog) *Orchestrator {
	return &Orchestrator{
		logger:  logger,
		catalog: cat,
		stream:  stream.New(logger),
	}
}

// NewWithStream creates an orchestrator with a custom stream
// implementation (for testing).
func NewWithStream(logger zerolog.Logger, cat *catalog.Catalog, s stream.Service) *Orchestrator {
	return &Orchestrator{logger: logger, catalog: cat, stream: s}
}

// Run executes a base backup for the archive named in the descriptor,
// parameterized by the named backup profile (the "default" profile
// when none was given). The returned descriptor reflects the final
// catalog state of the backup.
func (o *Orchestrator) Run(ctx context.Context, descr *models.CatalogDescr) (*models.BaseBackupDescr, error) {
	archive, conn, err := o.resolveArchive(descr.ArchiveName)
	if err != nil {
		return nil, err
	}

	profileName := models.DefaultProfileName
	if descr.Profile != nil && descr.Profile.Name != "" {
		profileName = descr.Profile.Name
	}
	profile, err := o.resolveProfile(profileName)
	if err != nil {
		return nil, err
	}

	if err := o.stream.Connect(ctx, conn); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.stream.Disconnect(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("replication disconnect failed")
		}
	}()

	ident, err := o.stream.Identify(ctx)
	if err != nil {
		return nil, err
	}
	ident.ArchiveID = archive.ID
	ident.ArchiveName = archive.ArchiveName

	started, err := o.stream.StartBasebackup(ctx, stream.BasebackupOptions{
		Label:             profile.Label,
		FastCheckpoint:    profile.FastCheckpoint,
		IncludeWAL:        profile.IncludeWAL,
		WaitForWAL:        profile.WaitForWAL,
		MaxRate:           profile.MaxRate,
		NoVerifyChecksums: profile.NoVerifyChecksums,
	})
	if err != nil {
		return nil, err
	}

	archiveDir := archivedir.New(o.logger, archive.Directory)
	backupDir := archivedir.NewBackupDir(o.logger, archiveDir, time.Now())
	if err := backupDir.Create(); err != nil {
		return nil, err
	}

	backup := models.NewBaseBackupDescr()
	backup.Label = profile.Label
	backup.FSEntry = backupDir.Name()
	backup.XlogPos = started.XlogPos.String()
	backup.Timeline = started.Timeline
	backup.SystemID = ident.SystemID
	backup.WALSegmentSize = ident.WALSegmentSize
	backup.UsedProfile = profile.ProfileID

	if err := o.register(archive.ID, backup); err != nil {
		return nil, err
	}

	if err := o.streamTablespaces(ctx, backup, backupDir, started, profile); err != nil {
		o.compensate(backup, err)
		return backup, err
	}

	endPos, _, err := o.stream.EndBasebackup(ctx)
	if err != nil {
		o.compensate(backup, err)
		return backup, err
	}
	backup.XlogPosEnd = endPos.String()

	if err := o.finalize(backup); err != nil {
		o.compensate(backup, err)
		return backup, err
	}

	o.logger.Info().
		Int64("backup_id", backup.ID).
		Str("archive", archive.ArchiveName).
		Str("xlogpos", backup.XlogPos).
		Str("xlogposend", backup.XlogPosEnd).
		Msg("base backup completed")
	return backup, nil
}

func (o *Orchestrator) resolveArchive(name string) (*models.CatalogDescr, *models.ConnectionDescr, error) {
	if err := o.catalog.StartTransaction(); err != nil {
		return nil, nil, err
	}
	archive, err := o.catalog.ExistsByName(name)
	if err != nil {
		o.rollback()
		return nil, nil, err
	}
	if archive.ID < 0 {
		o.rollback()
		return nil, nil, models.NewArchiveError("archive %q does not exist", name)
	}

	conn := models.NewConnectionDescr()
	conn.ArchiveID = archive.ID
	conn.Type = models.ConnectionTypeBasebackup
	if err := o.catalog.GetConnection(conn); err != nil {
		o.rollback()
		return nil, nil, err
	}
	if err := o.catalog.Commit(); err != nil {
		return nil, nil, err
	}
	return archive, conn, nil
}

func (o *Orchestrator) resolveProfile(name string) (*models.BackupProfileDescr, error) {
	if err := o.catalog.StartTransaction(); err != nil {
		return nil, err
	}
	profile, err := o.catalog.GetBackupProfile(name)
	if err != nil {
		o.rollback()
		return nil, err
	}
	if err := o.catalog.Commit(); err != nil {
		return nil, err
	}
	if profile.ProfileID < 0 {
		return nil, models.NewCatalogError("backup profile %q does not exist", name)
	}
	return profile, nil
}

func (o *Orchestrator) register(archiveID int64, backup *models.BaseBackupDescr) error {
	if err := o.catalog.StartTransaction(); err != nil {
		return err
	}
	if err := o.catalog.RegisterBasebackup(archiveID, backup); err != nil {
		o.rollback()
		return err
	}
	return o.catalog.Commit()
}

func (o *Orchestrator) streamTablespaces(ctx context.Context, backup *models.BaseBackupDescr,
	backupDir *archivedir.BackupDir, started *stream.BasebackupStarted,
	profile *models.BackupProfileDescr) error {

	for i := 0; ; i++ {
		reader, ok, err := o.stream.NextTablespace(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if i >= len(started.Tablespaces) {
			return models.NewStreamError("server streamed more tablespaces than announced")
		}
		spc := started.Tablespaces[i]

		sink, err := backupDir.TablespaceSink(spc.SpcOID, profile.CompressType)
		if err != nil {
			return err
		}
		if _, err := io.Copy(sink, reader); err != nil {
			sink.Close()
			return err
		}
		if err := sink.Close(); err != nil {
			return err
		}

		if err := o.catalog.StartTransaction(); err != nil {
			return err
		}
		if err := o.catalog.RegisterTablespaceForBackup(backup.ID, spc); err != nil {
			o.rollback()
			return err
		}
		if err := o.catalog.Commit(); err != nil {
			return err
		}
		backup.Tablespaces = append(backup.Tablespaces, spc)

		o.logger.Info().
			Int64("backup_id", backup.ID).
			Uint32("spcoid", spc.SpcOID).
			Int64("size", spc.SpcSize).
			Msg("tablespace archived")
	}
}

func (o *Orchestrator) finalize(backup *models.BaseBackupDescr) error {
	if err := o.catalog.StartTransaction(); err != nil {
		return err
	}
	if err := o.catalog.FinalizeBasebackup(backup); err != nil {
		o.rollback()
		return err
	}
	return o.catalog.Commit()
}

// compensate marks a registered backup aborted in a fresh transaction.
// A failing compensation is logged and swallowed so the original
// error stays visible.
func (o *Orchestrator) compensate(backup *models.BaseBackupDescr, cause error) {
	if backup.ID < 0 {
		return
	}
	o.logger.Warn().Err(cause).Int64("backup_id", backup.ID).Msg("aborting base backup")

	if err := o.catalog.StartTransaction(); err != nil {
		o.logger.Warn().Err(err).Msg("abort transaction failed")
		return
	}
	if err := o.catalog.AbortBasebackup(backup); err != nil {
		o.rollback()
		o.logger.Warn().Err(err).Msg("abort basebackup failed")
		return
	}
	if err := o.catalog.Commit(); err != nil {
		o.logger.Warn().Err(err).Msg("abort commit failed")
	}
}

func (o *Orchestrator) rollback() {
	if err := o.catalog.Rollback(); err != nil {
		o.logger.Warn().Err(err).Msg("rollback failed")
	}
}
