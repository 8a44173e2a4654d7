package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/pgbackctl/internal/models"
)

// CatalogTimeLayout is the timestamp representation used by all
// catalog columns holding points in time.
const CatalogTimeLayout = "2006-01-02 15:04:05"

// CatalogNow returns the current time in its catalog representation.
func CatalogNow() string {
	return time.Now().Format(CatalogTimeLayout)
}

// RegisterBasebackup inserts a basebackup in state "in progress" for
// the given archive and stores the generated id in the descriptor.
func (c *Catalog) RegisterBasebackup(archiveID int64, backup *models.BaseBackupDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if archiveID < 0 {
		return models.NewCatalogError("basebackup requires a valid archive id")
	}

	backup.ArchiveID = archiveID
	backup.Status = models.BackupStatusInProgress
	if backup.Started == "" {
		backup.Started = CatalogNow()
	}

	res, err := w.Exec(
		`INSERT INTO backup
		 (archive_id, xlogpos, timeline, label, fsentry, started, status,
		  systemid, wal_segment_size, used_profile)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		backup.ArchiveID, backup.XlogPos, backup.Timeline, backup.Label,
		backup.FSEntry, backup.Started, backup.Status,
		backup.SystemID, backup.WALSegmentSize, backup.UsedProfile)
	if err != nil {
		return &models.CatalogError{Op: "register basebackup", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &models.CatalogError{Op: "resolve basebackup id", Err: err}
	}
	backup.ID = id

	c.logger.Info().
		Int64("backup_id", id).
		Int64("archive_id", archiveID).
		Str("label", backup.Label).
		Msg("basebackup registered")
	return nil
}

// AbortBasebackup marks the basebackup aborted and records its stop
// time.
func (c *Catalog) AbortBasebackup(backup *models.BaseBackupDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}

	backup.Status = models.BackupStatusAborted
	if backup.Stopped == "" {
		backup.Stopped = CatalogNow()
	}

	res, err := w.Exec(
		`UPDATE backup SET status = ?, stopped = ? WHERE id = ?`,
		backup.Status, backup.Stopped, backup.ID)
	if err != nil {
		return &models.CatalogError{Op: "abort basebackup", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("basebackup id %d does not exist", backup.ID)
	}
	return nil
}

// FinalizeBasebackup transitions a basebackup from "in progress" to
// "ready", recording stop time and final WAL position. Finalizing a
// backup in any other state is an error.
func (c *Catalog) FinalizeBasebackup(backup *models.BaseBackupDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if backup.XlogPosEnd == "" {
		return models.NewCatalogError("finalize requires the final WAL position")
	}

	backup.Status = models.BackupStatusReady
	if backup.Stopped == "" {
		backup.Stopped = CatalogNow()
	}

	res, err := w.Exec(
		`UPDATE backup SET status = ?, stopped = ?, xlogposend = ?
		 WHERE id = ? AND status = ?`,
		backup.Status, backup.Stopped, backup.XlogPosEnd,
		backup.ID, models.BackupStatusInProgress)
	if err != nil {
		return &models.CatalogError{Op: "finalize basebackup", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("basebackup id %d is not in progress", backup.ID)
	}

	c.logger.Info().
		Int64("backup_id", backup.ID).
		Str("xlogposend", backup.XlogPosEnd).
		Msg("basebackup finalized")
	return nil
}

// RegisterTablespaceForBackup inserts tablespace meta information for
// a registered basebackup.
func (c *Catalog) RegisterTablespaceForBackup(backupID int64, spc *models.BackupTablespaceDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if backupID < 0 {
		return models.NewCatalogError("tablespace requires a registered basebackup")
	}

	spc.BackupID = backupID
	res, err := w.Exec(
		`INSERT INTO backup_tablespaces (backup_id, spcoid, spclocation, spcsize)
		 VALUES (?, ?, ?, ?)`,
		spc.BackupID, spc.SpcOID, spc.SpcLocation, spc.SpcSize)
	if err != nil {
		return &models.CatalogError{
			Op:  fmt.Sprintf("register tablespace %d for backup %d", spc.SpcOID, backupID),
			Err: err,
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &models.CatalogError{Op: "resolve tablespace id", Err: err}
	}
	spc.ID = id
	return nil
}

// GetBasebackup returns the basebackup by id, tablespaces included.
// The sentinel ID -1 indicates a missing row.
func (c *Catalog) GetBasebackup(backupID int64) (*models.BaseBackupDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	backup := models.NewBaseBackupDescr()
	err = q.QueryRow(
		`SELECT id, archive_id, xlogpos, xlogposend, timeline, label, fsentry,
		        started, stopped, pinned, status, systemid, wal_segment_size, used_profile
		 FROM backup WHERE id = ?`, backupID).
		Scan(&backup.ID, &backup.ArchiveID, &backup.XlogPos, &backup.XlogPosEnd,
			&backup.Timeline, &backup.Label, &backup.FSEntry,
			&backup.Started, &backup.Stopped, &backup.Pinned, &backup.Status,
			&backup.SystemID, &backup.WALSegmentSize, &backup.UsedProfile)
	if errors.Is(err, sql.ErrNoRows) {
		backup.ID = -1
		return backup, nil
	}
	if err != nil {
		return nil, &models.CatalogError{Op: "lookup basebackup", Err: err}
	}

	backup.Duration = backupDuration(backup.Started, backup.Stopped)
	if backup.Tablespaces, err = c.getTablespaces(q, backup.ID); err != nil {
		return nil, err
	}
	return backup, nil
}

// GetBackupList returns the basebackups of an archive ordered newest
// first, with formatted durations and tablespaces attached.
func (c *Catalog) GetBackupList(archiveID int64) ([]*models.BaseBackupDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(
		`SELECT id, archive_id, xlogpos, xlogposend, timeline, label, fsentry,
		        started, stopped, pinned, status, systemid, wal_segment_size, used_profile
		 FROM backup WHERE archive_id = ? ORDER BY started DESC, id DESC`,
		archiveID)
	if err != nil {
		return nil, &models.CatalogError{Op: "list basebackups", Err: err}
	}
	defer rows.Close()

	var result []*models.BaseBackupDescr
	for rows.Next() {
		backup := models.NewBaseBackupDescr()
		if err := rows.Scan(&backup.ID, &backup.ArchiveID, &backup.XlogPos,
			&backup.XlogPosEnd, &backup.Timeline, &backup.Label, &backup.FSEntry,
			&backup.Started, &backup.Stopped, &backup.Pinned, &backup.Status,
			&backup.SystemID, &backup.WALSegmentSize, &backup.UsedProfile); err != nil {
			return nil, &models.CatalogError{Op: "scan basebackup row", Err: err}
		}
		backup.Duration = backupDuration(backup.Started, backup.Stopped)
		result = append(result, backup)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list basebackups", Err: err}
	}

	for _, backup := range result {
		if backup.Tablespaces, err = c.getTablespaces(q, backup.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *Catalog) getTablespaces(q querier, backupID int64) ([]*models.BackupTablespaceDescr, error) {
	rows, err := q.Query(
		`SELECT id, backup_id, spcoid, spclocation, spcsize
		 FROM backup_tablespaces WHERE backup_id = ? ORDER BY spcoid`,
		backupID)
	if err != nil {
		return nil, &models.CatalogError{Op: "list tablespaces", Err: err}
	}
	defer rows.Close()

	var result []*models.BackupTablespaceDescr
	for rows.Next() {
		spc := models.NewBackupTablespaceDescr()
		if err := rows.Scan(&spc.ID, &spc.BackupID, &spc.SpcOID,
			&spc.SpcLocation, &spc.SpcSize); err != nil {
			return nil, &models.CatalogError{Op: "scan tablespace row", Err: err}
		}
		result = append(result, spc)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list tablespaces", Err: err}
	}
	return result, nil
}

// DeleteBasebackup removes a basebackup row. Tablespace entries
// cascade.
func (c *Catalog) DeleteBasebackup(backupID int64) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	res, err := w.Exec(`DELETE FROM backup WHERE id = ?`, backupID)
	if err != nil {
		return &models.CatalogError{Op: "delete basebackup", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("basebackup id %d does not exist", backupID)
	}
	return nil
}

func backupDuration(started, stopped string) string {
	if started == "" || stopped == "" {
		return "N/A"
	}
	from, err := time.Parse(CatalogTimeLayout, started)
	if err != nil {
		return "N/A"
	}
	to, err := time.Parse(CatalogTimeLayout, stopped)
	if err != nil {
		return "N/A"
	}
	d := to.Sub(from)
	if d < 0 {
		return "N/A"
	}
	return d.Round(time.Second).String()
}
