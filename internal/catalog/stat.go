package catalog

import (
	"time"

	"github.com/fgeck/pgbackctl/internal/models"
)

// StatCatalog computes aggregate statistics for the named archive,
// including its backup listing ordered newest first.
func (c *Catalog) StatCatalog(archiveName string) (*models.StatCatalogArchive, error) {
	archive, err := c.ExistsByName(archiveName)
	if err != nil {
		return nil, err
	}
	if archive.ID < 0 {
		return nil, models.NewCatalogError("archive %q does not exist", archiveName)
	}

	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	stat := &models.StatCatalogArchive{
		ArchiveID:        archive.ID,
		ArchiveName:      archive.ArchiveName,
		ArchiveDirectory: archive.Directory,
	}

	conn := models.NewConnectionDescr()
	conn.ArchiveID = archive.ID
	conn.Type = models.ConnectionTypeBasebackup
	if err := c.GetConnection(conn); err == nil {
		stat.ArchiveHost = conn.PGHost
	}

	err = q.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM backup WHERE archive_id = ?`,
		models.BackupStatusAborted, models.BackupStatusInProgress, archive.ID).
		Scan(&stat.NumberOfBackups, &stat.BackupsFailed, &stat.BackupsRunning)
	if err != nil {
		return nil, &models.CatalogError{Op: "aggregate backup counters", Err: err}
	}

	backups, err := c.GetBackupList(archive.ID)
	if err != nil {
		return nil, err
	}
	stat.Backups = backups

	var (
		totalSize     uint64
		durationSum   time.Duration
		durationsSeen uint64
	)
	for _, backup := range backups {
		for _, spc := range backup.Tablespaces {
			if spc.SpcSize > 0 {
				totalSize += uint64(spc.SpcSize)
			}
		}
		if backup.Status != models.BackupStatusReady {
			continue
		}
		if d, ok := parseDuration(backup.Started, backup.Stopped); ok {
			durationSum += d
			durationsSeen++
		}
		if stat.LatestFinished == "" || backup.Stopped > stat.LatestFinished {
			stat.LatestFinished = backup.Stopped
		}
	}
	stat.EstimatedTotalSize = totalSize
	if durationsSeen > 0 {
		stat.AvgBackupDuration = uint64(durationSum.Seconds()) / durationsSeen
	}
	if stat.LatestFinished == "" {
		stat.LatestFinished = "N/A"
	}
	return stat, nil
}

func parseDuration(started, stopped string) (time.Duration, bool) {
	if started == "" || stopped == "" {
		return 0, false
	}
	from, err := time.Parse(CatalogTimeLayout, started)
	if err != nil {
		return 0, false
	}
	to, err := time.Parse(CatalogTimeLayout, stopped)
	if err != nil {
		return 0, false
	}
	if to.Before(from) {
		return 0, false
	}
	return to.Sub(from), true
}
