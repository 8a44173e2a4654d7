package catalog

import (
	"github.com/fgeck/pgbackctl/internal/models"
)

// PerformPinAction applies a PIN or UNPIN action to the basebackups of
// the given archive and returns the number of affected backups. Only
// backups in state "ready" can be pinned.
func (c *Catalog) PerformPinAction(pin *models.PinDescr, archiveID int64) (int64, error) {
	w, err := c.writer()
	if err != nil {
		return 0, err
	}

	pinned := 0
	if pin.Tag == models.PinBasebackup {
		pinned = 1
	}

	var (
		query string
		args  []any
	)

	switch pin.Operation {
	case models.PinOpID:
		id, err := pin.BackupID()
		if err != nil {
			return 0, err
		}
		query = `UPDATE backup SET pinned = ?
		         WHERE id = ? AND archive_id = ? AND status = ?`
		args = []any{pinned, id, archiveID, models.BackupStatusReady}

	case models.PinOpCount:
		n, err := pin.Count()
		if err != nil {
			return 0, err
		}
		query = `UPDATE backup SET pinned = ? WHERE id IN (
		           SELECT id FROM backup
		           WHERE archive_id = ? AND status = ?
		           ORDER BY started DESC, id DESC LIMIT ?)`
		args = []any{pinned, archiveID, models.BackupStatusReady, n}

	case models.PinOpNewest:
		query = `UPDATE backup SET pinned = ? WHERE id IN (
		           SELECT id FROM backup
		           WHERE archive_id = ? AND status = ?
		           ORDER BY started DESC, id DESC LIMIT 1)`
		args = []any{pinned, archiveID, models.BackupStatusReady}

	case models.PinOpOldest:
		query = `UPDATE backup SET pinned = ? WHERE id IN (
		           SELECT id FROM backup
		           WHERE archive_id = ? AND status = ?
		           ORDER BY started ASC, id ASC LIMIT 1)`
		args = []any{pinned, archiveID, models.BackupStatusReady}

	case models.PinOpPinned:
		if pin.Tag != models.UnpinBasebackup {
			return 0, models.NewCatalogError("PINNED selection is valid for UNPIN only")
		}
		query = `UPDATE backup SET pinned = 0
		         WHERE archive_id = ? AND pinned > 0`
		args = []any{archiveID}

	default:
		return 0, models.NewCatalogError("undefined pin operation")
	}

	res, err := w.Exec(query, args...)
	if err != nil {
		return 0, &models.CatalogError{Op: "perform pin action", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &models.CatalogError{Op: "perform pin action", Err: err}
	}

	c.logger.Info().
		Int64("archive_id", archiveID).
		Int64("affected", affected).
		Str("action", pin.Tag.String()).
		Msg("pin action applied")
	return affected, nil
}
