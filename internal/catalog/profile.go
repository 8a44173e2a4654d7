package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/models"
)

// CreateBackupProfile inserts a new backup profile and stores the
// generated id in the descriptor.
func (c *Catalog) CreateBackupProfile(profile *models.BackupProfileDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if profile.Name == "" {
		return models.NewCatalogError("backup profile name must not be empty")
	}

	res, err := w.Exec(
		`INSERT INTO backup_profiles
		 (name, compress_type, max_rate, label, fast_checkpoint,
		  include_wal, wait_for_wal, noverify_checksums)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.Name, profile.CompressType.String(), profile.MaxRate, profile.Label,
		profile.FastCheckpoint, profile.IncludeWAL,
		profile.WaitForWAL, profile.NoVerifyChecksums)
	if err != nil {
		return &models.CatalogError{
			Op:  fmt.Sprintf("create backup profile %q", profile.Name),
			Err: err,
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &models.CatalogError{Op: "resolve backup profile id", Err: err}
	}
	profile.ProfileID = id

	c.logger.Info().Str("profile", profile.Name).Int64("id", id).Msg("backup profile registered")
	return nil
}

// GetBackupProfile looks up a profile by name. The returned descriptor
// carries the sentinel ProfileID -1 when the name is unknown.
func (c *Catalog) GetBackupProfile(name string) (*models.BackupProfileDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	profile := models.NewBackupProfileDescr()
	var compressType string
	err = q.QueryRow(
		`SELECT id, name, compress_type, max_rate, label, fast_checkpoint,
		        include_wal, wait_for_wal, noverify_checksums
		 FROM backup_profiles WHERE name = ?`, name).
		Scan(&profile.ProfileID, &profile.Name, &compressType, &profile.MaxRate,
			&profile.Label, &profile.FastCheckpoint, &profile.IncludeWAL,
			&profile.WaitForWAL, &profile.NoVerifyChecksums)
	if errors.Is(err, sql.ErrNoRows) {
		profile.ProfileID = -1
		return profile, nil
	}
	if err != nil {
		return nil, &models.CatalogError{Op: "lookup backup profile", Err: err}
	}

	ct, ok := models.ParseCompressType(compressType)
	if !ok {
		return nil, models.NewCatalogError("profile %q carries unknown compression %q", name, compressType)
	}
	profile.CompressType = ct
	return profile, nil
}

// GetBackupProfiles returns all profiles ordered by name.
func (c *Catalog) GetBackupProfiles() ([]*models.BackupProfileDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(
		`SELECT id, name, compress_type, max_rate, label, fast_checkpoint,
		        include_wal, wait_for_wal, noverify_checksums
		 FROM backup_profiles ORDER BY name`)
	if err != nil {
		return nil, &models.CatalogError{Op: "list backup profiles", Err: err}
	}
	defer rows.Close()

	var result []*models.BackupProfileDescr
	for rows.Next() {
		profile := models.NewBackupProfileDescr()
		var compressType string
		if err := rows.Scan(&profile.ProfileID, &profile.Name, &compressType,
			&profile.MaxRate, &profile.Label, &profile.FastCheckpoint,
			&profile.IncludeWAL, &profile.WaitForWAL, &profile.NoVerifyChecksums); err != nil {
			return nil, &models.CatalogError{Op: "scan backup profile row", Err: err}
		}
		ct, ok := models.ParseCompressType(compressType)
		if !ok {
			return nil, models.NewCatalogError("profile %q carries unknown compression %q",
				profile.Name, compressType)
		}
		profile.CompressType = ct
		result = append(result, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list backup profiles", Err: err}
	}
	return result, nil
}

// DropBackupProfile removes the profile by name.
func (c *Catalog) DropBackupProfile(name string) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	res, err := w.Exec(`DELETE FROM backup_profiles WHERE name = ?`, name)
	if err != nil {
		return &models.CatalogError{Op: fmt.Sprintf("drop backup profile %q", name), Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("backup profile %q does not exist", name)
	}
	return nil
}
