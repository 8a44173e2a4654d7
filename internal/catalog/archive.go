package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fgeck/pgbackctl/internal/models"
)

var archiveAttrColumns = map[models.AttrID]string{
	models.ArchiveAttrID:          "id",
	models.ArchiveAttrName:        "name",
	models.ArchiveAttrDirectory:   "directory",
	models.ArchiveAttrCompression: "compression",
}

func archiveAttrValue(descr *models.CatalogDescr, attr models.AttrID) any {
	switch attr {
	case models.ArchiveAttrID:
		return descr.ID
	case models.ArchiveAttrName:
		return descr.ArchiveName
	case models.ArchiveAttrDirectory:
		return descr.Directory
	case models.ArchiveAttrCompression:
		return descr.Compression
	}
	return nil
}

// Exists looks up an archive by its directory. The returned descriptor
// carries the sentinel ID -1 when no archive uses the directory.
func (c *Catalog) Exists(directory string) (*models.CatalogDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}
	return c.scanArchive(q.QueryRow(
		`SELECT id, name, directory, compression FROM archive WHERE directory = ?`,
		directory))
}

// ExistsByName looks up an archive by name. The returned descriptor
// carries the sentinel ID -1 when the name is unknown.
func (c *Catalog) ExistsByName(name string) (*models.CatalogDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}
	return c.scanArchive(q.QueryRow(
		`SELECT id, name, directory, compression FROM archive WHERE name = ?`,
		name))
}

func (c *Catalog) scanArchive(row *sql.Row) (*models.CatalogDescr, error) {
	descr := models.NewCatalogDescr()
	err := row.Scan(&descr.ID, &descr.ArchiveName, &descr.Directory, &descr.Compression)
	if errors.Is(err, sql.ErrNoRows) {
		return descr, nil
	}
	if err != nil {
		return nil, &models.CatalogError{Op: "lookup archive", Err: err}
	}
	return descr, nil
}

// CreateArchive inserts a new archive and stores the generated id in
// the descriptor.
func (c *Catalog) CreateArchive(descr *models.CatalogDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if descr.ArchiveName == "" {
		return models.NewCatalogError("archive name must not be empty")
	}
	if descr.Directory == "" {
		return models.NewCatalogError("archive directory must not be empty")
	}

	res, err := w.Exec(
		`INSERT INTO archive (name, directory, compression) VALUES (?, ?, ?)`,
		descr.ArchiveName, descr.Directory, descr.Compression)
	if err != nil {
		return &models.CatalogError{
			Op:  fmt.Sprintf("create archive %q", descr.ArchiveName),
			Err: err,
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &models.CatalogError{Op: "resolve archive id", Err: err}
	}
	descr.ID = id

	c.logger.Info().
		Str("archive", descr.ArchiveName).
		Int64("id", id).
		Msg("archive registered")
	return nil
}

// UpdateArchiveAttributes writes the columns named by attrs from the
// descriptor. An empty attribute list is a no-op.
func (c *Catalog) UpdateArchiveAttributes(descr *models.CatalogDescr, attrs []models.AttrID) error {
	if len(attrs) == 0 {
		return nil
	}
	w, err := c.writer()
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(attrs))
	args := make([]any, 0, len(attrs)+1)
	for _, attr := range attrs {
		col, ok := archiveAttrColumns[attr]
		if !ok || attr == models.ArchiveAttrID {
			return models.NewCatalogError("attribute %d is not an updatable archive column", attr)
		}
		sets = append(sets, col+" = ?")
		args = append(args, archiveAttrValue(descr, attr))
	}
	args = append(args, descr.ID)

	res, err := w.Exec(
		`UPDATE archive SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return &models.CatalogError{Op: "update archive", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("archive id %d does not exist", descr.ID)
	}
	return nil
}

// DropArchive removes the archive by name. Connections, basebackups
// and tablespace entries cascade.
func (c *Catalog) DropArchive(name string) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	res, err := w.Exec(`DELETE FROM archive WHERE name = ?`, name)
	if err != nil {
		return &models.CatalogError{Op: fmt.Sprintf("drop archive %q", name), Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("archive %q does not exist", name)
	}
	c.logger.Info().Str("archive", name).Msg("archive dropped")
	return nil
}

// GetArchiveList returns archives ordered by name. When the filter
// descriptor has ArchiveAttrName in its affected-attribute set, only
// the named archive is returned.
func (c *Catalog) GetArchiveList(filter *models.CatalogDescr) ([]*models.CatalogDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, directory, compression FROM archive`
	var args []any
	if filter != nil && filter.HasAttribute(models.ArchiveAttrName) {
		query += ` WHERE name = ?`
		args = append(args, filter.ArchiveName)
	}
	query += ` ORDER BY name`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, &models.CatalogError{Op: "list archives", Err: err}
	}
	defer rows.Close()

	var result []*models.CatalogDescr
	for rows.Next() {
		descr := models.NewCatalogDescr()
		if err := rows.Scan(&descr.ID, &descr.ArchiveName, &descr.Directory, &descr.Compression); err != nil {
			return nil, &models.CatalogError{Op: "scan archive row", Err: err}
		}
		result = append(result, descr)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list archives", Err: err}
	}
	return result, nil
}
