package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/models"
)

// CreateConnection inserts a connection for its archive. The
// descriptor's ArchiveID and Type must be set; a second connection of
// the same type for the same archive is a constraint violation.
func (c *Catalog) CreateConnection(conn *models.ConnectionDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if conn.ArchiveID < 0 {
		return models.NewCatalogError("connection requires a valid archive id")
	}
	if conn.Type == "" || conn.Type == models.ConnectionTypeUnknown {
		return models.NewCatalogError("connection requires a valid type")
	}

	_, err = w.Exec(
		`INSERT INTO connections (archive_id, type, dsn, pghost, pgport, pguser, pgdatabase)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conn.ArchiveID, conn.Type, conn.DSN,
		conn.PGHost, conn.PGPort, conn.PGUser, conn.PGDatabase)
	if err != nil {
		return &models.CatalogError{
			Op:  fmt.Sprintf("create %s connection for archive %d", conn.Type, conn.ArchiveID),
			Err: err,
		}
	}
	return nil
}

// GetConnection fills the provided descriptor with the catalog state
// of the connection identified by its ArchiveID and Type. A missing
// connection is an error.
func (c *Catalog) GetConnection(conn *models.ConnectionDescr) error {
	q, err := c.reader()
	if err != nil {
		return err
	}

	row := q.QueryRow(
		`SELECT dsn, pghost, pgport, pguser, pgdatabase
		 FROM connections WHERE archive_id = ? AND type = ?`,
		conn.ArchiveID, conn.Type)

	err = row.Scan(&conn.DSN, &conn.PGHost, &conn.PGPort, &conn.PGUser, &conn.PGDatabase)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewCatalogError("no %s connection for archive %d", conn.Type, conn.ArchiveID)
	}
	if err != nil {
		return &models.CatalogError{Op: "lookup connection", Err: err}
	}
	return nil
}

// GetConnections returns all connections of the archive ordered by
// type.
func (c *Catalog) GetConnections(archiveID int64) ([]*models.ConnectionDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(
		`SELECT archive_id, type, dsn, pghost, pgport, pguser, pgdatabase
		 FROM connections WHERE archive_id = ? ORDER BY type`,
		archiveID)
	if err != nil {
		return nil, &models.CatalogError{Op: "list connections", Err: err}
	}
	defer rows.Close()

	var result []*models.ConnectionDescr
	for rows.Next() {
		conn := models.NewConnectionDescr()
		if err := rows.Scan(&conn.ArchiveID, &conn.Type, &conn.DSN,
			&conn.PGHost, &conn.PGPort, &conn.PGUser, &conn.PGDatabase); err != nil {
			return nil, &models.CatalogError{Op: "scan connection row", Err: err}
		}
		result = append(result, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list connections", Err: err}
	}
	return result, nil
}

// DropConnection removes exactly the connection of the given type.
// Other connection types of the archive stay untouched.
func (c *Catalog) DropConnection(archiveID int64, connType string) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if connType == models.ConnectionTypeBasebackup {
		return models.NewCatalogError("the basebackup connection of an archive cannot be dropped")
	}

	res, err := w.Exec(
		`DELETE FROM connections WHERE archive_id = ? AND type = ?`,
		archiveID, connType)
	if err != nil {
		return &models.CatalogError{Op: "drop connection", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("no %s connection for archive %d", connType, archiveID)
	}
	return nil
}
