// Package catalog implements the transactional backup catalog on top
// of an embedded SQLite database. All mutating operations run inside
// an explicitly started transaction; the caller owns commit and
// rollback.
package catalog

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/fgeck/pgbackctl/internal/models"
)

// Catalog is a handle to the backup catalog database. The zero value
// is unusable, use New. A Catalog is not safe for concurrent use; the
// single writer is enforced by the transaction discipline.
type Catalog struct {
	logger zerolog.Logger

	path string
	db   *sql.DB
	tx   *sql.Tx
}

// New returns a catalog handle for the database at path. The database
// is not opened until OpenRW is called.
func New(logger zerolog.Logger, path string) *Catalog {
	return &Catalog{logger: logger, path: path}
}

// FullPath returns the configured database location.
func (c *Catalog) FullPath() string {
	return c.path
}

// Available reports whether the catalog database is open.
func (c *Catalog) Available() bool {
	return c.db != nil
}

// OpenRW opens the catalog database read-write, creating the file and
// the schema when absent. Calling OpenRW on an open catalog is a
// no-op.
func (c *Catalog) OpenRW() error {
	if c.db != nil {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.CatalogError{Op: "create catalog directory", Err: err}
		}
	}

	db, err := sql.Open("sqlite", c.path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return &models.CatalogError{Op: "open catalog database", Err: err}
	}
	// SQLite allows a single writer; one pooled connection keeps the
	// pragma state and the transaction on the same handle.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}

	c.db = db
	c.logger.Debug().Str("path", c.path).Msg("catalog database opened")
	return nil
}

// Close closes the database. An open transaction is rolled back
// first. Closing a closed catalog is a no-op.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			c.logger.Warn().Err(err).Msg("rollback on close failed")
		}
		c.tx = nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return &models.CatalogError{Op: "close catalog database", Err: err}
	}
	return nil
}

// StartTransaction begins a catalog transaction. Nested transactions
// are an error.
func (c *Catalog) StartTransaction() error {
	if c.db == nil {
		return models.NewCatalogError("catalog database not opened")
	}
	if c.tx != nil {
		return models.NewCatalogError("transaction already in progress")
	}
	tx, err := c.db.Begin()
	if err != nil {
		return &models.CatalogError{Op: "begin transaction", Err: err}
	}
	c.tx = tx
	return nil
}

// Commit commits the current transaction.
func (c *Catalog) Commit() error {
	if c.tx == nil {
		return models.NewCatalogError("no transaction in progress")
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return &models.CatalogError{Op: "commit transaction", Err: err}
	}
	return nil
}

// Rollback aborts the current transaction.
func (c *Catalog) Rollback() error {
	if c.tx == nil {
		return models.NewCatalogError("no transaction in progress")
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return &models.CatalogError{Op: "rollback transaction", Err: err}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// writer returns the current transaction. Mutations outside a
// transaction are refused.
func (c *Catalog) writer() (querier, error) {
	if c.db == nil {
		return nil, models.NewCatalogError("catalog database not opened")
	}
	if c.tx == nil {
		return nil, models.NewCatalogError("no transaction in progress")
	}
	return c.tx, nil
}

// reader returns the transaction when one is open, the plain database
// handle otherwise.
func (c *Catalog) reader() (querier, error) {
	if c.db == nil {
		return nil, models.NewCatalogError("catalog database not opened")
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.db, nil
}
