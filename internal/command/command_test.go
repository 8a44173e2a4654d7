package command

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fixture struct {
	catalog *catalog.Catalog
	out     *bytes.Buffer
	rt      Runtime
	dir     string
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	cat := catalog.New(testLogger(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, cat.OpenRW())
	t.Cleanup(func() { _ = cat.Close() })

	out := &bytes.Buffer{}
	return &fixture{
		catalog: cat,
		out:     out,
		dir:     dir,
		rt: Runtime{
			Logger:  testLogger(),
			Catalog: cat,
			Vars:    config.NewVariables(),
			Out:     out,
		},
	}
}

func (f *fixture) run(t *testing.T, descr *models.CatalogDescr, flag bool) error {
	t.Helper()
	cmd, err := New(f.rt, descr)
	require.NoError(t, err)
	return cmd.Execute(context.Background(), flag)
}

func createArchiveDescr(name, directory string) *models.CatalogDescr {
	descr := models.NewCatalogDescr()
	descr.Tag = models.CreateArchive
	descr.ArchiveName = name
	descr.Directory = directory
	descr.Coninfo.PGHost = "db.local"
	descr.Coninfo.PGPort = 5432
	descr.Coninfo.PGUser = "repl"
	descr.Coninfo.PGDatabase = "postgres"
	return descr
}

// createArchive registers an archive through the command layer, which
// also initializes its directory on disk.
func (f *fixture) createArchive(t *testing.T, name string) string {
	t.Helper()
	directory := filepath.Join(f.dir, name)
	require.NoError(t, f.run(t, createArchiveDescr(name, directory), false))
	return directory
}

func (f *fixture) archiveID(t *testing.T, name string) int64 {
	t.Helper()
	require.NoError(t, f.catalog.StartTransaction())
	archive, err := f.catalog.ExistsByName(name)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())
	require.GreaterOrEqual(t, archive.ID, int64(0))
	return archive.ID
}

// addReadyBackup registers a finalized basebackup directly in the
// catalog and materializes its directory.
func (f *fixture) addReadyBackup(t *testing.T, name, label, fsentry, xlogpos string) *models.BaseBackupDescr {
	t.Helper()

	archiveID := f.archiveID(t, name)
	backup := models.NewBaseBackupDescr()
	backup.Label = label
	backup.FSEntry = fsentry
	backup.XlogPos = xlogpos
	backup.XlogPosEnd = xlogpos
	backup.Timeline = 1
	backup.SystemID = "7000000000000000001"
	backup.WALSegmentSize = 16 * 1024 * 1024

	require.NoError(t, f.catalog.StartTransaction())
	require.NoError(t, f.catalog.RegisterBasebackup(archiveID, backup))
	require.NoError(t, f.catalog.FinalizeBasebackup(backup))
	require.NoError(t, f.catalog.Commit())
	return backup
}

func TestFactoryRejectsUnknownTag(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	_, err := New(f.rt, descr)
	require.Error(t, err)

	var catErr *models.CatalogError
	assert.ErrorAs(t, err, &catErr)
}

func TestFactoryTag(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive
	cmd, err := New(f.rt, descr)
	require.NoError(t, err)
	assert.Equal(t, models.ListArchive, cmd.Tag())
}

func TestCommandsRequireCatalog(t *testing.T) {
	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive

	cmd, err := New(Runtime{Logger: testLogger()}, descr)
	require.NoError(t, err)
	assert.Error(t, cmd.Execute(context.Background(), false))
}

func TestEnvelopeOpensCatalogLazily(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.New(testLogger(), filepath.Join(dir, "catalog.db"))
	t.Cleanup(func() { _ = cat.Close() })

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive

	cmd, err := New(Runtime{Logger: testLogger(), Catalog: cat}, descr)
	require.NoError(t, err)

	require.False(t, cat.Available())
	require.NoError(t, cmd.Execute(context.Background(), false))
	assert.True(t, cat.Available())
}

func TestEnvelopeRollsBackOnFailure(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	descr.Tag = models.DropArchive
	descr.ArchiveName = "ghost"

	require.Error(t, f.run(t, descr, false))

	// The envelope rolled back, so a fresh transaction must start.
	require.NoError(t, f.catalog.StartTransaction())
	require.NoError(t, f.catalog.Rollback())
}
