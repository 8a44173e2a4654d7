package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/models"
)

func TestCreateArchiveRegistersConnection(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	archiveID := f.archiveID(t, "pg1")

	require.NoError(t, f.catalog.StartTransaction())
	conns, err := f.catalog.GetConnections(archiveID)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())

	require.Len(t, conns, 1)
	assert.Equal(t, models.ConnectionTypeBasebackup, conns[0].Type)
	assert.Equal(t, "db.local", conns[0].PGHost)
}

func TestCreateArchiveDuplicateDirectory(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	err := f.run(t, createArchiveDescr("pg2", directory), false)
	require.Error(t, err)

	var archiveErr *models.ArchiveError
	assert.ErrorAs(t, err, &archiveErr)
}

func TestCreateArchiveExistsOkUpdates(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	descr := createArchiveDescr("renamed", directory)
	descr.PushAttribute(models.ArchiveAttrName)
	require.NoError(t, f.run(t, descr, true))

	require.NoError(t, f.catalog.StartTransaction())
	archive, err := f.catalog.ExistsByName("renamed")
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())
	assert.GreaterOrEqual(t, archive.ID, int64(0))
}

func TestAlterArchive(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	newDir := filepath.Join(f.dir, "moved")
	descr := models.NewCatalogDescr()
	descr.Tag = models.AlterArchive
	descr.ArchiveName = "pg1"
	descr.Directory = newDir
	descr.PushAttribute(models.ArchiveAttrDirectory)

	require.NoError(t, f.run(t, descr, false))

	require.NoError(t, f.catalog.StartTransaction())
	archive, err := f.catalog.ExistsByName("pg1")
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())
	assert.Equal(t, newDir, archive.Directory)
}

func TestAlterArchiveMissing(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	descr.Tag = models.AlterArchive
	descr.ArchiveName = "ghost"
	descr.PushAttribute(models.ArchiveAttrDirectory)

	require.Error(t, f.run(t, descr, false))
	assert.NoError(t, f.run(t, descr, true))
}

func TestDropArchive(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	descr := models.NewCatalogDescr()
	descr.Tag = models.DropArchive
	descr.ArchiveName = "pg1"
	require.NoError(t, f.run(t, descr, false))

	require.NoError(t, f.catalog.StartTransaction())
	archive, err := f.catalog.ExistsByName("pg1")
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())
	assert.Equal(t, int64(-1), archive.ID)
}

func TestDropArchiveMissing(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	descr.Tag = models.DropArchive
	descr.ArchiveName = "ghost"

	require.Error(t, f.run(t, descr, false))
	assert.NoError(t, f.run(t, descr, true))
}

func TestVerifyArchive(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	descr := models.NewCatalogDescr()
	descr.Tag = models.VerifyArchive
	descr.ArchiveName = "pg1"

	require.NoError(t, f.run(t, descr, false))
	assert.Contains(t, f.out.String(), "verified OK")
}

func TestVerifyArchiveBrokenStructure(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	// Damage the initialized layout before verifying.
	require.NoError(t, os.RemoveAll(filepath.Join(directory, "base")))

	descr := models.NewCatalogDescr()
	descr.Tag = models.VerifyArchive
	descr.ArchiveName = "pg1"

	err := f.run(t, descr, false)
	require.Error(t, err)

	var archiveErr *models.ArchiveError
	assert.ErrorAs(t, err, &archiveErr)
}

func TestListArchive(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")
	f.createArchive(t, "pg2")

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive
	require.NoError(t, f.run(t, descr, false))

	assert.Contains(t, f.out.String(), "pg1")
	assert.Contains(t, f.out.String(), "pg2")
}

func TestListArchiveFiltered(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")
	f.createArchive(t, "pg2")

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive
	descr.ArchiveName = "pg2"
	descr.PushAttribute(models.ArchiveAttrName)

	require.NoError(t, f.run(t, descr, false))
	assert.NotContains(t, f.out.String(), "pg1")
	assert.Contains(t, f.out.String(), "pg2")
}

func TestListArchiveDetailShowsConnections(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListArchive
	require.NoError(t, f.run(t, descr, true))

	assert.Contains(t, f.out.String(), "basebackup")
	assert.Contains(t, f.out.String(), "db.local:5432")
}

func TestConnectionLifecycle(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	create := models.NewCatalogDescr()
	create.Tag = models.CreateConnection
	create.ArchiveName = "pg1"
	create.Coninfo.Type = models.ConnectionTypeStreamer
	create.Coninfo.PGHost = "standby.local"
	create.Coninfo.PGPort = 5433
	require.NoError(t, f.run(t, create, false))

	// Duplicate type is rejected.
	require.Error(t, f.run(t, create, false))

	list := models.NewCatalogDescr()
	list.Tag = models.ListConnection
	list.ArchiveName = "pg1"
	require.NoError(t, f.run(t, list, false))
	assert.Contains(t, f.out.String(), "streamer")
	assert.Contains(t, f.out.String(), "standby.local:5433")

	drop := models.NewCatalogDescr()
	drop.Tag = models.DropConnection
	drop.ArchiveName = "pg1"
	drop.Coninfo.Type = models.ConnectionTypeStreamer
	require.NoError(t, f.run(t, drop, false))

	// The basebackup connection is undroppable.
	drop.Coninfo.Type = models.ConnectionTypeBasebackup
	require.Error(t, f.run(t, drop, false))
}

func TestProfileLifecycle(t *testing.T) {
	f := setupFixture(t)

	create := models.NewCatalogDescr()
	create.Tag = models.CreateBackupProfile
	create.Profile.Name = "nightly"
	create.Profile.CompressType = models.CompressTypeZstd
	require.NoError(t, f.run(t, create, false))

	// existsOk swallows the duplicate, a bare create does not.
	require.NoError(t, f.run(t, create, true))
	require.Error(t, f.run(t, create, false))

	list := models.NewCatalogDescr()
	list.Tag = models.ListBackupProfileDetail
	require.NoError(t, f.run(t, list, false))
	assert.Contains(t, f.out.String(), "nightly")
	assert.Contains(t, f.out.String(), "zstd")
	assert.Contains(t, f.out.String(), "NOT RATED")

	drop := models.NewCatalogDescr()
	drop.Tag = models.DropBackupProfile
	drop.Profile.Name = "nightly"
	require.NoError(t, f.run(t, drop, false))
}

func TestMaxRateString(t *testing.T) {
	assert.Equal(t, "NOT RATED", maxRateString(0))
	assert.Equal(t, "2048 kbps", maxRateString(2048))
}
