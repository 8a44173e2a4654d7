package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/models"
)

func createRetentionDescr(name string, rules ...*models.RetentionRuleDescr) *models.CatalogDescr {
	descr := models.NewCatalogDescr()
	descr.Tag = models.CreateRetentionPolicy
	descr.RetentionName = name
	rd := descr.MakeRetentionDescr()
	rd.Rules = rules
	return descr
}

func keepNumRule(value string) *models.RetentionRuleDescr {
	return &models.RetentionRuleDescr{ID: -1, Type: models.RetentionKeepNum, Value: value}
}

func TestRetentionPolicyLifecycle(t *testing.T) {
	f := setupFixture(t)

	require.NoError(t, f.run(t, createRetentionDescr("keep-one", keepNumRule("1")), false))

	list := models.NewCatalogDescr()
	list.Tag = models.ListRetentionPolicy
	list.RetentionName = "keep-one"
	require.NoError(t, f.run(t, list, false))
	assert.Contains(t, f.out.String(), `retention policy "keep-one"`)
	assert.Contains(t, f.out.String(), "KEEP 1")

	listAll := models.NewCatalogDescr()
	listAll.Tag = models.ListRetentionPolicies
	require.NoError(t, f.run(t, listAll, false))

	drop := models.NewCatalogDescr()
	drop.Tag = models.DropRetentionPolicy
	drop.RetentionName = "keep-one"
	require.NoError(t, f.run(t, drop, false))

	f.out.Reset()
	require.Error(t, f.run(t, list, false))
}

func TestApplyRetentionDeletesBackupsAndDirectories(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	var fsentries []string
	for _, spec := range []struct{ label, fsentry, lsn string }{
		{"oldest", "basebackup-1", "0/1000000"},
		{"middle", "basebackup-2", "0/2000000"},
		{"newest", "basebackup-3", "0/3000000"},
	} {
		f.addReadyBackup(t, "pg1", spec.label, spec.fsentry, spec.lsn)
		path := filepath.Join(directory, "base", spec.fsentry)
		require.NoError(t, os.MkdirAll(path, 0o755))
		fsentries = append(fsentries, path)
	}

	require.NoError(t, f.run(t, createRetentionDescr("keep-one", keepNumRule("1")), false))

	apply := models.NewCatalogDescr()
	apply.Tag = models.ApplyRetentionPolicy
	apply.ArchiveName = "pg1"
	apply.RetentionName = "keep-one"

	require.NoError(t, f.run(t, apply, false))
	assert.Contains(t, f.out.String(), "2 of 3 basebackups deleted")

	archiveID := f.archiveID(t, "pg1")
	require.NoError(t, f.catalog.StartTransaction())
	backups, err := f.catalog.GetBackupList(archiveID)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())

	require.Len(t, backups, 1)
	assert.Equal(t, "newest", backups[0].Label)

	assert.NoDirExists(t, fsentries[0])
	assert.NoDirExists(t, fsentries[1])
	assert.DirExists(t, fsentries[2])
}

func TestApplyRetentionUnknownPolicy(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	apply := models.NewCatalogDescr()
	apply.Tag = models.ApplyRetentionPolicy
	apply.ArchiveName = "pg1"
	apply.RetentionName = "ghost"

	err := f.run(t, apply, false)
	require.Error(t, err)

	var catErr *models.CatalogError
	assert.ErrorAs(t, err, &catErr)
}

func TestApplyRetentionKeepsPinned(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	old := f.addReadyBackup(t, "pg1", "oldest", "basebackup-1", "0/1000000")
	f.addReadyBackup(t, "pg1", "newest", "basebackup-2", "0/2000000")
	for _, fsentry := range []string{"basebackup-1", "basebackup-2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(directory, "base", fsentry), 0o755))
	}

	pin := models.NewCatalogDescr()
	pin.Tag = models.PinBasebackup
	pin.ArchiveName = "pg1"
	pinDescr, err := pin.MakePinDescr(models.PinOpID)
	require.NoError(t, err)
	pinDescr.SetBackupID(old.ID)
	require.NoError(t, f.run(t, pin, false))

	require.NoError(t, f.run(t, createRetentionDescr("keep-one", keepNumRule("1")), false))

	apply := models.NewCatalogDescr()
	apply.Tag = models.ApplyRetentionPolicy
	apply.ArchiveName = "pg1"
	apply.RetentionName = "keep-one"
	require.NoError(t, f.run(t, apply, false))

	assert.Contains(t, f.out.String(), "0 of 2 basebackups deleted")
	assert.DirExists(t, filepath.Join(directory, "base", "basebackup-1"))
}
