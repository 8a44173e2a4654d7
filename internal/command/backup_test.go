package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/launcher"
	"github.com/fgeck/pgbackctl/internal/models"
	"github.com/fgeck/pgbackctl/internal/stream"
)

func TestListBackupCatalog(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")
	f.addReadyBackup(t, "pg1", "nightly", "basebackup-1", "0/3000000")

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListBackupCatalog
	descr.ArchiveName = "pg1"

	require.NoError(t, f.run(t, descr, false))
	assert.Contains(t, f.out.String(), `Catalog status for archive "pg1"`)
	assert.Contains(t, f.out.String(), "nightly")
}

func TestListBackups(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")
	f.addReadyBackup(t, "pg1", "first", "basebackup-1", "0/3000000")
	f.addReadyBackup(t, "pg1", "second", "basebackup-2", "0/4000000")

	descr := models.NewCatalogDescr()
	descr.Tag = models.ListBackupList
	descr.ArchiveName = "pg1"

	require.NoError(t, f.run(t, descr, false))
	assert.Contains(t, f.out.String(), "first")
	assert.Contains(t, f.out.String(), "second")
}

func TestPinAndUnpinNewest(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")
	f.addReadyBackup(t, "pg1", "first", "basebackup-1", "0/3000000")
	newest := f.addReadyBackup(t, "pg1", "second", "basebackup-2", "0/4000000")

	pin := models.NewCatalogDescr()
	pin.Tag = models.PinBasebackup
	pin.ArchiveName = "pg1"
	_, err := pin.MakePinDescr(models.PinOpNewest)
	require.NoError(t, err)

	require.NoError(t, f.run(t, pin, false))
	assert.Contains(t, f.out.String(), "1 basebackups pinned")

	require.NoError(t, f.catalog.StartTransaction())
	stored, err := f.catalog.GetBasebackup(newest.ID)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Commit())
	assert.Equal(t, 1, stored.Pinned)

	unpin := models.NewCatalogDescr()
	unpin.Tag = models.UnpinBasebackup
	unpin.ArchiveName = "pg1"
	_, err = unpin.MakePinDescr(models.PinOpPinned)
	require.NoError(t, err)

	f.out.Reset()
	require.NoError(t, f.run(t, unpin, false))
	assert.Contains(t, f.out.String(), "1 basebackups unpinned")
}

func TestPinRequiresPinDescr(t *testing.T) {
	f := setupFixture(t)
	f.createArchive(t, "pg1")

	descr := models.NewCatalogDescr()
	descr.Tag = models.PinBasebackup
	descr.ArchiveName = "pg1"

	assert.Error(t, f.run(t, descr, false))
}

type mockStream struct {
	payload []byte
	sent    bool
}

func (m *mockStream) Connect(ctx context.Context, conn *models.ConnectionDescr) error {
	return nil
}

func (m *mockStream) Identify(ctx context.Context) (*models.StreamIdentification, error) {
	ident := models.NewStreamIdentification()
	ident.SystemID = "7000000000000000001"
	ident.Timeline = 1
	ident.XlogPos = "0/3000000"
	ident.WALSegmentSize = 16 * 1024 * 1024
	return ident, nil
}

func (m *mockStream) StartBasebackup(ctx context.Context, opts stream.BasebackupOptions) (*stream.BasebackupStarted, error) {
	spc := models.NewBackupTablespaceDescr()
	spc.SpcOID = 0
	spc.SpcSize = int64(len(m.payload))
	return &stream.BasebackupStarted{
		XlogPos:     pglogrepl.LSN(0x3000000),
		Timeline:    1,
		Tablespaces: []*models.BackupTablespaceDescr{spc},
	}, nil
}

func (m *mockStream) NextTablespace(ctx context.Context) (io.Reader, bool, error) {
	if m.sent {
		return nil, false, nil
	}
	m.sent = true
	return bytes.NewReader(m.payload), true, nil
}

func (m *mockStream) EndBasebackup(ctx context.Context) (pglogrepl.LSN, int32, error) {
	return pglogrepl.LSN(0x4000000), 1, nil
}

func (m *mockStream) Disconnect(ctx context.Context) error {
	return nil
}

func TestStartBasebackup(t *testing.T) {
	f := setupFixture(t)
	directory := f.createArchive(t, "pg1")

	payload := bytes.Repeat([]byte("tar data "), 1024)
	f.rt.Stream = &mockStream{payload: payload}

	descr := models.NewCatalogDescr()
	descr.Tag = models.StartBasebackup
	descr.ArchiveName = "pg1"

	require.NoError(t, f.run(t, descr, false))
	assert.Contains(t, f.out.String(), "0/3000000 .. 0/4000000")

	entries, err := os.ReadDir(filepath.Join(directory, "base"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(directory, "base", entries[0].Name(), "base.tar"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

type mockLauncher struct {
	job launcher.JobInfo
	pid int
	err error
}

func (m *mockLauncher) Launch(job launcher.JobInfo) (int, error) {
	m.job = job
	return m.pid, m.err
}

func TestStartLauncher(t *testing.T) {
	f := setupFixture(t)
	ml := &mockLauncher{pid: 4711}
	f.rt.Launcher = ml

	descr := models.NewCatalogDescr()
	descr.Tag = models.StartLauncher
	descr.ArchiveName = "pg1"

	require.NoError(t, f.run(t, descr, false))
	assert.Contains(t, f.out.String(), "pid 4711")

	assert.True(t, ml.job.Detach)
	assert.Contains(t, ml.job.Args, "worker")
	assert.Contains(t, ml.job.Args, "--archive")
}

func TestStartLauncherRequiresService(t *testing.T) {
	f := setupFixture(t)

	descr := models.NewCatalogDescr()
	descr.Tag = models.StartLauncher

	assert.Error(t, f.run(t, descr, false))
}
