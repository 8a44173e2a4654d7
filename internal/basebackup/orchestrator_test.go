package basebackup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/archivedir"
	"github.com/fgeck/pgbackctl/internal/catalog"
	"github.com/fgeck/pgbackctl/internal/models"
	"github.com/fgeck/pgbackctl/internal/stream"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type mockStream struct {
	connectFunc        func(ctx context.Context, conn *models.ConnectionDescr) error
	identifyFunc       func(ctx context.Context) (*models.StreamIdentification, error)
	startFunc          func(ctx context.Context, opts stream.BasebackupOptions) (*stream.BasebackupStarted, error)
	nextTablespaceFunc func(ctx context.Context) (io.Reader, bool, error)
	endFunc            func(ctx context.Context) (pglogrepl.LSN, int32, error)
	disconnectFunc     func(ctx context.Context) error
}

func (m *mockStream) Connect(ctx context.Context, conn *models.ConnectionDescr) error {
	if m.connectFunc != nil {
		return m.connectFunc(ctx, conn)
	}
	return nil
}

func (m *mockStream) Identify(ctx context.Context) (*models.StreamIdentification, error) {
	if m.identifyFunc != nil {
		return m.identifyFunc(ctx)
	}
	ident := models.NewStreamIdentification()
	ident.SystemID = "7000000000000000001"
	ident.Timeline = 1
	ident.XlogPos = "0/3000000"
	ident.WALSegmentSize = 16 * 1024 * 1024
	ident.Status = models.StreamProgressIdentified
	return ident, nil
}

func (m *mockStream) StartBasebackup(ctx context.Context, opts stream.BasebackupOptions) (*stream.BasebackupStarted, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, opts)
	}
	spc := models.NewBackupTablespaceDescr()
	spc.SpcOID = 0
	spc.SpcSize = 1024
	return &stream.BasebackupStarted{
		XlogPos:     pglogrepl.LSN(0x3000000),
		Timeline:    1,
		Tablespaces: []*models.BackupTablespaceDescr{spc},
	}, nil
}

func (m *mockStream) NextTablespace(ctx context.Context) (io.Reader, bool, error) {
	if m.nextTablespaceFunc != nil {
		return m.nextTablespaceFunc(ctx)
	}
	return nil, false, nil
}

func (m *mockStream) EndBasebackup(ctx context.Context) (pglogrepl.LSN, int32, error) {
	if m.endFunc != nil {
		return m.endFunc(ctx)
	}
	return pglogrepl.LSN(0x4000000), 1, nil
}

func (m *mockStream) Disconnect(ctx context.Context) error {
	if m.disconnectFunc != nil {
		return m.disconnectFunc(ctx)
	}
	return nil
}

type fixture struct {
	catalog *catalog.Catalog
	archive *models.CatalogDescr
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	cat := catalog.New(testLogger(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, cat.OpenRW())
	t.Cleanup(func() { _ = cat.Close() })

	archive := models.NewCatalogDescr()
	archive.ArchiveName = "pg1"
	archive.Directory = filepath.Join(dir, "archive")

	require.NoError(t, cat.StartTransaction())
	require.NoError(t, cat.CreateArchive(archive))

	conn := models.NewConnectionDescr()
	conn.ArchiveID = archive.ID
	conn.Type = models.ConnectionTypeBasebackup
	conn.PGHost = "db.local"
	conn.PGPort = 5432
	require.NoError(t, cat.CreateConnection(conn))
	require.NoError(t, cat.Commit())

	require.NoError(t, archivedir.New(testLogger(), archive.Directory).Initialize())

	return &fixture{catalog: cat, archive: archive}
}

func singleTablespaceStream(payload []byte) *mockStream {
	delivered := false
	return &mockStream{
		nextTablespaceFunc: func(context.Context) (io.Reader, bool, error) {
			if delivered {
				return nil, false, nil
			}
			delivered = true
			return bytes.NewReader(payload), true, nil
		},
	}
}

func TestRunCompletesBackup(t *testing.T) {
	f := setupFixture(t)
	payload := bytes.Repeat([]byte("data dir tar "), 512)

	o := NewWithStream(testLogger(), f.catalog, singleTablespaceStream(payload))

	descr := models.NewCatalogDescr()
	descr.Tag = models.StartBasebackup
	descr.ArchiveName = "pg1"

	backup, err := o.Run(context.Background(), descr)
	require.NoError(t, err)
	require.NotNil(t, backup)

	assert.Equal(t, models.BackupStatusReady, backup.Status)
	assert.Equal(t, "0/3000000", backup.XlogPos)
	assert.Equal(t, "0/4000000", backup.XlogPosEnd)
	assert.Equal(t, "7000000000000000001", backup.SystemID)

	stored, err := f.catalog.GetBasebackup(backup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusReady, stored.Status)
	require.Len(t, stored.Tablespaces, 1)

	data, err := os.ReadFile(filepath.Join(
		f.archive.Directory, "base", backup.FSEntry, "base.tar"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestRunUnknownArchive(t *testing.T) {
	f := setupFixture(t)
	o := NewWithStream(testLogger(), f.catalog, &mockStream{})

	descr := models.NewCatalogDescr()
	descr.ArchiveName = "ghost"

	_, err := o.Run(context.Background(), descr)
	require.Error(t, err)

	var archiveErr *models.ArchiveError
	assert.ErrorAs(t, err, &archiveErr)
}

func TestRunUnknownProfile(t *testing.T) {
	f := setupFixture(t)
	o := NewWithStream(testLogger(), f.catalog, &mockStream{})

	descr := models.NewCatalogDescr()
	descr.ArchiveName = "pg1"
	descr.Profile.Name = "ghost"

	_, err := o.Run(context.Background(), descr)
	require.Error(t, err)

	var catErr *models.CatalogError
	assert.ErrorAs(t, err, &catErr)
}

func TestRunFailureBeforeRegistrationLeavesNoRows(t *testing.T) {
	f := setupFixture(t)

	wantErr := errors.New("backend refused")
	s := &mockStream{
		startFunc: func(context.Context, stream.BasebackupOptions) (*stream.BasebackupStarted, error) {
			return nil, wantErr
		},
	}
	o := NewWithStream(testLogger(), f.catalog, s)

	descr := models.NewCatalogDescr()
	descr.ArchiveName = "pg1"

	_, err := o.Run(context.Background(), descr)
	assert.ErrorIs(t, err, wantErr)

	backups, err := f.catalog.GetBackupList(f.archive.ID)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRunFailureAfterRegistrationAbortsBackup(t *testing.T) {
	f := setupFixture(t)

	wantErr := errors.New("stream broke mid-flight")
	s := singleTablespaceStream([]byte("partial"))
	s.endFunc = func(context.Context) (pglogrepl.LSN, int32, error) {
		return 0, 0, wantErr
	}
	o := NewWithStream(testLogger(), f.catalog, s)

	descr := models.NewCatalogDescr()
	descr.ArchiveName = "pg1"

	backup, err := o.Run(context.Background(), descr)
	assert.ErrorIs(t, err, wantErr)
	require.NotNil(t, backup)

	// The original error surfaces, the catalog shows the abort.
	stored, err := f.catalog.GetBasebackup(backup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusAborted, stored.Status)
	assert.NotEmpty(t, stored.Stopped)
}

func TestRunDisconnectsOnSuccess(t *testing.T) {
	f := setupFixture(t)

	disconnected := false
	s := singleTablespaceStream([]byte("payload"))
	s.disconnectFunc = func(context.Context) error {
		disconnected = true
		return nil
	}
	o := NewWithStream(testLogger(), f.catalog, s)

	descr := models.NewCatalogDescr()
	descr.ArchiveName = "pg1"

	_, err := o.Run(context.Background(), descr)
	require.NoError(t, err)
	assert.True(t, disconnected)
}
