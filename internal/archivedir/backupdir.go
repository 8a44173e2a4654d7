package archivedir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/ioring"
	"github.com/fgeck/pgbackctl/internal/models"
)

// BackupDir is one timestamped base backup directory below the archive
// base path.
type BackupDir struct {
	logger zerolog.Logger

	archive *ArchiveDir
	name    string
}

// NewBackupDir derives a fresh timestamped backup directory handle.
// Nothing is created until Create is called.
func NewBackupDir(logger zerolog.Logger, archive *ArchiveDir, startedAt time.Time) *BackupDir {
	return &BackupDir{
		logger:  logger,
		archive: archive,
		name:    "basebackup-" + startedAt.Format("20060102T150405"),
	}
}

// Name returns the directory entry recorded in the catalog.
func (b *BackupDir) Name() string {
	return b.name
}

// BackupDirectoryString returns the absolute backup directory path.
func (b *BackupDir) BackupDirectoryString() string {
	return filepath.Join(b.archive.BasePath(), b.name)
}

// Create materializes the backup directory. The archive must verify
// first.
func (b *BackupDir) Create() error {
	if err := b.archive.Verify(); err != nil {
		return err
	}
	if err := os.Mkdir(b.BackupDirectoryString(), 0o755); err != nil {
		return &models.ArchiveError{Op: "create backup directory", Err: err}
	}
	return nil
}

// TablespaceSink opens the write sink for one streamed tablespace,
// wrapped in the requested compression. OID 0 denotes the main data
// directory.
func (b *BackupDir) TablespaceSink(spcOID uint32, compression models.CompressType) (Sink, error) {
	name := "base"
	if spcOID != 0 {
		name = fmt.Sprintf("tablespace-%d", spcOID)
	}

	switch compression {
	case models.CompressTypeGzip, models.CompressTypePbzip:
		return newGzipSink(filepath.Join(b.BackupDirectoryString(), name+".tar.gz"))
	case models.CompressTypeZstd:
		return newZstdSink(filepath.Join(b.BackupDirectoryString(), name+".tar.zst"))
	case models.CompressTypeNone, models.CompressTypePlain:
		return newRingSink(b.logger, filepath.Join(b.BackupDirectoryString(), name+".tar"))
	}
	return nil, models.NewArchiveError("unsupported compression type %d", compression)
}

// Sink receives one tablespace tar stream chunk-wise and makes the
// data durable on Close.
type Sink interface {
	io.Writer
	WriteChunk(data []byte) (int, error)
	Close() error
}

type fileSink struct {
	file       *os.File
	compressor io.WriteCloser
}

func newGzipSink(path string) (Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &models.ArchiveError{Op: "create tablespace sink", Err: err}
	}
	return &fileSink{file: file, compressor: gzip.NewWriter(file)}, nil
}

func newZstdSink(path string) (Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &models.ArchiveError{Op: "create tablespace sink", Err: err}
	}
	enc, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, &models.ArchiveError{Op: "create zstd encoder", Err: err}
	}
	return &fileSink{file: file, compressor: enc}, nil
}

func (s *fileSink) Write(data []byte) (int, error) {
	n, err := s.compressor.Write(data)
	if err != nil {
		return n, &models.ArchiveError{Op: "write tablespace chunk", Err: err}
	}
	return n, nil
}

func (s *fileSink) WriteChunk(data []byte) (int, error) {
	return s.Write(data)
}

func (s *fileSink) Close() error {
	if err := s.compressor.Close(); err != nil {
		s.file.Close()
		return &models.ArchiveError{Op: "finish tablespace sink", Err: err}
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return &models.ArchiveError{Op: "sync tablespace sink", Err: err}
	}
	if err := s.file.Close(); err != nil {
		return &models.ArchiveError{Op: "close tablespace sink", Err: err}
	}
	return nil
}

// ringSink writes uncompressed tar data through the vectored I/O
// ring, one full buffer per submission.
type ringSink struct {
	file   *os.File
	ring   *ioring.Ring
	buffer *ioring.VectoredBuffer
	offset int64
}

func newRingSink(logger zerolog.Logger, path string) (Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &models.ArchiveError{Op: "create tablespace sink", Err: err}
	}

	ring := ioring.New(logger, 0, 0)
	if err := ring.Setup(file); err != nil {
		file.Close()
		return nil, err
	}
	buffer, err := ring.AllocBuffer()
	if err != nil {
		ring.Exit()
		file.Close()
		return nil, err
	}
	return &ringSink{file: file, ring: ring, buffer: buffer}, nil
}

func (s *ringSink) Write(data []byte) (int, error) {
	total := 0
	for len(data) > 0 {
		n := s.buffer.Write(data)
		data = data[n:]
		total += n
		if s.buffer.Full() {
			if err := s.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (s *ringSink) WriteChunk(data []byte) (int, error) {
	return s.Write(data)
}

func (s *ringSink) flush() error {
	size := s.buffer.EffectiveSize()
	if size == 0 {
		return nil
	}
	if err := s.ring.Write(s.buffer, s.offset); err != nil {
		return err
	}
	if _, err := s.ring.HandleCurrentIO(); err != nil {
		return err
	}
	s.offset += int64(size)
	s.buffer.Reset()
	return nil
}

func (s *ringSink) Close() error {
	flushErr := s.flush()
	s.ring.Exit()
	if flushErr != nil {
		s.file.Close()
		return flushErr
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return &models.ArchiveError{Op: "sync tablespace sink", Err: err}
	}
	if err := s.file.Close(); err != nil {
		return &models.ArchiveError{Op: "close tablespace sink", Err: err}
	}
	return nil
}
