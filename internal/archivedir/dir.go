// Package archivedir manages the on-disk layout of a backup archive:
// the archive root with its marker file, per-backup subdirectories and
// the compressed tablespace sinks the base backup stream is written
// into.
package archivedir

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/models"
)

// MagicFile marks a directory as a managed backup archive.
const MagicFile = "PG_BACKUP_CTL_MAGIC"

// magicContent guards against foreign files of the same name.
const magicContent = "pg_backup_ctl archive directory\n"

// Archive root substructure.
const (
	baseSubDir = "base"
	logSubDir  = "log"
)

// ArchiveDir is a handle to one archive root directory.
type ArchiveDir struct {
	logger zerolog.Logger
	path   string
}

// New returns a handle for the archive rooted at path.
func New(logger zerolog.Logger, path string) *ArchiveDir {
	return &ArchiveDir{logger: logger, path: path}
}

// Path returns the archive root.
func (a *ArchiveDir) Path() string {
	return a.path
}

// BasePath returns the directory holding base backups.
func (a *ArchiveDir) BasePath() string {
	return filepath.Join(a.path, baseSubDir)
}

// LogPath returns the directory holding archived WAL.
func (a *ArchiveDir) LogPath() string {
	return filepath.Join(a.path, logSubDir)
}

// Exists reports whether the archive root directory is present.
func (a *ArchiveDir) Exists() bool {
	info, err := os.Stat(a.path)
	return err == nil && info.IsDir()
}

// Initialize creates the archive substructure and the marker file.
// Initializing an already initialized archive is a no-op.
func (a *ArchiveDir) Initialize() error {
	for _, dir := range []string{a.path, a.BasePath(), a.LogPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.ArchiveError{Op: "create archive directory " + dir, Err: err}
		}
	}

	magic := filepath.Join(a.path, MagicFile)
	if _, err := os.Stat(magic); err == nil {
		return a.Verify()
	}
	if err := os.WriteFile(magic, []byte(magicContent), 0o644); err != nil {
		return &models.ArchiveError{Op: "write archive marker", Err: err}
	}
	if err := fsyncDir(a.path); err != nil {
		return err
	}

	a.logger.Info().Str("path", a.path).Msg("archive directory initialized")
	return nil
}

// Verify checks the archive structure: root, base and log directories
// and the marker file content.
func (a *ArchiveDir) Verify() error {
	for _, dir := range []string{a.path, a.BasePath(), a.LogPath()} {
		info, err := os.Stat(dir)
		if err != nil {
			return &models.ArchiveError{Op: "verify archive directory " + dir, Err: err}
		}
		if !info.IsDir() {
			return models.NewArchiveError("%s is not a directory", dir)
		}
	}

	content, err := os.ReadFile(filepath.Join(a.path, MagicFile))
	if err != nil {
		return &models.ArchiveError{Op: "read archive marker", Err: err}
	}
	if strings.TrimSpace(string(content)) != strings.TrimSpace(magicContent) {
		return models.NewArchiveError("%s does not look like a managed archive", a.path)
	}
	return nil
}

// RemoveBackup deletes one backup subdirectory identified by its
// catalog fsentry. Entries outside the archive base directory are
// refused.
func (a *ArchiveDir) RemoveBackup(fsentry string) error {
	if fsentry == "" {
		return models.NewArchiveError("empty backup directory entry")
	}
	full := filepath.Join(a.BasePath(), filepath.Base(fsentry))
	if err := os.RemoveAll(full); err != nil {
		return &models.ArchiveError{Op: "remove backup directory " + full, Err: err}
	}
	a.logger.Info().Str("path", full).Msg("backup directory removed")
	return nil
}

func fsyncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return &models.ArchiveError{Op: "open directory for sync", Err: err}
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return &models.ArchiveError{Op: "sync directory " + path, Err: err}
	}
	return nil
}
