package models

import (
	"fmt"
	"strings"
)

// Base backup status values as stored in the catalog.
const (
	BackupStatusInProgress = "in progress"
	BackupStatusReady      = "ready"
	BackupStatusAborted    = "aborted"
)

// BackupTablespaceDescr references tablespace meta information of a
// base backup.
type BackupTablespaceDescr struct {
	AttributeSet

	ID          int64
	BackupID    int64
	SpcOID      uint32
	SpcLocation string
	SpcSize     int64
}

// NewBackupTablespaceDescr returns a tablespace descriptor with
// sentinel ids.
func NewBackupTablespaceDescr() *BackupTablespaceDescr {
	return &BackupTablespaceDescr{ID: -1, BackupID: -1}
}

// BaseBackupDescr is the catalog entry for a running or finalized
// base backup.
type BaseBackupDescr struct {
	AttributeSet

	ID             int64
	ArchiveID      int64
	XlogPos        string
	XlogPosEnd     string
	Timeline       int32
	Label          string
	FSEntry        string
	Started        string
	Stopped        string
	Pinned         int
	Status         string
	SystemID       string
	WALSegmentSize uint64
	UsedProfile    int64

	// Runtime settings without catalog representation.
	ElectedForDeletion bool

	// Computed by SQL during listing.
	ExceedsRetentionRule bool
	Duration             string

	Tablespaces []*BackupTablespaceDescr
}

// NewBaseBackupDescr returns a base backup descriptor with sentinel
// ids and status "in progress".
func NewBaseBackupDescr() *BaseBackupDescr {
	return &BaseBackupDescr{
		ID:          -1,
		ArchiveID:   -1,
		Status:      BackupStatusInProgress,
		UsedProfile: -1,
		Duration:    "N/A",
	}
}

// StatCatalog yields formatted aggregate statistics of a catalog
// entity.
type StatCatalog interface {
	FormattedString() string
}

// StatCatalogArchive provides stat data for one archive.
type StatCatalogArchive struct {
	ArchiveID          int64
	NumberOfBackups    int
	BackupsFailed      int
	BackupsRunning     int
	ArchiveName        string
	ArchiveDirectory   string
	ArchiveHost        string
	EstimatedTotalSize uint64
	AvgBackupDuration  uint64
	LatestFinished     string

	Backups []*BaseBackupDescr
}

// FormattedString renders the archive statistics as a fixed-width
// report suitable for terminal output.
func (s *StatCatalogArchive) FormattedString() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Catalog status for archive %q\n", s.ArchiveName)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 80))
	fmt.Fprintf(&b, "%-25s\t%s\n", "DIRECTORY", s.ArchiveDirectory)
	fmt.Fprintf(&b, "%-25s\t%s\n", "PGHOST", s.ArchiveHost)
	fmt.Fprintf(&b, "%-25s\t%d\n", "BACKUPS", s.NumberOfBackups)
	fmt.Fprintf(&b, "%-25s\t%d\n", "FAILED", s.BackupsFailed)
	fmt.Fprintf(&b, "%-25s\t%d\n", "RUNNING", s.BackupsRunning)
	fmt.Fprintf(&b, "%-25s\t%s\n", "ESTIMATED SIZE", prettySize(s.EstimatedTotalSize))
	fmt.Fprintf(&b, "%-25s\t%ds\n", "AVG DURATION", s.AvgBackupDuration)
	fmt.Fprintf(&b, "%-25s\t%s\n", "LATEST FINISHED", s.LatestFinished)

	if len(s.Backups) > 0 {
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 80))
		fmt.Fprintf(&b, "%-6s\t%-28s\t%-12s\t%-8s\t%s\n",
			"ID", "LABEL", "STATUS", "PINNED", "STOPPED")
		for _, bb := range s.Backups {
			fmt.Fprintf(&b, "%-6d\t%-28s\t%-12s\t%-8d\t%s\n",
				bb.ID, bb.Label, bb.Status, bb.Pinned, bb.Stopped)
		}
	}

	return b.String()
}

func prettySize(size uint64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f kB", float64(size)/float64(1<<10))
	}
	return fmt.Sprintf("%d B", size)
}
