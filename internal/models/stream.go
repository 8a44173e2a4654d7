package models

import (
	"github.com/google/uuid"
	"github.com/jackc/pglogrepl"
)

// Stream progress states.
const (
	StreamProgressIdentified = "IDENTIFIED"
	StreamProgressStreaming  = "STREAMING"
	StreamProgressShutdown   = "SHUTDOWN"
	StreamProgressFailed     = "FAILED"
)

// StreamIdentification describes an identified replication
// connection. Filled by the stream's identify step and consumed by the
// base backup orchestrator.
type StreamIdentification struct {
	AttributeSet

	// RunID tags one streaming session for log correlation.
	RunID uuid.UUID

	ArchiveID   int64
	SlotName    string
	SystemID    string
	Timeline    int32
	XlogPos     string
	DBName      string
	Status      string
	CreateDate  string
	ArchiveName string

	// WALSegmentSize transports the server's configured segment size,
	// negotiated at connect time.
	WALSegmentSize uint64
}

// NewStreamIdentification returns an identification with a fresh run
// id and the sentinel archive id.
func NewStreamIdentification() *StreamIdentification {
	return &StreamIdentification{
		RunID:     uuid.New(),
		ArchiveID: -1,
	}
}

// XlogPosDecoded parses the textual WAL position into an LSN.
func (si *StreamIdentification) XlogPosDecoded() (pglogrepl.LSN, error) {
	lsn, err := pglogrepl.ParseLSN(si.XlogPos)
	if err != nil {
		return 0, NewStreamError("invalid xlog position %q", si.XlogPos)
	}
	return lsn, nil
}
