// Package stream implements the client side of the PostgreSQL
// streaming replication protocol used for base backups: connect,
// IDENTIFY_SYSTEM and the BASE_BACKUP conversation.
package stream

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/models"
)

// BasebackupOptions parameterize one BASE_BACKUP run. They are
// derived from a backup profile.
type BasebackupOptions struct {
	Label             string
	FastCheckpoint    bool
	IncludeWAL        bool
	WaitForWAL        bool
	MaxRate           uint
	NoVerifyChecksums bool
}

// BasebackupStarted carries the server's answer to BASE_BACKUP: the
// start position and the tablespaces that will be streamed, in wire
// order.
type BasebackupStarted struct {
	XlogPos     pglogrepl.LSN
	Timeline    int32
	Tablespaces []*models.BackupTablespaceDescr
}

// Service defines the replication stream operations the base backup
// orchestrator depends on.
type Service interface {
	Connect(ctx context.Context, conn *models.ConnectionDescr) error
	Identify(ctx context.Context) (*models.StreamIdentification, error)
	StartBasebackup(ctx context.Context, opts BasebackupOptions) (*BasebackupStarted, error)
	NextTablespace(ctx context.Context) (io.Reader, bool, error)
	EndBasebackup(ctx context.Context) (pglogrepl.LSN, int32, error)
	Disconnect(ctx context.Context) error
}

// Impl implements Service on a pgconn replication connection.
type Impl struct {
	logger zerolog.Logger

	conn *pgconn.PgConn

	// pending buffers one backend message read ahead of its consumer
	// while walking the BASE_BACKUP result sets.
	pending pgproto3.BackendMessage
}

// New creates a replication stream service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Connect establishes the replication connection described by the
// connection descriptor.
func (s *Impl) Connect(ctx context.Context, conn *models.ConnectionDescr) error {
	if s.conn != nil {
		return models.NewStreamError("stream already connected")
	}

	dsn := conn.DSN
	if dsn == "" {
		parts := []string{}
		if conn.PGHost != "" {
			parts = append(parts, "host="+conn.PGHost)
		}
		if conn.PGPort > 0 {
			parts = append(parts, fmt.Sprintf("port=%d", conn.PGPort))
		}
		if conn.PGUser != "" {
			parts = append(parts, "user="+conn.PGUser)
		}
		if conn.PGDatabase != "" {
			parts = append(parts, "dbname="+conn.PGDatabase)
		}
		dsn = strings.Join(parts, " ")
	}
	if !strings.Contains(dsn, "replication=") {
		dsn += " replication=database"
	}

	pgc, err := pgconn.Connect(ctx, dsn)
	if err != nil {
		return &models.StreamError{Op: "connect replication stream", Err: err}
	}
	s.conn = pgc

	s.logger.Info().
		Str("host", conn.PGHost).
		Int("port", conn.PGPort).
		Msg("replication connection established")
	return nil
}

// Disconnect closes the replication connection.
func (s *Impl) Disconnect(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	s.pending = nil
	if err != nil {
		return &models.StreamError{Op: "close replication stream", Err: err}
	}
	return nil
}

// Identify runs IDENTIFY_SYSTEM and negotiates the server's WAL
// segment size.
func (s *Impl) Identify(ctx context.Context) (*models.StreamIdentification, error) {
	if s.conn == nil {
		return nil, models.NewStreamError("stream not connected")
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, s.conn)
	if err != nil {
		return nil, &models.StreamError{Op: "identify system", Err: err}
	}

	segSize, err := s.walSegmentSize(ctx)
	if err != nil {
		return nil, err
	}

	ident := models.NewStreamIdentification()
	ident.SystemID = sysident.SystemID
	ident.Timeline = sysident.Timeline
	ident.XlogPos = sysident.XLogPos.String()
	ident.DBName = sysident.DBName
	ident.Status = models.StreamProgressIdentified
	ident.WALSegmentSize = segSize

	s.logger.Info().
		Str("systemid", ident.SystemID).
		Int32("timeline", ident.Timeline).
		Str("xlogpos", ident.XlogPos).
		Uint64("wal_segment_size", segSize).
		Msg("replication stream identified")
	return ident, nil
}

func (s *Impl) walSegmentSize(ctx context.Context) (uint64, error) {
	result, err := s.conn.Exec(ctx, "SHOW wal_segment_size").ReadAll()
	if err != nil || len(result) == 0 || result[0].Err != nil || len(result[0].Rows) == 0 {
		return 0, models.NewStreamError("cannot read wal_segment_size")
	}
	return parseWALSegmentSize(string(result[0].Rows[0][0]))
}

func parseWALSegmentSize(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	unit := uint64(1)
	switch {
	case strings.HasSuffix(value, "GB"):
		unit = 1 << 30
		value = strings.TrimSuffix(value, "GB")
	case strings.HasSuffix(value, "MB"):
		unit = 1 << 20
		value = strings.TrimSuffix(value, "MB")
	case strings.HasSuffix(value, "kB"):
		unit = 1 << 10
		value = strings.TrimSuffix(value, "kB")
	case strings.HasSuffix(value, "B"):
		value = strings.TrimSuffix(value, "B")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, models.NewStreamError("invalid wal_segment_size %q", value)
	}
	return n * unit, nil
}
