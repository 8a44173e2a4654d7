package stream

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/fgeck/pgbackctl/internal/models"
)

// StartBasebackup issues BASE_BACKUP and consumes the first two result
// sets of the conversation: start position and tablespace list. The
// per-tablespace data streams follow via NextTablespace.
func (s *Impl) StartBasebackup(ctx context.Context, opts BasebackupOptions) (*BasebackupStarted, error) {
	if s.conn == nil {
		return nil, models.NewStreamError("stream not connected")
	}

	cmd := basebackupCommand(opts)
	s.logger.Debug().Str("command", cmd).Msg("starting base backup")

	s.conn.Frontend().Send(&pgproto3.Query{String: cmd})
	if err := s.conn.Frontend().Flush(); err != nil {
		return nil, &models.StreamError{Op: "send BASE_BACKUP", Err: err}
	}

	started := &BasebackupStarted{}

	// First result set: start WAL position and timeline.
	rows, err := s.readRowSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 || len(rows[0]) < 2 {
		return nil, models.NewStreamError("unexpected BASE_BACKUP start result shape")
	}
	lsn, err := pglogrepl.ParseLSN(string(rows[0][0]))
	if err != nil {
		return nil, models.NewStreamError("invalid start position %q", rows[0][0])
	}
	tli, err := strconv.ParseInt(string(rows[0][1]), 10, 32)
	if err != nil {
		return nil, models.NewStreamError("invalid timeline %q", rows[0][1])
	}
	started.XlogPos = lsn
	started.Timeline = int32(tli)

	// Second result set: one row per tablespace.
	rows, err = s.readRowSet(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) < 3 {
			return nil, models.NewStreamError("unexpected tablespace result shape")
		}
		spc := models.NewBackupTablespaceDescr()
		if len(row[0]) > 0 {
			oid, err := strconv.ParseUint(string(row[0]), 10, 32)
			if err != nil {
				return nil, models.NewStreamError("invalid tablespace oid %q", row[0])
			}
			spc.SpcOID = uint32(oid)
		}
		spc.SpcLocation = string(row[1])
		if len(row[2]) > 0 {
			size, err := strconv.ParseInt(string(row[2]), 10, 64)
			if err != nil {
				return nil, models.NewStreamError("invalid tablespace size %q", row[2])
			}
			spc.SpcSize = size
		}
		started.Tablespaces = append(started.Tablespaces, spc)
	}

	s.logger.Info().
		Str("xlogpos", started.XlogPos.String()).
		Int32("timeline", started.Timeline).
		Int("tablespaces", len(started.Tablespaces)).
		Msg("base backup started")
	return started, nil
}

// NextTablespace positions the stream on the next tablespace data
// stream. The returned reader yields the raw tar payload and must be
// drained before the next call. ok is false once all tablespaces were
// streamed.
func (s *Impl) NextTablespace(ctx context.Context) (io.Reader, bool, error) {
	if s.conn == nil {
		return nil, false, models.NewStreamError("stream not connected")
	}

	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return nil, false, err
		}
		switch m := msg.(type) {
		case *pgproto3.CopyOutResponse:
			return &copyReader{stream: s, ctx: ctx}, true, nil
		case *pgproto3.RowDescription:
			// The final result set begins, hand it to EndBasebackup.
			s.pending = m
			return nil, false, nil
		case *pgproto3.CommandComplete, *pgproto3.NoticeResponse:
			// Skip.
		case *pgproto3.ErrorResponse:
			return nil, false, serverError(m)
		default:
			return nil, false, models.NewStreamError("unexpected message %T in tablespace stream", msg)
		}
	}
}

// EndBasebackup consumes the final result set of the conversation and
// returns the backup's end position.
func (s *Impl) EndBasebackup(ctx context.Context) (pglogrepl.LSN, int32, error) {
	if s.conn == nil {
		return 0, 0, models.NewStreamError("stream not connected")
	}

	rows, err := s.readRowSet(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(rows) != 1 || len(rows[0]) < 2 {
		return 0, 0, models.NewStreamError("unexpected BASE_BACKUP end result shape")
	}
	lsn, err := pglogrepl.ParseLSN(string(rows[0][0]))
	if err != nil {
		return 0, 0, models.NewStreamError("invalid end position %q", rows[0][0])
	}
	tli, err := strconv.ParseInt(string(rows[0][1]), 10, 32)
	if err != nil {
		return 0, 0, models.NewStreamError("invalid timeline %q", rows[0][1])
	}

	// Drain until the connection returns to idle.
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return 0, 0, err
		}
		switch m := msg.(type) {
		case *pgproto3.ReadyForQuery:
			s.logger.Info().Str("xlogposend", lsn.String()).Msg("base backup stream finished")
			return lsn, int32(tli), nil
		case *pgproto3.ErrorResponse:
			return 0, 0, serverError(m)
		}
	}
}

// readRowSet reads one RowDescription followed by its DataRows up to
// the closing CommandComplete.
func (s *Impl) readRowSet(ctx context.Context) ([][][]byte, error) {
	var rows [][][]byte
	seenDescription := false
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			seenDescription = true
		case *pgproto3.DataRow:
			values := make([][]byte, len(m.Values))
			for i, v := range m.Values {
				values[i] = append([]byte(nil), v...)
			}
			rows = append(rows, values)
		case *pgproto3.CommandComplete:
			if seenDescription {
				return rows, nil
			}
		case *pgproto3.NoticeResponse:
			// Skip.
		case *pgproto3.ErrorResponse:
			return nil, serverError(m)
		default:
			return nil, models.NewStreamError("unexpected message %T in result set", msg)
		}
	}
}

func (s *Impl) receive(ctx context.Context) (pgproto3.BackendMessage, error) {
	if s.pending != nil {
		msg := s.pending
		s.pending = nil
		return msg, nil
	}
	msg, err := s.conn.ReceiveMessage(ctx)
	if err != nil {
		return nil, &models.StreamError{Op: "receive replication message", Err: err}
	}
	return msg, nil
}

// copyReader exposes one tablespace CopyOut stream as an io.Reader.
type copyReader struct {
	stream *Impl
	ctx    context.Context

	buf  []byte
	done bool
}

func (r *copyReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.done {
			return 0, io.EOF
		}
		msg, err := r.stream.receive(r.ctx)
		if err != nil {
			return 0, err
		}
		switch m := msg.(type) {
		case *pgproto3.CopyData:
			r.buf = append(r.buf, m.Data...)
		case *pgproto3.CopyDone:
			r.done = true
		case *pgproto3.ErrorResponse:
			return 0, serverError(m)
		default:
			return 0, models.NewStreamError("unexpected message %T in copy stream", msg)
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func basebackupCommand(opts BasebackupOptions) string {
	var b strings.Builder
	b.WriteString("BASE_BACKUP")
	if opts.Label != "" {
		b.WriteString(fmt.Sprintf(" LABEL '%s'", strings.ReplaceAll(opts.Label, "'", "''")))
	}
	if opts.FastCheckpoint {
		b.WriteString(" FAST")
	}
	if opts.IncludeWAL {
		b.WriteString(" WAL")
	}
	if !opts.WaitForWAL {
		b.WriteString(" NOWAIT")
	}
	if opts.MaxRate > 0 {
		b.WriteString(fmt.Sprintf(" MAX_RATE %d", opts.MaxRate))
	}
	if opts.NoVerifyChecksums {
		b.WriteString(" NOVERIFY_CHECKSUMS")
	}
	return b.String()
}

func serverError(m *pgproto3.ErrorResponse) error {
	return models.NewStreamError("server error %s: %s", m.Code, m.Message)
}
