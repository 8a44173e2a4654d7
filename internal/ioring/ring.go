package ioring

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/fgeck/pgbackctl/internal/models"
)

// Op identifies the I/O operation of a request.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// CQE is a completion event. Result holds the number of bytes
// transferred when Err is nil.
type CQE struct {
	Op     Op
	Buffer *VectoredBuffer
	Result int
	Err    error
}

type request struct {
	op     Op
	buffer *VectoredBuffer
	pos    int64
}

// Ring is a fixed-depth submission/completion queue over one file. A
// dedicated goroutine drains the submission queue and performs the
// vectored reads and writes at absolute offsets; completions are
// delivered in submission order.
type Ring struct {
	logger zerolog.Logger

	queueDepth int
	blockSize  int

	file *os.File
	sq   chan request
	cq   chan *CQE
	done chan struct{}

	mu       sync.Mutex
	inFlight int
}

// New creates an unattached ring with the given geometry. Non-positive
// values select the defaults.
func New(logger zerolog.Logger, queueDepth, blockSize int) *Ring {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Ring{
		logger:     logger,
		queueDepth: queueDepth,
		blockSize:  blockSize,
	}
}

// QueueDepth returns the configured queue depth.
func (r *Ring) QueueDepth() int {
	return r.queueDepth
}

// BlockSize returns the configured block size.
func (r *Ring) BlockSize() int {
	return r.blockSize
}

// Available reports whether the ring is attached to a file.
func (r *Ring) Available() bool {
	return r.file != nil
}

// Setup attaches the ring to the file and starts the submission
// worker. Setting up an attached ring is an error.
func (r *Ring) Setup(file *os.File) error {
	if r.file != nil {
		return models.NewRingError(0, "ring already attached")
	}
	if file == nil {
		return models.NewRingError(0, "ring requires an open file")
	}

	r.file = file
	r.sq = make(chan request, r.queueDepth)
	r.cq = make(chan *CQE, r.queueDepth)
	r.done = make(chan struct{})

	go r.run()

	r.logger.Debug().
		Int("queue_depth", r.queueDepth).
		Int("block_size", r.blockSize).
		Str("file", file.Name()).
		Msg("ring attached")
	return nil
}

// Exit detaches the ring. Submitted requests are completed first; the
// file stays open, closing it is the caller's job.
func (r *Ring) Exit() {
	if r.file == nil {
		return
	}
	close(r.sq)
	<-r.done

	r.file = nil
	r.sq = nil
	r.cq = nil
	r.done = nil
	r.mu.Lock()
	r.inFlight = 0
	r.mu.Unlock()
}

// AllocBuffer returns a vectored buffer matching the ring geometry.
func (r *Ring) AllocBuffer() (*VectoredBuffer, error) {
	return NewVectoredBuffer(r.queueDepth, r.blockSize)
}

// Read submits a vectored read of the buffer's effective size at the
// absolute position.
func (r *Ring) Read(buf *VectoredBuffer, pos int64) error {
	return r.submit(OpRead, buf, pos)
}

// Write submits a vectored write of the buffer's effective size at the
// absolute position.
func (r *Ring) Write(buf *VectoredBuffer, pos int64) error {
	return r.submit(OpWrite, buf, pos)
}

func (r *Ring) submit(op Op, buf *VectoredBuffer, pos int64) error {
	if r.file == nil {
		return models.NewRingError(0, "ring not attached")
	}
	if buf == nil {
		return models.NewRingError(0, "nil buffer submitted")
	}
	if buf.NumBlocks() > r.queueDepth {
		return models.NewRingError(0, "vector length %d exceeds queue depth %d",
			buf.NumBlocks(), r.queueDepth)
	}
	if buf.BlockSize() != r.blockSize {
		return models.NewRingError(0, "buffer block size %d does not match ring block size %d",
			buf.BlockSize(), r.blockSize)
	}
	if pos < 0 {
		return models.NewRingError(0, "negative file position %d", pos)
	}

	r.mu.Lock()
	if r.inFlight >= r.queueDepth {
		r.mu.Unlock()
		return models.NewRingError(int(unix.EBUSY), "submission queue full")
	}
	r.inFlight++
	r.mu.Unlock()

	if err := buf.SetFileOffset(pos); err != nil {
		r.seen()
		return err
	}
	r.sq <- request{op: op, buffer: buf, pos: pos}
	return nil
}

// Wait blocks until the next completion event.
func (r *Ring) Wait() (*CQE, error) {
	if r.cq == nil {
		return nil, models.NewRingError(0, "ring not attached")
	}
	cqe, ok := <-r.cq
	if !ok {
		return nil, models.NewRingError(0, "ring shut down")
	}
	return cqe, nil
}

// Seen marks a completion event as consumed, freeing its queue slot.
func (r *Ring) Seen(*CQE) {
	r.seen()
}

func (r *Ring) seen() {
	r.mu.Lock()
	if r.inFlight > 0 {
		r.inFlight--
	}
	r.mu.Unlock()
}

// HandleCurrentIO waits for the next completion, verifies it
// transferred the full effective size and releases its slot.
func (r *Ring) HandleCurrentIO() (*CQE, error) {
	cqe, err := r.Wait()
	if err != nil {
		return nil, err
	}
	defer r.Seen(cqe)

	if cqe.Err != nil {
		return cqe, cqe.Err
	}
	if cqe.Result != cqe.Buffer.EffectiveSize() {
		return cqe, models.NewRingError(int(unix.EIO), "short %s: %d of %d bytes",
			opString(cqe.Op), cqe.Result, cqe.Buffer.EffectiveSize())
	}
	return cqe, nil
}

func (r *Ring) run() {
	defer close(r.done)
	defer close(r.cq)

	fd := int(r.file.Fd())
	for req := range r.sq {
		iovs := req.buffer.iovecs()
		var (
			n   int
			err error
		)
		switch req.op {
		case OpRead:
			n, err = unix.Preadv(fd, iovs, req.pos)
		case OpWrite:
			n, err = unix.Pwritev(fd, iovs, req.pos)
		}

		cqe := &CQE{Op: req.op, Buffer: req.buffer, Result: n}
		if err != nil {
			cqe.Err = models.NewRingError(errnoOf(err), "%s at offset %d failed",
				opString(req.op), req.pos)
		}
		r.cq <- cqe
	}
}

func opString(op Op) string {
	if op == OpWrite {
		return "write"
	}
	return "read"
}

func errnoOf(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
