// Package launcher starts background worker processes. A worker is
// the running binary re-executed with a worker command line, optionally
// detached into its own session so it survives the parent.
package launcher

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/fgeck/pgbackctl/internal/models"
)

// JobInfo describes one worker process to launch. Args is the argument
// vector passed to the re-executed binary; the worker builds its own
// catalog handle from it.
type JobInfo struct {
	Detach     bool
	CloseStdFd bool
	Args       []string
	Env        []string // appended to the parent environment
}

// Service launches worker processes.
type Service interface {
	Launch(job JobInfo) (int, error)
}

// Impl implements Service by re-executing the current binary.
type Impl struct {
	logger     zerolog.Logger
	executable func() (string, error)
}

// New creates a launcher service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger, executable: os.Executable}
}

// NewWithExecutable creates a launcher resolving the binary through a
// custom lookup (for testing).
func NewWithExecutable(logger zerolog.Logger, executable func() (string, error)) *Impl {
	return &Impl{logger: logger, executable: executable}
}

// Launch starts the worker and returns its process id. The child is
// reaped in the background; a failing worker logs and exits non-zero
// on its own, errors never cross the process boundary.
func (l *Impl) Launch(job JobInfo) (int, error) {
	exe, err := l.executable()
	if err != nil {
		return -1, models.NewArchiveError("resolve worker binary: %v", err)
	}

	cmd := exec.Command(exe, job.Args...)
	cmd.Env = append(os.Environ(), job.Env...)

	if !job.CloseStdFd {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if job.Detach {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		return -1, models.NewArchiveError("launch worker: %v", err)
	}
	pid := cmd.Process.Pid

	go func() {
		err := cmd.Wait()
		l.logger.Debug().Int("pid", pid).Err(err).Msg("worker exited")
	}()

	l.logger.Info().
		Int("pid", pid).
		Bool("detach", job.Detach).
		Strs("args", job.Args).
		Msg("worker launched")
	return pid, nil
}
