package proc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/list"
)

// Runner starts a child process under a PTY and feeds its output lines
// into a list container. The PTY keeps line-buffered programs behaving as
// if they were on a terminal; the runner only captures, it does not
// forward stdin.
type Runner struct {
	target *list.List
	asm    *Assembler
	logger *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	pty      *os.File
	exitCode int
	done     chan struct{}
}

// NewRunner creates a runner appending captured lines to target.
func NewRunner(target *list.List, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		target: target,
		logger: logger,
	}
	r.asm = NewAssembler(func(line string) {
		target.Append(line)
	})
	return r
}

// Start launches the command under a PTY and begins capturing output.
func (r *Runner) Start(command string, args []string, env []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("process already started")
	}

	r.cmd = exec.Command(command, args...)
	if len(env) > 0 {
		r.cmd.Env = env
	}

	ptyFile, err := pty.Start(r.cmd)
	if err != nil {
		r.cmd = nil
		return fmt.Errorf("failed to start PTY: %w", err)
	}
	r.pty = ptyFile
	r.done = make(chan struct{})

	go r.readLoop(ptyFile)

	r.logger.Info("process started",
		zap.String("command", command),
		zap.Int("pid", r.cmd.Process.Pid))
	return nil
}

// readLoop drains the PTY into the assembler. The read fails with EIO once
// the child exits; the buffered tail then becomes the final item.
func (r *Runner) readLoop(ptyFile *os.File) {
	defer close(r.done)

	buf := make([]byte, 4096)
	for {
		n, err := ptyFile.Read(buf)
		if n > 0 {
			r.asm.Feed(buf[:n])
		}
		if err != nil {
			r.asm.Flush()
			return
		}
	}
}

// Wait blocks until the process exits and the capture loop drains.
func (r *Runner) Wait() error {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	r.mu.Unlock()

	if cmd == nil {
		return fmt.Errorf("process not started")
	}

	err := cmd.Wait()
	<-done

	r.mu.Lock()
	if cmd.ProcessState != nil {
		r.exitCode = cmd.ProcessState.ExitCode()
	}
	if r.pty != nil {
		_ = r.pty.Close()
		r.pty = nil
	}
	r.mu.Unlock()

	return err
}

// ExitCode returns the child's exit code after Wait.
func (r *Runner) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// Stop asks the child to terminate, falling back to a kill if the TERM
// signal cannot be delivered.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if err != os.ErrProcessDone {
			return r.cmd.Process.Kill()
		}
	}
	return nil
}
