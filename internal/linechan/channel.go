package linechan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from the reader process.
	maxStderrBytes = 64 * 1024

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// Channel owns one reader subprocess: its stdin for directives, its stdout as
// a line stream, and its lifecycle.
type Channel struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	lines  *LineReader
	stderr *cappedBuffer

	writeMu     sync.Mutex
	inputClosed bool

	exited  chan struct{}
	waitErr error

	logger *slog.Logger
}

// Spawn starts path with args, piping stdin and stdout.
func Spawn(path string, args ...string) (*Channel, error) {
	// Not CommandContext: termination is managed by Terminate.
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %w", protocol.ErrSpawn, err)
	}

	// A plain os.Pipe rather than StdoutPipe so that Wait never races with
	// the line reader over the read end.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: create stdout pipe: %w", protocol.ErrSpawn, err)
	}
	cmd.Stdout = pw

	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: %s: %w", protocol.ErrSpawn, path, err)
	}
	// The child holds its own copy of the write end; ours must go so EOF
	// arrives when the child exits.
	_ = pw.Close()

	c := &Channel{
		path:   path,
		cmd:    cmd,
		stdin:  stdin,
		stdout: pr,
		lines:  NewLineReader(pr),
		stderr: stderr,
		exited: make(chan struct{}),
		logger: log.WithComponent("linechan").With("pid", cmd.Process.Pid),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	c.logger.Debug("spawned reader process", "path", path, "args", args)
	return c, nil
}

// WriteLine writes text followed by a newline. Concurrent calls never
// interleave their bytes.
func (c *Channel) WriteLine(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.inputClosed {
		return fmt.Errorf("%w: input closed", protocol.ErrWrite)
	}
	if _, err := io.WriteString(c.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrWrite, err)
	}
	c.logger.Debug("send line", "line", text)
	return nil
}

// ReadLine returns the next line from the process's stdout, or io.EOF once
// the process has closed it.
func (c *Channel) ReadLine() (string, error) {
	line, err := c.lines.ReadLine()
	if err != nil {
		return "", err
	}
	c.logger.Debug("received line", "line", line)
	return line, nil
}

// CloseInput closes the process's stdin. Later writes fail with ErrWrite.
func (c *Channel) CloseInput() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.inputClosed {
		return nil
	}
	c.inputClosed = true
	return c.stdin.Close()
}

// Terminate sends SIGTERM and, if the process is still alive after grace,
// SIGKILL. It returns once the process has exited.
func (c *Channel) Terminate(grace time.Duration) error {
	select {
	case <-c.exited:
		return nil
	default:
	}

	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	c.logger.Info("terminating reader process")
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Error("failed to send SIGTERM", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.exited:
		return nil
	case <-timer.C:
		c.logger.Warn("reader did not exit after SIGTERM, sending SIGKILL")
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill reader process: %w", err)
		}
		<-c.exited
		return nil
	}
}

// Wait blocks until the process exits and returns its exit code, which is
// -1 when the process was killed by a signal.
func (c *Channel) Wait(ctx context.Context) (int, error) {
	select {
	case <-c.exited:
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if c.waitErr != nil && !errors.As(c.waitErr, &exitErr) {
		c.logger.Warn("wait for reader process", "error", c.waitErr)
	}
	return c.cmd.ProcessState.ExitCode(), nil
}

// Exited is closed once the process has exited.
func (c *Channel) Exited() <-chan struct{} {
	return c.exited
}

// Pid returns the process id.
func (c *Channel) Pid() int {
	return c.cmd.Process.Pid
}

// Path returns the executable path.
func (c *Channel) Path() string {
	return c.path
}

// Stderr returns the captured stderr, truncated to 64 KiB.
func (c *Channel) Stderr() string {
	return c.stderr.String()
}

// Close releases the read end of stdout, unblocking any pending ReadLine.
func (c *Channel) Close() error {
	return c.stdout.Close()
}

type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	// Report the full length so the copy goroutine keeps draining the pipe.
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
