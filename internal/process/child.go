package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a child process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// defaultGracefulTimeout is used when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 10 * time.Second

// ErrAlreadyStarted is returned when Start is called twice on the same Child.
var ErrAlreadyStarted = errors.New("process already started")

// Config holds configuration for a child process.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the parent's environment.
	Env []string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for child processes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Child is a single spawn of an external program.
type Child struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	exitErr       error
	stopRequested bool

	done chan struct{}
}

// NewChild creates a child process with the given configuration.
// Nothing is spawned until Start is called.
func NewChild(cfg Config) *Child {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Child{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the child.
func (c *Child) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Start spawns the process. The context only gates the spawn itself; the
// process outlives it and is ended with Stop.
func (c *Child) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("starting %s: %w", c.config.Name, err)
	}

	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", c.config.Name, ErrAlreadyStarted)
	}

	c.logger.Info("starting process",
		"name", c.config.Name,
		"binary", c.config.Binary,
		"args", c.config.Args,
	)

	cmd := exec.Command(c.config.Binary, c.config.Args...) //nolint:gosec // Binary comes from operator configuration or a fixed search list

	// Own process group so Stop can signal the whole tree
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if c.config.Env != nil {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("starting %s: %w", c.config.Name, err)
	}

	c.cmd = cmd
	c.status = StatusRunning
	c.mu.Unlock()

	// Both pipes must be drained before Wait is called
	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		c.captureOutput("stdout", stdout)
	}()
	go func() {
		defer pipes.Done()
		c.captureOutput("stderr", stderr)
	}()

	go c.wait(cmd, &pipes)

	c.logger.Info("process started",
		"name", c.config.Name,
		"pid", cmd.Process.Pid,
	)

	return nil
}

// wait reaps the process and records how it ended.
func (c *Child) wait(cmd *exec.Cmd, pipes *sync.WaitGroup) {
	pipes.Wait()
	err := cmd.Wait()

	c.mu.Lock()
	stopRequested := c.stopRequested
	c.status = StatusExited
	if !stopRequested {
		c.exitErr = err
	}
	c.mu.Unlock()

	if stopRequested {
		c.logger.Info("process stopped as requested", "name", c.config.Name)
	} else {
		c.logger.Warn("process exited", "name", c.config.Name, "error", err)
	}

	close(c.done)
}

// captureOutput reads from the given reader and logs each chunk.
func (c *Child) captureOutput(stream string, r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.logger.Debug("process output",
				"name", c.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("output stream closed",
					"name", c.config.Name,
					"stream", stream,
				)
			}
			return
		}
	}
}

// Stop terminates the process group. It sends SIGTERM, waits up to the
// graceful timeout, then sends SIGKILL. Stopping a child that was never
// started or has already exited is a no-op.
func (c *Child) Stop() error {
	c.mu.Lock()
	if c.cmd == nil || c.status != StatusRunning {
		c.mu.Unlock()
		return nil
	}
	c.stopRequested = true
	pid := c.cmd.Process.Pid
	c.mu.Unlock()

	c.logger.Info("stopping process", "name", c.config.Name, "pid", pid)

	// Negative PID signals the process group created via Setpgid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			c.logger.Warn("failed to send SIGTERM to process group", "name", c.config.Name, "error", err)
		}
	}

	select {
	case <-c.done:
		c.logger.Info("process stopped gracefully", "name", c.config.Name)
		return nil
	case <-time.After(c.config.GracefulTimeout):
		c.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", c.config.Name,
			"timeout", c.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", c.config.Name, err)
		}
	}

	<-c.done
	c.logger.Info("process killed", "name", c.config.Name)

	return nil
}

// Done returns a channel that is closed when the process exits.
// It never closes for a child that was not started.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Exited reports whether the process has exited.
func (c *Child) Exited() bool {
	return c.Status() == StatusExited
}

// Status returns the current status of the child.
func (c *Child) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ExitError returns the error the process exited with, if it exited on
// its own. A requested stop leaves it nil.
func (c *Child) ExitError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitErr
}

// PID returns the process ID, or 0 if not started.
func (c *Child) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}
