package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewChild_Defaults(t *testing.T) {
	c := NewChild(Config{Binary: "/usr/bin/test"})

	if c.config.Name != "/usr/bin/test" {
		t.Errorf("Name = %q, want %q", c.config.Name, "/usr/bin/test")
	}
	if c.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", c.config.GracefulTimeout, defaultGracefulTimeout)
	}
}

func TestChild_InitialState(t *testing.T) {
	c := NewChild(Config{Name: "test", Binary: "/bin/true"})

	if c.Status() != StatusStopped {
		t.Errorf("Status() = %v, want %v", c.Status(), StatusStopped)
	}
	if c.Exited() {
		t.Error("Exited() = true, want false")
	}
	if c.PID() != 0 {
		t.Errorf("PID() = %d, want 0", c.PID())
	}
}

func TestChild_StopWhenNotStarted(t *testing.T) {
	c := NewChild(Config{Name: "test", Binary: "/bin/true"})

	if err := c.Stop(); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
}

func TestChild_StartAndStop(t *testing.T) {
	c := NewChild(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if c.Status() != StatusRunning {
		t.Errorf("Status() = %v, want %v", c.Status(), StatusRunning)
	}
	if c.PID() == 0 {
		t.Error("PID() = 0, want non-zero")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if !c.Exited() {
		t.Error("Exited() = false after Stop, want true")
	}
	if c.ExitError() != nil {
		t.Errorf("ExitError() = %v, want nil after requested stop", c.ExitError())
	}
}

func TestChild_StartTwice(t *testing.T) {
	c := NewChild(Config{Name: "test-sleep", Binary: "/bin/sleep", Args: []string{"60"}})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	err := c.Start(context.Background())
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
}

func TestChild_StartWithInvalidBinary(t *testing.T) {
	c := NewChild(Config{Name: "missing", Binary: "/nonexistent/binary"})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for missing binary, got nil")
	}
	if c.Status() != StatusStopped {
		t.Errorf("Status() = %v, want %v", c.Status(), StatusStopped)
	}
}

func TestChild_StartCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewChild(Config{Name: "test", Binary: "/bin/true"})
	if err := c.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want %v", err, context.Canceled)
	}
}

func TestChild_ExitRecorded(t *testing.T) {
	c := NewChild(Config{Name: "test-false", Binary: "/bin/false"})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	if !c.Exited() {
		t.Error("Exited() = false, want true")
	}
	if c.ExitError() == nil {
		t.Error("ExitError() = nil, want non-zero exit error")
	}
	if c.PID() == 0 {
		t.Error("PID() = 0 after exit, want the spawned pid")
	}
}

func TestChild_SetLoggerNil(t *testing.T) {
	c := NewChild(Config{Name: "test", Binary: "/bin/true"})
	c.SetLogger(nil)

	if _, ok := c.logger.(noopLogger); !ok {
		t.Errorf("logger = %T, want noopLogger", c.logger)
	}
}
