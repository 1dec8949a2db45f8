package relay

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/privacylion/relay-operator/internal/process"
)

// Strategy names.
const (
	StrategyDocker  = "docker"
	StrategyLocal   = "local"
	StrategySidecar = "sidecar"
)

// relayBinaryName is the executable name of nostr-rs-relay.
const relayBinaryName = "nostr-rs-relay"

// relayLogEnv sets the relay's own log filter.
const relayLogEnv = "RUST_LOG=warn,nostr_rs_relay=info"

// Paths inside the nostr-rs-relay container image.
const (
	containerDBPath     = "/usr/src/app/db"
	containerConfigPath = "/usr/src/app/config.toml"
)

// dockerCommandTimeout bounds the helper docker calls (rm, stop).
const dockerCommandTimeout = 15 * time.Second

// Process is a running relay. process.Child satisfies it.
type Process interface {
	Stop() error
	Done() <-chan struct{}
	Exited() bool
	ExitError() error
	PID() int
}

// LaunchSpec is everything a strategy needs to start the relay.
type LaunchSpec struct {
	Config      Config
	ConfigPath  string
	StopTimeout time.Duration
	Logger      Logger
}

// Strategy is one way of starting the relay.
type Strategy interface {
	Name() string
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Preparer is implemented by strategies that need slow setup, such as
// removing a stale container, before Launch. The launcher runs it without
// holding its state lock.
type Preparer interface {
	Prepare(ctx context.Context, spec LaunchSpec) error
}

// Cleaner is implemented by strategies that leave state behind the process
// handle, such as a named container.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// spawn starts a child process for a strategy.
func spawn(ctx context.Context, spec LaunchSpec, name, binary string, args, env []string) (Process, error) {
	child := process.NewChild(process.Config{
		Name:            name,
		Binary:          binary,
		Args:            args,
		Env:             env,
		GracefulTimeout: spec.StopTimeout,
	})
	if spec.Logger != nil {
		child.SetLogger(spec.Logger)
	}
	if err := child.Start(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}

// DockerStrategy runs the relay image with the data directory and config
// file bind-mounted. The docker client stays attached, so the handle lives
// as long as the container.
type DockerStrategy struct {
	Binary    string
	Image     string
	Container string

	lookPath func(string) (string, error)
	run      func(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// NewDockerStrategy creates a Docker strategy.
func NewDockerStrategy(binary, image, container string) *DockerStrategy {
	if binary == "" {
		binary = "docker"
	}
	return &DockerStrategy{
		Binary:    binary,
		Image:     image,
		Container: container,
		lookPath:  exec.LookPath,
		run: func(ctx context.Context, binary string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec // Fixed docker subcommands
		},
	}
}

// Name returns "docker".
func (d *DockerStrategy) Name() string { return StrategyDocker }

// RunArgs returns the docker run arguments for spec.
func (d *DockerStrategy) RunArgs(spec LaunchSpec) []string {
	port := strconv.Itoa(spec.Config.Port)
	return []string{
		"run",
		"--name", d.Container,
		"-p", port + ":" + port,
		"--mount", fmt.Sprintf("src=%s,target=%s,type=bind", spec.Config.DataDir, containerDBPath),
		"--mount", fmt.Sprintf("src=%s,target=%s,type=bind", spec.ConfigPath, containerConfigPath),
		"--restart", "unless-stopped",
		"--pull", "always",
		d.Image,
	}
}

// Prepare removes any stale container of the same name. A container left
// over from an earlier run would make `docker run --name` fail. An error
// usually just means there was nothing to remove.
func (d *DockerStrategy) Prepare(ctx context.Context, _ LaunchSpec) error {
	binary, err := d.lookPath(d.Binary)
	if err != nil {
		return fmt.Errorf("%w: docker: %w", ErrBinaryNotFound, err)
	}

	ctx, cancel := context.WithTimeout(ctx, dockerCommandTimeout)
	defer cancel()

	if out, err := d.run(ctx, binary, "rm", "-f", d.Container); err != nil {
		return fmt.Errorf("docker rm %s: %w: %s", d.Container, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Launch runs a new relay container.
func (d *DockerStrategy) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	binary, err := d.lookPath(d.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: docker: %w", ErrBinaryNotFound, err)
	}
	return spawn(ctx, spec, "docker:"+d.Container, binary, d.RunArgs(spec), nil)
}

// Cleanup stops the named container. Errors are expected when it is not running.
func (d *DockerStrategy) Cleanup(ctx context.Context) error {
	binary, err := d.lookPath(d.Binary)
	if err != nil {
		return fmt.Errorf("%w: docker: %w", ErrBinaryNotFound, err)
	}

	ctx, cancel := context.WithTimeout(ctx, dockerCommandTimeout)
	defer cancel()

	if out, err := d.run(ctx, binary, "stop", d.Container); err != nil {
		return fmt.Errorf("docker stop %s: %w: %s", d.Container, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DefaultSearchPaths is the ordered list of places a locally built relay
// is looked for. A bare name is resolved on PATH.
func DefaultSearchPaths() []string {
	return []string{
		"./target/release/" + relayBinaryName,
		"./" + relayBinaryName + "/target/release/" + relayBinaryName,
		"/usr/local/bin/" + relayBinaryName,
		relayBinaryName,
	}
}

// LocalStrategy runs the first relay binary found on a fixed search list.
type LocalStrategy struct {
	SearchPaths []string

	lookPath func(string) (string, error)
}

// NewLocalStrategy creates a local binary strategy.
func NewLocalStrategy(searchPaths []string) *LocalStrategy {
	if len(searchPaths) == 0 {
		searchPaths = DefaultSearchPaths()
	}
	return &LocalStrategy{
		SearchPaths: searchPaths,
		lookPath:    exec.LookPath,
	}
}

// Name returns "local".
func (s *LocalStrategy) Name() string { return StrategyLocal }

// Find returns the first executable on the search list.
func (s *LocalStrategy) Find() (string, error) {
	for _, candidate := range s.SearchPaths {
		if !strings.ContainsRune(candidate, filepath.Separator) {
			if path, err := s.lookPath(candidate); err == nil {
				return path, nil
			}
			continue
		}
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: searched %s", ErrBinaryNotFound, strings.Join(s.SearchPaths, ", "))
}

// Launch starts the located binary against the generated config.
func (s *LocalStrategy) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	binary, err := s.Find()
	if err != nil {
		return nil, err
	}

	args := []string{"--config", spec.ConfigPath, "--db", spec.Config.DataDir}
	return spawn(ctx, spec, relayBinaryName, binary, args, []string{relayLogEnv})
}

// SidecarStrategy runs the relay executable bundled with the application.
type SidecarStrategy struct {
	Path string
}

// NewSidecarStrategy creates a sidecar strategy. An empty path means the
// relay binary next to the running executable.
func NewSidecarStrategy(path string) *SidecarStrategy {
	if path == "" {
		if exe, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exe), relayBinaryName)
		}
	}
	return &SidecarStrategy{Path: path}
}

// Name returns "sidecar".
func (s *SidecarStrategy) Name() string { return StrategySidecar }

// Launch starts the sidecar with --config.
func (s *SidecarStrategy) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if s.Path == "" || !isExecutable(s.Path) {
		return nil, fmt.Errorf("%w: sidecar %q", ErrBinaryNotFound, s.Path)
	}
	return spawn(ctx, spec, "sidecar:"+relayBinaryName, s.Path, []string{"--config", spec.ConfigPath}, []string{relayLogEnv})
}
