package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Launcher defaults.
const (
	defaultSettleDelay = 2 * time.Second
	defaultStopTimeout = 10 * time.Second

	// cleanupTimeout bounds strategy cleanup during Stop.
	cleanupTimeout = 20 * time.Second
)

// State is the coarse relay state reported by Status.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
	StateUnknown State = "unknown"
)

// Status messages shared by callers and tests.
const (
	msgAlreadyRunning = "Relay is already running"
	msgNotRunning     = "Relay was not running"
	msgStopped        = "Relay stopped"
	msgNoRelay        = "Relay is not running"
	msgStarting       = "Relay is starting"
)

// Status describes the relay as seen by the launcher.
type Status struct {
	State      State  `json:"state"`
	Running    bool   `json:"running"`
	Port       int    `json:"port"`
	Message    string `json:"message"`
	DataDir    string `json:"data_dir"`
	ConfigPath string `json:"config_path"`
	Strategy   string `json:"strategy,omitempty"`
	PID        int    `json:"pid,omitempty"`
}

// HealthReport is the result of HealthCheck.
type HealthReport struct {
	RelayOnline    bool      `json:"relay_online"`
	PortAccessible bool      `json:"port_accessible"`
	Message        string    `json:"message"`
	CheckedAt      time.Time `json:"checked_at"`
	LatencyMS      float64   `json:"latency_ms"`
}

// Logger defines the logging interface used by the launcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Launcher. Zero values pick defaults.
type Options struct {
	// Strategies are tried in order; the first to spawn wins.
	Strategies []Strategy

	// Prober confirms the relay after the settle delay and on Status.
	Prober Prober

	// SettleDelay is how long Start waits before the first probe.
	SettleDelay time.Duration

	// StopTimeout is the SIGTERM to SIGKILL grace period.
	StopTimeout time.Duration

	Observer Observer
	Logger   Logger

	// Opener opens a URL with the platform default handler.
	Opener func(url string) error
}

// handle is the launcher's record of a spawned relay. verified is set
// once Start's probe has succeeded.
type handle struct {
	proc     Process
	strategy Strategy
	config   Config
	started  time.Time
	verified bool
}

// Launcher supervises one relay process.
//
// mu guards the handle slot and the config and is only held for short
// bookkeeping. startMu serialises Start up to the point the handle is
// stored, so strategy preparation and spawning never block Status, Stop
// or Config. A Start that arrives while another is settling reports
// "already running", and Status reports the unverified handle as starting.
type Launcher struct {
	startMu sync.Mutex

	mu     sync.Mutex
	config Config
	stale  bool
	handle *handle

	strategies  []Strategy
	prober      Prober
	settleDelay time.Duration
	stopTimeout time.Duration
	observer    Observer
	logger      Logger
	opener      func(string) error
	now         func() time.Time
}

// New creates a launcher for cfg.
func New(cfg Config, opts Options) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Strategies) == 0 {
		return nil, fmt.Errorf("%w: no start strategies configured", ErrNoStrategy)
	}

	l := &Launcher{
		config:      cfg,
		strategies:  opts.Strategies,
		prober:      opts.Prober,
		settleDelay: opts.SettleDelay,
		stopTimeout: opts.StopTimeout,
		observer:    opts.Observer,
		logger:      opts.Logger,
		opener:      opts.Opener,
		now:         time.Now,
	}
	if l.prober == nil {
		l.prober = NewTCPProber(defaultProbeTimeout)
	}
	if l.settleDelay <= 0 {
		l.settleDelay = defaultSettleDelay
	}
	if l.stopTimeout <= 0 {
		l.stopTimeout = defaultStopTimeout
	}
	if l.observer == nil {
		l.observer = Observers(nil)
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	if l.opener == nil {
		l.opener = openBrowser
	}
	return l, nil
}

// Start launches the relay unless one is already running.
func (l *Launcher) Start(ctx context.Context) (Status, error) {
	h, st, err := l.begin(ctx)
	if h == nil {
		return st, err
	}
	proc, strategy, cfg := h.proc, h.strategy, h.config

	l.logger.Info("relay spawned, waiting to settle",
		"strategy", strategy.Name(),
		"pid", proc.PID(),
		"port", cfg.Port,
	)

	if err := l.settle(ctx, proc); err != nil {
		l.abandon(ctx, h)
		return l.startFailed(ctx, cfg, strategy.Name(), err)
	}

	result, err := timedProbe(ctx, l.prober, cfg.Port)
	if !result.Alive {
		l.abandon(ctx, h)
		return l.startFailed(ctx, cfg, strategy.Name(), &ProbeError{Kind: result.Kind, Port: cfg.Port, Err: err})
	}

	l.mu.Lock()
	if l.handle == h {
		h.verified = true
	}
	l.mu.Unlock()

	st = Status{
		State:      StateRunning,
		Running:    true,
		Port:       cfg.Port,
		Message:    "NOSTR relay started via " + strategy.Name(),
		DataDir:    cfg.DataDir,
		ConfigPath: cfg.ConfigPath(),
		Strategy:   strategy.Name(),
		PID:        proc.PID(),
	}
	l.logger.Info("relay started", "strategy", strategy.Name(), "port", cfg.Port, "latency", result.Latency)
	l.emit(ctx, Event{Type: EventStarted, Status: st, Strategy: strategy.Name(), Message: st.Message, Probe: &result})
	return st, nil
}

// begin writes the relay files, spawns the relay and stores its handle.
// startMu keeps concurrent Starts from spawning twice; mu is only held for
// the slot check, the file write and the final store. A nil handle means
// Start is done and returns the given status.
func (l *Launcher) begin(ctx context.Context) (*handle, Status, error) {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.mu.Lock()
	if l.handle != nil {
		st := l.statusLocked(StateRunning, msgAlreadyRunning)
		l.mu.Unlock()
		return nil, st, nil
	}

	cfg := l.config
	written, err := prepareFiles(cfg, l.stale)
	if err == nil && written {
		l.stale = false
	}
	l.mu.Unlock()
	if err != nil {
		st, err := l.startFailed(ctx, cfg, "", fmt.Errorf("preparing relay files: %w", err))
		return nil, st, err
	}
	if written {
		l.logger.Info("relay config written", "path", cfg.ConfigPath())
	}

	spec := LaunchSpec{
		Config:      cfg,
		ConfigPath:  cfg.ConfigPath(),
		StopTimeout: l.stopTimeout,
		Logger:      l.logger,
	}
	proc, strategy, err := l.launch(ctx, spec)
	if err != nil {
		st, err := l.startFailed(ctx, cfg, "", err)
		return nil, st, err
	}

	h := &handle{proc: proc, strategy: strategy, config: cfg, started: l.now()}
	l.mu.Lock()
	l.handle = h
	l.mu.Unlock()
	return h, Status{}, nil
}

// launch tries each strategy in order. A failed Prepare is logged and the
// strategy still gets its Launch attempt.
func (l *Launcher) launch(ctx context.Context, spec LaunchSpec) (Process, Strategy, error) {
	var errs []error
	for _, s := range l.strategies {
		if p, ok := s.(Preparer); ok {
			if err := p.Prepare(ctx, spec); err != nil {
				l.logger.Debug("relay strategy prepare", "strategy", s.Name(), "error", err)
			}
		}
		proc, err := s.Launch(ctx, spec)
		if err != nil {
			l.logger.Debug("relay start strategy failed", "strategy", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		return proc, s, nil
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrNoStrategy, errors.Join(errs...))
}

// settle waits for the settle delay, returning early if the process exits
// or ctx is cancelled.
func (l *Launcher) settle(ctx context.Context, proc Process) error {
	timer := time.NewTimer(l.settleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-proc.Done():
		return ErrExitedEarly
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abandon stops a freshly spawned relay that failed verification. The slot
// is cleared only if it still holds h.
func (l *Launcher) abandon(ctx context.Context, h *handle) {
	l.mu.Lock()
	if l.handle == h {
		l.handle = nil
	}
	l.mu.Unlock()

	l.terminate(ctx, h)
}

// terminate stops the process and runs the strategy's cleanup.
func (l *Launcher) terminate(ctx context.Context, h *handle) {
	if err := h.proc.Stop(); err != nil {
		l.logger.Warn("stopping relay process", "strategy", h.strategy.Name(), "error", err)
	}
	l.cleanup(ctx)
}

// cleanup runs every configured strategy cleanup, best effort.
func (l *Launcher) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, s := range l.strategies {
		c, ok := s.(Cleaner)
		if !ok {
			continue
		}
		if err := c.Cleanup(ctx); err != nil {
			l.logger.Debug("relay strategy cleanup", "strategy", s.Name(), "error", err)
		}
	}
}

func (l *Launcher) startFailed(ctx context.Context, cfg Config, strategy string, err error) (Status, error) {
	st := Status{
		State:      StateStopped,
		Port:       cfg.Port,
		Message:    "Failed to start relay: " + err.Error(),
		DataDir:    cfg.DataDir,
		ConfigPath: cfg.ConfigPath(),
		Strategy:   strategy,
	}
	l.logger.Error("relay start failed", "strategy", strategy, "error", err)
	l.emit(ctx, Event{Type: EventStartFailed, Status: st, Strategy: strategy, Message: st.Message, Err: err.Error()})
	return st, err
}

// Stop terminates the relay if one is running.
func (l *Launcher) Stop(ctx context.Context) (Status, error) {
	l.mu.Lock()
	h := l.handle
	l.handle = nil
	cfg := l.config
	l.mu.Unlock()

	if h == nil {
		return Status{
			State:      StateStopped,
			Port:       cfg.Port,
			Message:    msgNotRunning,
			DataDir:    cfg.DataDir,
			ConfigPath: cfg.ConfigPath(),
		}, nil
	}

	l.terminate(ctx, h)

	st := Status{
		State:      StateStopped,
		Port:       h.config.Port,
		Message:    msgStopped,
		DataDir:    h.config.DataDir,
		ConfigPath: h.config.ConfigPath(),
		Strategy:   h.strategy.Name(),
	}
	l.logger.Info("relay stopped", "strategy", h.strategy.Name(), "uptime", l.now().Sub(h.started))
	l.emit(ctx, Event{Type: EventStopped, Status: st, Strategy: h.strategy.Name(), Message: st.Message})
	return st, nil
}

// Status re-probes a running relay. A relay that is definitively gone is
// reaped; an inconclusive probe leaves the handle in place. A relay that
// Start has not verified yet is reported as starting without a probe.
func (l *Launcher) Status(ctx context.Context) (Status, error) {
	l.mu.Lock()
	h := l.handle
	verified := h != nil && h.verified
	cfg := l.config
	l.mu.Unlock()

	if h == nil {
		return Status{
			State:      StateStopped,
			Port:       cfg.Port,
			Message:    msgNoRelay,
			DataDir:    cfg.DataDir,
			ConfigPath: cfg.ConfigPath(),
		}, nil
	}

	st := Status{
		Port:       h.config.Port,
		DataDir:    h.config.DataDir,
		ConfigPath: h.config.ConfigPath(),
		Strategy:   h.strategy.Name(),
		PID:        h.proc.PID(),
	}

	if !verified {
		st.State = StateUnknown
		st.Running = true
		st.Message = msgStarting
		return st, nil
	}

	if h.proc.Exited() {
		msg := "Relay process exited"
		if err := h.proc.ExitError(); err != nil {
			msg += ": " + err.Error()
		}
		l.lost(ctx, h, &st, nil, msg)
		return st, nil
	}

	result, err := timedProbe(ctx, l.prober, h.config.Port)
	switch {
	case err != nil:
		st.State = StateUnknown
		st.Running = true
		st.Message = "Relay running, status unknown: " + err.Error()
	case result.Alive:
		st.State = StateRunning
		st.Running = true
		st.Message = fmt.Sprintf("Relay is running on port %d", h.config.Port)
	default:
		l.lost(ctx, h, &st, &result, fmt.Sprintf("Relay not responding on port %d", h.config.Port))
	}
	return st, nil
}

// lost reaps a relay that is no longer serving, including any container
// its strategy left behind.
func (l *Launcher) lost(ctx context.Context, h *handle, st *Status, probe *ProbeResult, msg string) {
	l.mu.Lock()
	if l.handle == h {
		l.handle = nil
	}
	l.mu.Unlock()

	if err := h.proc.Stop(); err != nil {
		l.logger.Warn("stopping lost relay", "error", err)
	}
	l.cleanup(ctx)

	st.State = StateError
	st.Running = false
	st.PID = 0
	st.Message = msg

	l.logger.Warn("relay lost", "strategy", h.strategy.Name(), "port", h.config.Port)
	l.emit(ctx, Event{Type: EventLost, Status: *st, Strategy: h.strategy.Name(), Message: msg, Probe: probe})
}

// Config returns a copy of the desired relay settings.
func (l *Launcher) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// UpdateConfig replaces the relay settings. A running relay keeps its old
// settings until it is restarted; the config file is rewritten on the next Start.
func (l *Launcher) UpdateConfig(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.config = cfg
	l.stale = true
	running := l.handle != nil
	l.mu.Unlock()

	msg := "Relay configuration updated"
	if running {
		msg += "; restart the relay to apply"
	}
	l.logger.Info("relay config updated", "port", cfg.Port, "data_dir", cfg.DataDir, "running", running)
	l.emit(ctx, Event{
		Type:    EventConfigUpdated,
		Status:  Status{State: StateUnknown, Running: running, Port: cfg.Port, Message: msg, DataDir: cfg.DataDir, ConfigPath: cfg.ConfigPath()},
		Message: msg,
	})
	return nil
}

// OpenRelayURL opens the relay URL with the platform default handler and
// returns it.
func (l *Launcher) OpenRelayURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url := l.Config().RelayURL()
	if err := l.opener(url); err != nil {
		return url, fmt.Errorf("opening %s: %w", url, err)
	}
	return url, nil
}

// HealthCheck reports whether the relay port is reachable and whether the
// prober recognises a relay behind it.
func (l *Launcher) HealthCheck(ctx context.Context) HealthReport {
	l.mu.Lock()
	port := l.config.Port
	strategy := ""
	if l.handle != nil {
		port = l.handle.config.Port
		strategy = l.handle.strategy.Name()
	}
	l.mu.Unlock()

	tcp := NewTCPProber(defaultProbeTimeout)
	tcp.Host = proberHost(l.prober)

	report := HealthReport{CheckedAt: l.now().UTC()}
	portResult, _ := timedProbe(ctx, tcp, port)
	report.PortAccessible = portResult.Alive
	report.LatencyMS = latencyMS(portResult.Latency)

	var probe *ProbeResult
	if report.PortAccessible {
		result, _ := timedProbe(ctx, l.prober, port)
		probe = &result
		report.RelayOnline = result.Alive
		report.LatencyMS = latencyMS(result.Latency)
	}

	switch {
	case report.RelayOnline:
		report.Message = "NOSTR relay is healthy and responding on WebSocket"
	case report.PortAccessible:
		report.Message = fmt.Sprintf("Port %d is open but the relay did not identify itself", port)
	default:
		report.Message = "Relay not accessible on port " + strconv.Itoa(port)
	}

	l.emit(ctx, Event{
		Type:     EventHealthChecked,
		Status:   Status{State: healthState(report), Running: report.RelayOnline, Port: port, Message: report.Message},
		Strategy: strategy,
		Message:  report.Message,
		Probe:    probe,
	})
	return report
}

func latencyMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func healthState(r HealthReport) State {
	if r.RelayOnline {
		return StateRunning
	}
	if r.PortAccessible {
		return StateUnknown
	}
	return StateStopped
}

// proberHost returns the host a built-in prober targets.
func proberHost(p Prober) string {
	switch p := p.(type) {
	case *TCPProber:
		return p.Host
	case *HTTPProber:
		return p.Host
	case *WebSocketProber:
		return p.Host
	default:
		return defaultProbeHost
	}
}

func (l *Launcher) statusLocked(state State, msg string) Status {
	st := Status{
		State:      state,
		Running:    state == StateRunning,
		Port:       l.config.Port,
		Message:    msg,
		DataDir:    l.config.DataDir,
		ConfigPath: l.config.ConfigPath(),
	}
	if h := l.handle; h != nil {
		st.Port = h.config.Port
		st.DataDir = h.config.DataDir
		st.ConfigPath = h.config.ConfigPath()
		st.Strategy = h.strategy.Name()
		st.PID = h.proc.PID()
	}
	return st
}

func (l *Launcher) emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = l.now().UTC()
	}
	ev.Status.Strategy = ev.Strategy
	l.observer.RelayEvent(ctx, ev)
}
