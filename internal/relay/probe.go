package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Probe kinds.
const (
	ProbeTCP       = "tcp"
	ProbeHTTP      = "http"
	ProbeWebSocket = "websocket"
)

// Probe defaults.
const (
	defaultProbeTimeout = 5 * time.Second
	defaultProbeHost    = "localhost"
	defaultIdentity     = "nostr"

	// maxProbeBody caps how much of an HTTP response is scanned for the identity marker.
	maxProbeBody = 64 << 10
)

// Prober checks whether a relay is serving on a local port.
//
// A probe has three outcomes: alive (true, nil), definitively down
// (false, nil) such as a refused connection or a response that is not from
// a relay, and inconclusive (false, err) such as a timeout.
type Prober interface {
	Probe(ctx context.Context, port int) (bool, error)
	Kind() string
}

// NewProber builds the prober named by kind.
func NewProber(kind string, timeout time.Duration, identity string) (Prober, error) {
	switch kind {
	case ProbeTCP, "":
		return NewTCPProber(timeout), nil
	case ProbeHTTP:
		return NewHTTPProber(timeout, identity), nil
	case ProbeWebSocket:
		return NewWebSocketProber(timeout), nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", kind)
	}
}

// isRefused reports whether err means nothing is listening.
func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// classify turns a dial error into a probe outcome.
func classify(err error) (bool, error) {
	if isRefused(err) {
		return false, nil
	}
	return false, err
}

// TCPProber succeeds when a TCP connection to the port can be opened.
type TCPProber struct {
	Host    string
	Timeout time.Duration
}

// NewTCPProber creates a TCP prober against localhost.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &TCPProber{Host: defaultProbeHost, Timeout: timeout}
}

// Kind returns "tcp".
func (p *TCPProber) Kind() string { return ProbeTCP }

// Probe dials the port once.
func (p *TCPProber) Probe(ctx context.Context, port int) (bool, error) {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(port)))
	if err != nil {
		return classify(err)
	}
	conn.Close()
	return true, nil
}

// HTTPProber succeeds on a 2xx response or on a body containing Identity.
// The request asks for the NIP-11 relay information document.
type HTTPProber struct {
	Host     string
	Timeout  time.Duration
	Identity string
	Client   *http.Client
}

// NewHTTPProber creates an HTTP prober against localhost.
func NewHTTPProber(timeout time.Duration, identity string) *HTTPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if identity == "" {
		identity = defaultIdentity
	}
	return &HTTPProber{
		Host:     defaultProbeHost,
		Timeout:  timeout,
		Identity: identity,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Kind returns "http".
func (p *HTTPProber) Kind() string { return ProbeHTTP }

// Probe issues one GET / request.
func (p *HTTPProber) Probe(ctx context.Context, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(p.Host, strconv.Itoa(port)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("Accept", "application/nostr+json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return false, fmt.Errorf("reading probe response: %w", err)
	}
	return strings.Contains(strings.ToLower(string(body)), strings.ToLower(p.Identity)), nil
}

// WebSocketProber succeeds when a WebSocket handshake completes, which is
// how NOSTR clients actually talk to a relay.
type WebSocketProber struct {
	Host    string
	Timeout time.Duration
}

// NewWebSocketProber creates a WebSocket prober against localhost.
func NewWebSocketProber(timeout time.Duration) *WebSocketProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &WebSocketProber{Host: defaultProbeHost, Timeout: timeout}
}

// Kind returns "websocket".
func (p *WebSocketProber) Kind() string { return ProbeWebSocket }

// Probe performs one handshake and closes the connection.
func (p *WebSocketProber) Probe(ctx context.Context, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: p.Timeout}
	url := "ws://" + net.JoinHostPort(p.Host, strconv.Itoa(port)) + "/"

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			// Something answered, but it is not a WebSocket endpoint
			return false, nil
		}
		return classify(err)
	}

	//nolint:errcheck // Best-effort close frame before hanging up
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
	return true, nil
}

// timedProbe runs a probe and measures it. The error is the probe's own
// error, returned alongside the result so callers can tell inconclusive
// from down.
func timedProbe(ctx context.Context, p Prober, port int) (ProbeResult, error) {
	start := time.Now()
	alive, err := p.Probe(ctx, port)
	result := ProbeResult{
		Kind:    p.Kind(),
		Port:    port,
		Alive:   alive && err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		result.Err = err.Error()
	}
	return result, err
}

// ProbeResult records one probe for observers.
type ProbeResult struct {
	Kind    string        `json:"kind"`
	Port    int           `json:"port"`
	Alive   bool          `json:"alive"`
	Latency time.Duration `json:"latency_ns"`
	Err     string        `json:"error,omitempty"`
}
