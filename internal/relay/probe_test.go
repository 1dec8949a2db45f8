package relay

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// freePort returns a loopback port with nothing listening on it.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestNewProber(t *testing.T) {
	tests := []struct {
		kind     string
		wantKind string
		wantErr  bool
	}{
		{"tcp", ProbeTCP, false},
		{"", ProbeTCP, false},
		{"http", ProbeHTTP, false},
		{"websocket", ProbeWebSocket, false},
		{"icmp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			p, err := NewProber(tt.kind, time.Second, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProber(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if err == nil && p.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", p.Kind(), tt.wantKind)
			}
		})
	}
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := NewTCPProber(time.Second)
	p.Host = "127.0.0.1"
	ctx := context.Background()

	alive, err := p.Probe(ctx, ln.Addr().(*net.TCPAddr).Port)
	if err != nil || !alive {
		t.Errorf("Probe(listening) = %v, %v; want true, nil", alive, err)
	}

	alive, err = p.Probe(ctx, freePort(t))
	if err != nil || alive {
		t.Errorf("Probe(closed) = %v, %v; want false, nil", alive, err)
	}
}

func TestTCPProber_DefaultTimeout(t *testing.T) {
	p := NewTCPProber(0)
	if p.Timeout != defaultProbeTimeout {
		t.Errorf("Timeout = %v, want %v", p.Timeout, defaultProbeTimeout)
	}
	if p.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", p.Host)
	}
}

func TestHTTPProber(t *testing.T) {
	accept := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept <- r.Header.Get("Accept")
		w.Write([]byte(`{"name":"relay"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second, "")
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if err != nil || !alive {
		t.Errorf("Probe() = %v, %v; want true, nil", alive, err)
	}
	if gotAccept := <-accept; gotAccept != "application/nostr+json" {
		t.Errorf("Accept = %q, want application/nostr+json", gotAccept)
	}
}

func TestHTTPProber_IdentityInErrorBody(t *testing.T) {
	// nostr-rs-relay answers a plain GET with a non-2xx page that names it
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Please use a Nostr client to connect.", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second, "nostr")
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if err != nil || !alive {
		t.Errorf("Probe() = %v, %v; want true, nil", alive, err)
	}
}

func TestHTTPProber_NotARelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second, "nostr")
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if err != nil || alive {
		t.Errorf("Probe() = %v, %v; want false, nil", alive, err)
	}
}

func TestHTTPProber_Refused(t *testing.T) {
	p := NewHTTPProber(time.Second, "")
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), freePort(t))
	if err != nil || alive {
		t.Errorf("Probe() = %v, %v; want false, nil", alive, err)
	}
}

func TestHTTPProber_TimeoutIsInconclusive(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProber(50*time.Millisecond, "")
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if alive || err == nil {
		t.Errorf("Probe() = %v, %v; want false with an error", alive, err)
	}
}

func TestWebSocketProber(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() //nolint:errcheck // Wait for the close frame
	}))
	defer srv.Close()

	p := NewWebSocketProber(time.Second)
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if err != nil || !alive {
		t.Errorf("Probe() = %v, %v; want true, nil", alive, err)
	}
}

func TestWebSocketProber_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("hello")) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewWebSocketProber(time.Second)
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), serverPort(t, srv.Listener.Addr().String()))
	if err != nil || alive {
		t.Errorf("Probe() = %v, %v; want false, nil", alive, err)
	}
}

func TestWebSocketProber_Refused(t *testing.T) {
	p := NewWebSocketProber(time.Second)
	p.Host = "127.0.0.1"

	alive, err := p.Probe(context.Background(), freePort(t))
	if err != nil || alive {
		t.Errorf("Probe() = %v, %v; want false, nil", alive, err)
	}
}

func TestTimedProbe(t *testing.T) {
	p := &fakeProber{alive: true}
	result, err := timedProbe(context.Background(), p, 7447)
	if err != nil {
		t.Fatalf("timedProbe() error = %v", err)
	}
	if !result.Alive || result.Port != 7447 || result.Kind != "fake" {
		t.Errorf("result = %+v", result)
	}

	p.set(true, context.DeadlineExceeded)
	result, err = timedProbe(context.Background(), p, 7447)
	if err == nil {
		t.Fatal("timedProbe() expected error")
	}
	if result.Alive {
		t.Error("Alive = true alongside a probe error")
	}
	if result.Err == "" {
		t.Error("Err not recorded")
	}
}
