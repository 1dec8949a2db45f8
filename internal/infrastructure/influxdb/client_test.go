package influxdb_test

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/privacylion/relay-operator/internal/infrastructure/config"
	"github.com/privacylion/relay-operator/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and collects line protocol bodies sent to /api/v2/write.
type fakeInflux struct {
	*httptest.Server
	writes     chan string
	writeQuery chan string
	writeCode  int
}

func newFakeInflux(t *testing.T, writeCode int) *fakeInflux {
	t.Helper()
	f := &fakeInflux{
		writes:     make(chan string, 16),
		writeQuery: make(chan string, 16),
		writeCode:  writeCode,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.writes <- string(body)
			f.writeQuery <- r.URL.RawQuery
			if f.writeCode != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.writeCode)
				w.Write([]byte(`{"code":"invalid","message":"bad point"}`)) //nolint:errcheck
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "test-token",
		Org:           "privacy-lion",
		Bucket:        "relay",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func (f *fakeInflux) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case body := <-f.writes:
		return body
	case <-time.After(5 * time.Second):
		t.Fatal("no write received")
		return ""
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false}, "relay-operator")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = influxdb.Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://" + addr,
		Org:     "o",
		Bucket:  "b",
	}, "relay-operator")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(f.config(), "relay-operator")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	client.Flush() // no-op after close
}

func TestWriteProbe(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(f.config(), "relay-operator")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteProbe(influxdb.ProbeSample{
		Strategy: "docker",
		Probe:    "tcp",
		Port:     8080,
		Alive:    true,
		Latency:  3 * time.Millisecond,
		Time:     time.Unix(1700000000, 0),
	})
	client.Flush()

	body := f.nextWrite(t)
	want := "relay_probe,instance=relay-operator,probe=tcp,strategy=docker alive=true,latency_ms=3,port=8080i 1700000000000000000"
	if strings.TrimSpace(body) != want {
		t.Errorf("line protocol =\n%s\nwant\n%s", body, want)
	}

	query := <-f.writeQuery
	if !strings.Contains(query, "bucket=relay") || !strings.Contains(query, "org=privacy-lion") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteProbe_NoStrategy(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(f.config(), "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteProbe(influxdb.ProbeSample{Probe: "http", Port: 7777})
	client.Flush()

	body := f.nextWrite(t)
	if !strings.HasPrefix(body, "relay_probe,probe=http alive=false") {
		t.Errorf("line protocol = %q", body)
	}
	if strings.Contains(body, "strategy=") || strings.Contains(body, "instance=") {
		t.Errorf("unexpected tags in %q", body)
	}
}

func TestWriteHealth(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(f.config(), "relay-operator")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteHealth(8080, true, false)
	client.Flush()

	body := f.nextWrite(t)
	for _, want := range []string{
		"relay_health,instance=relay-operator ",
		"port=8080i",
		"port_accessible=true",
		"relay_online=false",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("line protocol %q missing %q", body, want)
		}
	}
}

func TestWritePoint_AfterClose(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(f.config(), "relay-operator")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WritePoint("relay_restarts", nil, map[string]interface{}{"count": 1})

	select {
	case body := <-f.writes:
		t.Errorf("write after Close sent %q", body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSetOnError(t *testing.T) {
	f := newFakeInflux(t, http.StatusBadRequest)

	client, err := influxdb.Connect(f.config(), "relay-operator")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 4)
	client.SetOnError(func(err error) { errCh <- err })

	client.WritePoint("relay_restarts", map[string]string{"strategy": "local"}, map[string]interface{}{"count": 1})
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error callback not invoked")
	}
}
