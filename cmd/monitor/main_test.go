package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
	"github.com/gabihorn/beiter-alert-bot/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

type receiver struct {
	mu       sync.Mutex
	payloads []alert.Payload
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p alert.Payload
	if err := json.NewDecoder(req.Body).Decode(&p); err == nil {
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.Load(func(k string) string { return env[k] })
	require.NoError(t, err)
	return cfg
}

func TestRun_DispatchesOnceAndServesLiveness(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"alertDate":"2024-01-01T00:00:05","data":"ביתר עילית","category":1}]`)
	}))
	defer feed.Close()

	recv := &receiver{}
	hook := httptest.NewServer(recv)
	defer hook.Close()

	port := freePort(t)
	metricsPort := freePort(t)
	cfg := loadConfig(t, map[string]string{
		"WEBHOOK_URL":    hook.URL,
		"ALERT_URLS":     feed.URL,
		"PORT":           strconv.Itoa(port),
		"METRICS_ADDR":   "127.0.0.1:" + strconv.Itoa(metricsPort),
		"CHECK_INTERVAL": "20ms",
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, zerolog.Nop()) }()

	require.Eventually(t, func() bool { return recv.count() >= 1 }, 5*time.Second, 20*time.Millisecond)

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Bot is running", body)

	var exposition string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(metricsPort) + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		exposition = string(b)
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, exposition, "alertbot_cycles_total")

	// Several more cycles see the same record.
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.payloads, 1)
	assert.Equal(t, "beiter_illit", recv.payloads[0].AlertType)
	assert.Equal(t, "render_monitor", recv.payloads[0].Source)
	assert.Equal(t, "2024-01-01T00:00:05", recv.payloads[0].AlertDate)
	assert.Equal(t, "ביתר עילית", recv.payloads[0].AlertData)
}

func TestRun_LivenessListenFailureIsReturned(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer feed.Close()

	cfg := loadConfig(t, map[string]string{
		"ALLOW_MISSING_WEBHOOK": "true",
		"ALERT_URLS":            feed.URL,
		"PORT":                  strconv.Itoa(busy.Addr().(*net.TCPAddr).Port),
		"METRICS_DISABLE":       "true",
		"CHECK_INTERVAL":        "20ms",
	})

	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, zerolog.Nop()) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen")
	case <-time.After(5 * time.Second):
		t.Fatal("run kept going without a liveness listener")
	}
}
