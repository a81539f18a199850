package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

func newTestMonitor(t *testing.T, urls []string) (*Monitor, *bus.Bus) {
	t.Helper()
	b := bus.New()
	m := New(b, config.NetworkMonitorSettings{IntervalSeconds: 1}, make(chan struct{}))
	m.SetProbeURLs(urls)
	return m, b
}

func drainStatus(b *bus.Bus) []elfradio.WebSocketMessage {
	var out []elfradio.WebSocketMessage
	for {
		select {
		case msg := <-b.StatusCh:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestCheckOnce_Connected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m, b := newTestMonitor(t, []string{srv.URL})

	if got := m.CheckOnce(context.Background()); got != elfradio.ConnectionConnected {
		t.Fatalf("derived %s, want Connected", got)
	}

	updates := drainStatus(b)
	if len(updates) != 1 || updates[0].Kind != elfradio.StatusUpdateNetworkConnectivity ||
		updates[0].ConnectionStatus != elfradio.ConnectionConnected {
		t.Fatalf("unexpected updates: %+v", updates)
	}
}

func TestCheckOnce_HeadRejectedGetAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, _ := newTestMonitor(t, []string{srv.URL})

	if got := m.CheckOnce(context.Background()); got != elfradio.ConnectionConnected {
		t.Fatalf("derived %s, want Connected via GET fallback", got)
	}
}

func TestCheckOnce_DisconnectedPublishedOnce(t *testing.T) {
	// A closed port: the listener is shut down before probing.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m, b := newTestMonitor(t, []string{url})

	if got := m.CheckOnce(context.Background()); got != elfradio.ConnectionDisconnected {
		t.Fatalf("derived %s, want Disconnected", got)
	}
	first := drainStatus(b)
	if len(first) != 1 || first[0].ConnectionStatus != elfradio.ConnectionDisconnected {
		t.Fatalf("unexpected first updates: %+v", first)
	}

	// Still disconnected: no repeated publish.
	m.CheckOnce(context.Background())
	if again := drainStatus(b); len(again) != 0 {
		t.Fatalf("expected no repeated publish while state is unchanged, got %+v", again)
	}
}

func TestCheckOnce_TransitionLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m, b := newTestMonitor(t, []string{srv.URL})
	m.CheckOnce(context.Background())

	select {
	case entry := <-b.LogCh:
		if entry.Direction != elfradio.LogDirectionInternal || entry.ContentType != elfradio.LogContentStatus {
			t.Fatalf("unexpected log entry: %+v", entry)
		}
	default:
		t.Fatal("expected a status log entry for the first observation")
	}
}
