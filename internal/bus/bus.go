// Package bus implements the two-channel log/status bus: every
// LogEntry produced anywhere in the process and every StatusUpdate
// destined for connected observers flows through here on its way to
// persistence (internal/store) and fan-out (internal/fanout).
package bus

import (
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

// Bus is the process-wide pair of unbounded-ish channels carrying
// LogEntry and WebSocketMessage traffic. Buffered generously so
// producers (task handlers, the TX/RX pipelines) never block on a
// slow fan-out consumer; internal/fanout is the sole consumer of
// both channels.
type Bus struct {
	LogCh    chan elfradio.LogEntry
	StatusCh chan elfradio.WebSocketMessage
}

// New builds a Bus with generous buffering. A single instance is
// created in cmd/elfradio/main.go and handed to every component that
// produces LogEntry/StatusUpdate traffic.
func New() *Bus {
	return &Bus{
		LogCh:    make(chan elfradio.LogEntry, 1024),
		StatusCh: make(chan elfradio.WebSocketMessage, 1024),
	}
}

// PublishLog enqueues a LogEntry. Never blocks indefinitely: if the
// channel is somehow full (only possible if internal/fanout has
// stopped consuming), the entry is dropped rather than stalling the
// caller, matching the spec's "local recovery, log and continue"
// propagation policy for the hot path.
func (b *Bus) PublishLog(entry elfradio.LogEntry) {
	select {
	case b.LogCh <- entry:
	default:
	}
}

// PublishStatus enqueues a StatusUpdate.
func (b *Bus) PublishStatus(msg elfradio.WebSocketMessage) {
	select {
	case b.StatusCh <- msg:
	default:
	}
}

// Service is a small helper used by every call site that both
// performs an AI/aux/network call and needs to publish its resulting
// health: it builds the WebSocketMessage envelope for a given
// service-status update kind.
func Service(kind elfradio.StatusUpdateKind, status elfradio.ServiceStatus) elfradio.WebSocketMessage {
	return elfradio.WebSocketMessage{Kind: kind, Service: status}
}

// Connectivity builds the envelope for a connectivity-style update
// (network, SDR, radio).
func Connectivity(kind elfradio.StatusUpdateKind, status elfradio.ConnectionStatus) elfradio.WebSocketMessage {
	return elfradio.WebSocketMessage{Kind: kind, ConnectionStatus: status}
}

// Log builds the envelope wrapping a LogEntry for fan-out.
func Log(entry elfradio.LogEntry) elfradio.WebSocketMessage {
	return elfradio.WebSocketMessage{Kind: elfradio.StatusUpdateLog, Log: &entry}
}
