// Package fanout implements the client fan-out: the singleton
// broadcast goroutine that drains both bus channels and pushes every
// message to each connected client's private queue, plus the
// initial-snapshot push a new client receives on connect.
package fanout

import (
	"context"
	"sync"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/google/uuid"
)

// clientBuffer is the per-client queue depth; a client that falls this
// far behind starts losing frames rather than stalling the broadcast
// loop.
const clientBuffer = 64

// Broadcaster consumes the bus and tracks the current health state so
// late-joining clients get a snapshot, not a replay.
type Broadcaster struct {
	state *elfradio.AppState
	bus   *bus.Bus

	startOnce sync.Once

	mu      sync.Mutex
	service map[elfradio.StatusUpdateKind]elfradio.ServiceStatus
	conn    map[elfradio.StatusUpdateKind]elfradio.ConnectionStatus
}

// New builds a Broadcaster with the cold-start health state: every AI
// service Warning (nothing has been called yet), SDR Disconnected,
// network Checking, radio Unknown.
func New(state *elfradio.AppState, b *bus.Bus) *Broadcaster {
	return &Broadcaster{
		state: state,
		bus:   b,
		service: map[elfradio.StatusUpdateKind]elfradio.ServiceStatus{
			elfradio.StatusUpdateLlm:       elfradio.ServiceStatusWarning,
			elfradio.StatusUpdateStt:       elfradio.ServiceStatusWarning,
			elfradio.StatusUpdateTts:       elfradio.ServiceStatusWarning,
			elfradio.StatusUpdateTranslate: elfradio.ServiceStatusWarning,
		},
		conn: map[elfradio.StatusUpdateKind]elfradio.ConnectionStatus{
			elfradio.StatusUpdateSdr:                 elfradio.ConnectionDisconnected,
			elfradio.StatusUpdateNetworkConnectivity: elfradio.ConnectionChecking,
			elfradio.StatusUpdateRadio:               elfradio.ConnectionUnknown,
		},
	}
}

// Start launches the broadcast goroutine exactly once; later calls are
// no-ops.
func (f *Broadcaster) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		go f.run(ctx)
	})
}

func (f *Broadcaster) run(ctx context.Context) {
	for {
		select {
		case <-f.state.ShutdownCh:
			return
		case <-ctx.Done():
			return
		case entry := <-f.bus.LogCh:
			f.state.Broadcast(bus.Log(entry))
		case msg := <-f.bus.StatusCh:
			f.record(msg)
			f.state.Broadcast(msg)
		}
	}
}

// record folds a status update into the snapshot state.
func (f *Broadcaster) record(msg elfradio.WebSocketMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch msg.Kind {
	case elfradio.StatusUpdateLlm, elfradio.StatusUpdateStt, elfradio.StatusUpdateTts, elfradio.StatusUpdateTranslate:
		f.service[msg.Kind] = msg.Service
	case elfradio.StatusUpdateSdr, elfradio.StatusUpdateNetworkConnectivity, elfradio.StatusUpdateRadio:
		f.conn[msg.Kind] = msg.ConnectionStatus
	}
}

// Snapshot is the ordered initial push a new client receives:
// UserUuidUpdate first, then one of each service and connectivity
// update reflecting the current in-memory state.
func (f *Broadcaster) Snapshot() []elfradio.WebSocketMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []elfradio.WebSocketMessage{
		{Kind: elfradio.StatusUpdateUserUuid, UserUUID: f.state.UserUUID},
		{Kind: elfradio.StatusUpdateLlm, Service: f.service[elfradio.StatusUpdateLlm]},
		{Kind: elfradio.StatusUpdateStt, Service: f.service[elfradio.StatusUpdateStt]},
		{Kind: elfradio.StatusUpdateTts, Service: f.service[elfradio.StatusUpdateTts]},
		{Kind: elfradio.StatusUpdateTranslate, Service: f.service[elfradio.StatusUpdateTranslate]},
		{Kind: elfradio.StatusUpdateSdr, ConnectionStatus: f.conn[elfradio.StatusUpdateSdr]},
		{Kind: elfradio.StatusUpdateNetworkConnectivity, ConnectionStatus: f.conn[elfradio.StatusUpdateNetworkConnectivity]},
		{Kind: elfradio.StatusUpdateRadio, ConnectionStatus: f.conn[elfradio.StatusUpdateRadio]},
	}
}

// Register adds a new client and pre-loads its queue with the initial
// snapshot. Returns the client id (for RemoveClient at disconnect) and
// its receive channel.
func (f *Broadcaster) Register() (string, chan elfradio.WebSocketMessage) {
	id := uuid.NewString()
	ch := make(chan elfradio.WebSocketMessage, clientBuffer)
	for _, msg := range f.Snapshot() {
		ch <- msg
	}
	f.state.AddClient(id, ch)
	return id, ch
}

// Unregister removes a client, closing its channel.
func (f *Broadcaster) Unregister(id string) {
	f.state.RemoveClient(id)
}
