// Package hardware wraps the two physical I/O surfaces the TX/RX
// pipelines drive: a PTT-capable serial port (RTS/DTR keying) and the
// local audio capture/playback device.
package hardware

import (
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// PttSignal selects which serial control line keys the transmitter.
type PttSignal string

const (
	PttSignalRTS PttSignal = "rts"
	PttSignalDTR PttSignal = "dtr"
)

// ParsePttSignal parses a case-insensitive "rts"/"dtr" string and
// errors on anything else.
func ParsePttSignal(s string) (PttSignal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rts":
		return PttSignalRTS, nil
	case "dtr":
		return PttSignalDTR, nil
	default:
		return "", fmt.Errorf("unrecognised ptt signal %q (want rts or dtr)", s)
	}
}

// PTT drives a single serial control line used for push-to-talk
// keying. Not safe for concurrent Key/Unkey calls from multiple
// goroutines simultaneously (the TX processor is single-consumer, so
// this is never contended in practice) but the mutex guards against
// concurrent open/close from a config-reload racing a live
// transmission.
type PTT struct {
	mu     sync.Mutex
	port   serial.Port
	signal PttSignal
}

// Open opens portName at a nominal control-line baud rate (the data
// rate is irrelevant; only RTS/DTR matter) and returns a PTT keyed to
// signal.
func Open(portName string, signal PttSignal) (*PTT, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("open ptt port %s: %w", portName, err)
	}
	return &PTT{port: port, signal: signal}, nil
}

// Close releases the underlying serial port.
func (p *PTT) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// Key asserts the configured control line high, keying the
// transmitter.
func (p *PTT) Key() error {
	return p.setLine(true)
}

// Unkey deasserts the configured control line, releasing the
// transmitter. Callers attempt this even after a prior send error so
// the line is never left keyed.
func (p *PTT) Unkey() error {
	return p.setLine(false)
}

func (p *PTT) setLine(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.signal {
	case PttSignalRTS:
		return p.port.SetRTS(on)
	case PttSignalDTR:
		return p.port.SetDTR(on)
	default:
		return fmt.Errorf("ptt: unset signal line")
	}
}
