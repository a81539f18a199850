// Package netmon implements the network connectivity monitor: a
// periodic probe of small, unauthenticated HTTP endpoints, publishing
// a NetworkConnectivityUpdate only when the derived state changes.
// This is the one status source that is transition-gated; every other
// supervisor publishes on every call. Probe
// transport is go-resty, the REST client used across the provider
// adapters.
package netmon

import (
	"context"
	"fmt"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/go-resty/resty/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// defaultProbeURLs is the fixed ordered probe list: captive-portal
// checks first (tiny, fast, no auth), then generate_204, then a CDN
// favicon as a last resort.
var defaultProbeURLs = []string{
	"http://detectportal.firefox.com/success.txt",
	"http://captive.apple.com/hotspot-detect.html",
	"http://connectivitycheck.gstatic.com/generate_204",
	"https://www.google.com/generate_204",
	"https://cdn.jsdelivr.net/favicon.ico",
}

const (
	probeTimeout    = 5 * time.Second
	defaultInterval = 60 * time.Second
)

// Monitor probes connectivity and publishes transitions.
type Monitor struct {
	bus          *bus.Bus
	http         *resty.Client
	interval     time.Duration
	cronSchedule string
	probeURLs    []string
	shutdownCh   <-chan struct{}

	published bool
	last      elfradio.ConnectionStatus
}

// New builds a Monitor from the network_monitor config block.
func New(b *bus.Bus, cfg config.NetworkMonitorSettings, shutdownCh <-chan struct{}) *Monitor {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		bus:          b,
		http:         resty.New().SetTimeout(probeTimeout),
		interval:     interval,
		cronSchedule: cfg.CronSchedule,
		probeURLs:    defaultProbeURLs,
		shutdownCh:   shutdownCh,
	}
}

// SetProbeURLs overrides the probe list; used by tests and by
// deployments behind restrictive firewalls.
func (m *Monitor) SetProbeURLs(urls []string) {
	m.probeURLs = urls
}

// Run probes until shutdown: on a fixed ticker by default, or on a
// cron schedule when network_monitor.cron_schedule is set.
func (m *Monitor) Run(ctx context.Context) {
	if m.cronSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(m.cronSchedule, func() { m.CheckOnce(ctx) }); err != nil {
			logger.L().Error("invalid network_monitor.cron_schedule, falling back to interval",
				zap.String("schedule", m.cronSchedule), zap.Error(err))
		} else {
			c.Start()
			defer c.Stop()
			select {
			case <-m.shutdownCh:
			case <-ctx.Done():
			}
			return
		}
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs one probe pass and publishes the derived state if it
// differs from the last published one (or on first observation).
// Returns the derived state, also used by the startup one-shot check.
func (m *Monitor) CheckOnce(ctx context.Context) elfradio.ConnectionStatus {
	derived := m.probe(ctx)
	m.publishTransition(derived)
	return derived
}

// probe walks the probe list in order, HEAD first with a GET fallback,
// and derives Connected on the first success. When every entry fails
// after a prior Connected observation, the failure is treated as
// Error rather than Disconnected if the pass itself could not complete
// (context cancelled mid-probe).
func (m *Monitor) probe(ctx context.Context) elfradio.ConnectionStatus {
	for _, url := range m.probeURLs {
		if ctx.Err() != nil {
			if m.published && m.last == elfradio.ConnectionConnected {
				return elfradio.ConnectionError
			}
			return elfradio.ConnectionDisconnected
		}

		resp, err := m.http.R().SetContext(ctx).Head(url)
		if err == nil && !resp.IsError() {
			return elfradio.ConnectionConnected
		}

		resp, err = m.http.R().SetContext(ctx).Get(url)
		if err == nil && !resp.IsError() {
			return elfradio.ConnectionConnected
		}
	}
	return elfradio.ConnectionDisconnected
}

func (m *Monitor) publishTransition(derived elfradio.ConnectionStatus) {
	if m.published && derived == m.last {
		return
	}
	m.published = true
	m.last = derived

	m.bus.PublishStatus(bus.Connectivity(elfradio.StatusUpdateNetworkConnectivity, derived))
	m.bus.PublishLog(elfradio.NewLogEntry("", elfradio.LogDirectionInternal, elfradio.LogContentStatus,
		fmt.Sprintf("Network connectivity: %s", derived)))
	logger.L().Info("network connectivity transition", zap.String("status", string(derived)))
}
