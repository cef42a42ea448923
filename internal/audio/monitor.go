package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor keeps the process's view of the default output device in step with
// the system. It polls the platform query on a fixed interval and flags the
// registry stale when the default device or device count changes. The actual
// reinitialization is deferred to Resolve, which the sink calls only while
// opening a stream, so a refresh can never race an active render.
type Monitor struct {
	opener   Opener
	query    QueryFunc
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	last  DeviceInfo
	seen  bool
	stale bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(opener Opener, query QueryFunc, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		opener:   opener,
		query:    query,
		interval: interval,
		log:      log.With(slog.String("component", "device-monitor")),
	}
}

// Start launches the background polling loop.
func (m *Monitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}()
}

// Close stops the polling loop.
func (m *Monitor) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// CurrentOutput reports the last observed default device identity.
func (m *Monitor) CurrentOutput() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.ID, m.last.Name
}

// Resolve applies any pending device-registry refresh and returns the device
// identity to open against. Only called at stream-open boundaries.
func (m *Monitor) Resolve() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale {
		if err := m.opener.Reinit(); err != nil {
			m.log.Warn("audio subsystem refresh failed", slog.String("error", err.Error()))
		}
		m.stale = false
	}
	return m.last.ID, m.last.Name
}

// poll is best-effort: any query failure is treated as "no change detected".
func (m *Monitor) poll(ctx context.Context) {
	info, err := m.query(ctx)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seen {
		m.seen = true
		m.last = info
		return
	}
	if info.Name != m.last.Name || info.Count != m.last.Count {
		m.log.Info("output device changed",
			slog.String("from", m.last.Name),
			slog.String("to", info.Name),
			slog.Int("devices", info.Count))
		m.last = info
		m.stale = true
	}
}
