package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pulsedev/pulse/pkg/config"
	"go.uber.org/zap"
)

// Monitor probes the distribution endpoint periodically so network-gated
// work can be deferred while the agent is offline. A single probe success
// flips the state back to online; it takes FailureThreshold consecutive
// failures to flip it to offline.
type Monitor struct {
	logger     *zap.Logger
	config     config.NetmonConfig
	httpClient *http.Client
	probeURL   string

	mu        sync.RWMutex
	online    bool
	failures  int
	lastCheck time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitor(logger *zap.Logger, config config.NetmonConfig, probeURL string) *Monitor {
	if config.ProbeURL != "" {
		probeURL = config.ProbeURL
	}
	return &Monitor{
		logger: logger,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		probeURL: probeURL,
		online:   true,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	if !m.config.Enabled {
		m.logger.Info("network monitor is disabled")
		return
	}
	m.wg.Add(1)
	go m.run()
	m.logger.Info("network monitor started",
		zap.String("probe_url", m.probeURL),
		zap.Duration("interval", m.config.Interval))
}

func (m *Monitor) Stop() {
	if !m.config.Enabled {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("network monitor stopped")
}

// Online reports the last probed state. With the monitor disabled the agent
// is assumed online.
func (m *Monitor) Online() bool {
	if !m.config.Enabled {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastCheck returns when the state was last probed.
func (m *Monitor) LastCheck() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.checkOnce()

	for {
		select {
		case <-ticker.C:
			m.checkOnce()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	reachable := m.probe(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = time.Now()

	if reachable {
		if !m.online {
			m.logger.Info("network connectivity recovered",
				zap.Int("failures_before_recovery", m.failures))
		}
		m.online = true
		m.failures = 0
		return
	}

	m.failures++
	if m.online && m.failures >= m.config.FailureThreshold {
		m.online = false
		m.logger.Warn("network marked offline",
			zap.Int("failures", m.failures),
			zap.String("probe_url", m.probeURL))
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Error("failed to create probe request", zap.String("probe_url", m.probeURL), zap.Error(err))
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Debug("network probe failed", zap.String("probe_url", m.probeURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		m.logger.Debug("network probe returned server error", zap.Int("status_code", resp.StatusCode))
		return false
	}

	return true
}
