package ppp

// This file implements link keep-alive using LCP Echo per RFC 1661 Section 5.8.

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EchoMonitor sends Echo-Requests on an idle opened link and closes the link
// when the peer stops answering.
type EchoMonitor struct {
	iface   *Interface
	config  KeepAliveConfig
	logger  *zap.Logger
	metrics MetricsReporter

	// State
	pendingID    uint8
	pendingEcho  bool
	failures     int
	lastEchoSent time.Time
	lastActivity time.Time
	latency      time.Duration

	// Control
	stopCh  chan struct{}
	doneCh  chan struct{}
	running int32 // atomic

	mu sync.Mutex
}

func newEchoMonitor(iface *Interface, config KeepAliveConfig, logger *zap.Logger, metrics MetricsReporter) *EchoMonitor {
	return &EchoMonitor{
		iface:        iface,
		config:       config,
		logger:       logger,
		metrics:      metrics,
		lastActivity: time.Now(),
	}
}

// Start starts the monitor loop.
func (m *EchoMonitor) Start() {
	if !m.config.Enabled || m.config.Interval <= 0 {
		return
	}

	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return // Already running
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.runLoop()

	m.logger.Debug("Echo monitor started",
		zap.String("interface", m.iface.ID()),
		zap.Duration("interval", m.config.Interval),
		zap.Int("max_failures", m.config.MaxFailures),
	)
}

// Stop stops the monitor loop and waits for it to exit.
func (m *EchoMonitor) Stop() {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return // Not running
	}

	close(m.stopCh)
	<-m.doneCh

	m.logger.Debug("Echo monitor stopped", zap.String("interface", m.iface.ID()))
}

func (m *EchoMonitor) runLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// touch records link activity.
func (m *EchoMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// OnEchoReply is called when the Echo-Reply for identifier arrives.
func (m *EchoMonitor) OnEchoReply(identifier uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pendingEcho || m.pendingID != identifier {
		return
	}

	m.latency = time.Since(m.lastEchoSent)
	m.pendingEcho = false
	m.failures = 0
	m.metrics.RecordEchoLatency(m.iface.ID(), m.latency)

	m.logger.Debug("Echo reply received",
		zap.String("interface", m.iface.ID()),
		zap.Duration("latency", m.latency),
	)
}

// Latency returns the last measured round-trip time.
func (m *EchoMonitor) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

// Failures returns the number of consecutive unanswered echoes.
func (m *EchoMonitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// IsDead reports whether the peer exceeded the failure limit.
func (m *EchoMonitor) IsDead() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures >= m.config.MaxFailures
}

// Check runs one keep-alive round: it expires an unanswered echo, closes a
// dead link and otherwise sends a new echo if the link has been idle.
func (m *EchoMonitor) Check() {
	m.mu.Lock()

	now := time.Now()
	if m.pendingEcho && now.Sub(m.lastEchoSent) > m.config.Timeout {
		m.failures++
		m.pendingEcho = false

		m.logger.Debug("Echo timeout",
			zap.String("interface", m.iface.ID()),
			zap.Int("failures", m.failures),
		)

		if m.failures >= m.config.MaxFailures {
			m.failures = 0
			m.mu.Unlock()

			m.logger.Warn("Peer not answering echoes, closing link",
				zap.String("interface", m.iface.ID()),
			)
			m.iface.StateMachine().Close()
			return
		}
	}

	if m.pendingEcho || now.Sub(m.lastActivity) < m.config.IdleThreshold {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	id, ok := m.iface.StateMachine().SendEchoRequest()
	if !ok {
		return
	}

	m.mu.Lock()
	m.pendingID = id
	m.pendingEcho = true
	m.lastEchoSent = now
	m.mu.Unlock()

	m.logger.Debug("Echo request sent",
		zap.String("interface", m.iface.ID()),
		zap.Uint8("identifier", id),
	)
}
