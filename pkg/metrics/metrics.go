// Package metrics exports PPP link metrics to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var _ ppp.MetricsReporter = (*Metrics)(nil)

// Source is an interface whose traffic counters and state are collected.
type Source interface {
	ID() string
	Name() string
	Statistics() ppp.Statistics
	StateMachine() *ppp.StateMachine
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// State machine metrics
	stateTransitions *prometheus.CounterVec
	phaseTransitions *prometheus.CounterVec
	illegalEvents    *prometheus.CounterVec
	linkState        *prometheus.GaugeVec
	linkPhase        *prometheus.GaugeVec

	// LCP packet metrics
	packetsSent      *prometheus.CounterVec
	packetsReceived  *prometheus.CounterVec
	malformedPackets *prometheus.CounterVec

	// Connection metrics
	reports     *prometheus.CounterVec
	echoLatency *prometheus.HistogramVec

	// Traffic metrics
	bytesIn    *prometheus.CounterVec
	bytesOut   *prometheus.CounterVec
	packetsIn  *prometheus.CounterVec
	packetsOut *prometheus.CounterVec
	dropped    *prometheus.CounterVec

	// References for collection
	mu        sync.Mutex
	sources   map[string]Source
	lastStats map[string]ppp.Statistics
	logger    *zap.Logger
}

// New creates a new Metrics instance
func New(logger *zap.Logger) *Metrics {
	return &Metrics{
		logger:    logger,
		sources:   make(map[string]Source),
		lastStats: make(map[string]ppp.Statistics),

		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_lcp_state_transitions_total",
				Help: "LCP state transitions by interface and states",
			},
			[]string{"interface", "from", "to"},
		),

		phaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_phase_transitions_total",
				Help: "Link phase transitions by interface and phases",
			},
			[]string{"interface", "from", "to"},
		),

		illegalEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_lcp_illegal_events_total",
				Help: "Events received in a state that does not accept them",
			},
			[]string{"interface", "state", "event"},
		),

		linkState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ppp_lcp_state",
				Help: "Current LCP state (0=Initial .. 9=Opened)",
			},
			[]string{"interface", "name"},
		),

		linkPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ppp_phase",
				Help: "Current link phase (0=Construction/Destruction .. 5=Termination)",
			},
			[]string{"interface", "name"},
		),

		packetsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_lcp_packets_sent_total",
				Help: "LCP packets sent by code",
			},
			[]string{"interface", "code"},
		),

		packetsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_lcp_packets_received_total",
				Help: "LCP packets received by code",
			},
			[]string{"interface", "code"},
		),

		malformedPackets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_lcp_malformed_packets_total",
				Help: "Malformed LCP packets dropped",
			},
			[]string{"interface"},
		),

		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_connection_reports_total",
				Help: "Connection reports by type",
			},
			[]string{"interface", "report"},
		),

		echoLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppp_lcp_echo_latency_seconds",
				Help:    "LCP Echo round-trip time",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"interface"},
		),

		bytesIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_interface_bytes_in_total",
				Help: "Bytes received by interface",
			},
			[]string{"interface", "name"},
		),

		bytesOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_interface_bytes_out_total",
				Help: "Bytes sent by interface",
			},
			[]string{"interface", "name"},
		),

		packetsIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_interface_packets_in_total",
				Help: "Packets received by interface",
			},
			[]string{"interface", "name"},
		),

		packetsOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_interface_packets_out_total",
				Help: "Packets sent by interface",
			},
			[]string{"interface", "name"},
		),

		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppp_interface_dropped_total",
				Help: "Packets dropped by interface",
			},
			[]string{"interface", "name"},
		),
	}
}

// Register registers all metrics with Prometheus
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		// State machine metrics
		m.stateTransitions,
		m.phaseTransitions,
		m.illegalEvents,
		m.linkState,
		m.linkPhase,
		// LCP packet metrics
		m.packetsSent,
		m.packetsReceived,
		m.malformedPackets,
		// Connection metrics
		m.reports,
		m.echoLatency,
		// Traffic metrics
		m.bytesIn,
		m.bytesOut,
		m.packetsIn,
		m.packetsOut,
		m.dropped,
	}

	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			// Ignore already registered errors
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	return nil
}

// --- ppp.MetricsReporter ---

func (m *Metrics) RecordStateTransition(ifaceID, from, to string) {
	m.stateTransitions.WithLabelValues(ifaceID, from, to).Inc()
}

func (m *Metrics) RecordPhaseTransition(ifaceID, from, to string) {
	m.phaseTransitions.WithLabelValues(ifaceID, from, to).Inc()
}

func (m *Metrics) RecordIllegalEvent(ifaceID, state, event string) {
	m.illegalEvents.WithLabelValues(ifaceID, state, event).Inc()
}

func (m *Metrics) RecordPacketSent(ifaceID, code string) {
	m.packetsSent.WithLabelValues(ifaceID, code).Inc()
}

func (m *Metrics) RecordPacketReceived(ifaceID, code string) {
	m.packetsReceived.WithLabelValues(ifaceID, code).Inc()
}

func (m *Metrics) RecordMalformedPacket(ifaceID string) {
	m.malformedPackets.WithLabelValues(ifaceID).Inc()
}

func (m *Metrics) RecordReport(ifaceID, report string) {
	m.reports.WithLabelValues(ifaceID, report).Inc()
}

func (m *Metrics) RecordEchoLatency(ifaceID string, latency time.Duration) {
	m.echoLatency.WithLabelValues(ifaceID).Observe(latency.Seconds())
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Track adds an interface to the periodic collection.
func (m *Metrics) Track(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID()] = s
}

// Untrack removes an interface and its gauges.
func (m *Metrics) Untrack(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, s.ID())
	delete(m.lastStats, s.ID())
	m.linkState.DeleteLabelValues(s.ID(), s.Name())
	m.linkPhase.DeleteLabelValues(s.ID(), s.Name())
}

// Collect updates gauges and traffic counters from tracked interfaces
func (m *Metrics) Collect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sources {
		name := s.Name()
		sm := s.StateMachine()
		m.linkState.WithLabelValues(id, name).Set(float64(sm.State()))
		m.linkPhase.WithLabelValues(id, name).Set(float64(sm.Phase()))

		m.updateTraffic(id, name, s.Statistics())
	}
}

// updateTraffic adds the change since the last collection to the counters
func (m *Metrics) updateTraffic(id, name string, stats ppp.Statistics) {
	last := m.lastStats[id]

	if delta := stats.BytesIn - last.BytesIn; delta > 0 {
		m.bytesIn.WithLabelValues(id, name).Add(float64(delta))
	}
	if delta := stats.BytesOut - last.BytesOut; delta > 0 {
		m.bytesOut.WithLabelValues(id, name).Add(float64(delta))
	}
	if delta := stats.PacketsIn - last.PacketsIn; delta > 0 {
		m.packetsIn.WithLabelValues(id, name).Add(float64(delta))
	}
	if delta := stats.PacketsOut - last.PacketsOut; delta > 0 {
		m.packetsOut.WithLabelValues(id, name).Add(float64(delta))
	}
	if delta := stats.Dropped - last.Dropped; delta > 0 {
		m.dropped.WithLabelValues(id, name).Add(float64(delta))
	}

	m.lastStats[id] = stats
}

// StartCollector starts a background goroutine that collects metrics
func (m *Metrics) StartCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Debug("Metrics collector started", zap.Duration("interval", interval))

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Collect()
		}
	}
}
