package ppp

import "time"

// ReportCode identifies a connection report.
type ReportCode uint8

const (
	ReportGoingUp ReportCode = iota + 1
	ReportUpSuccessful
	ReportDownSuccessful
	ReportConnectionLost
	ReportDeviceUpFailed
	ReportAuthenticationRequested
	ReportAuthenticationFailed
)

func (c ReportCode) String() string {
	switch c {
	case ReportGoingUp:
		return "GoingUp"
	case ReportUpSuccessful:
		return "UpSuccessful"
	case ReportDownSuccessful:
		return "DownSuccessful"
	case ReportConnectionLost:
		return "ConnectionLost"
	case ReportDeviceUpFailed:
		return "DeviceUpFailed"
	case ReportAuthenticationRequested:
		return "AuthenticationRequested"
	case ReportAuthenticationFailed:
		return "AuthenticationFailed"
	default:
		return "Unknown"
	}
}

// Report is a connection event published by an Interface.
type Report struct {
	InterfaceID string
	Code        ReportCode
	Timestamp   time.Time
}

// MetricsReporter receives link events for observability. Implementations
// must not block.
type MetricsReporter interface {
	RecordStateTransition(ifaceID, from, to string)
	RecordPhaseTransition(ifaceID, from, to string)
	RecordIllegalEvent(ifaceID, state, event string)
	RecordPacketSent(ifaceID, code string)
	RecordPacketReceived(ifaceID, code string)
	RecordMalformedPacket(ifaceID string)
	RecordReport(ifaceID, report string)
	RecordEchoLatency(ifaceID string, latency time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordStateTransition(string, string, string) {}
func (noopMetrics) RecordPhaseTransition(string, string, string) {}
func (noopMetrics) RecordIllegalEvent(string, string, string) {}
func (noopMetrics) RecordPacketSent(string, string) {}
func (noopMetrics) RecordPacketReceived(string, string) {}
func (noopMetrics) RecordMalformedPacket(string) {}
func (noopMetrics) RecordReport(string, string) {}
func (noopMetrics) RecordEchoLatency(string, time.Duration) {}
