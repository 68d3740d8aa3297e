package ppp

import "time"

// Mode selects which side of the link an interface plays.
type Mode uint8

const (
	ModeClient Mode = iota // Dials out and waits for every protocol
	ModeServer             // Answers and only waits for authentication
)

func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ParseMode parses "client" or "server".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "client":
		return ModeClient, true
	case "server":
		return ModeServer, true
	default:
		return ModeClient, false
	}
}

// LCPConfig holds the negotiation timers and counters.
type LCPConfig struct {
	RestartTimer time.Duration // Restart timer (default 3s)
	MaxConfigure int           // Max Configure-Request transmissions
	MaxTerminate int           // Max Terminate-Request transmissions
	MaxFailure   int           // Max Configure-Nak before Configure-Reject

	// RejectFirst answers a request holding both unacceptable and
	// unrecognised options with Configure-Reject. By default the Nak wins.
	RejectFirst bool
}

// DefaultLCPConfig returns default LCP configuration
func DefaultLCPConfig() LCPConfig {
	return LCPConfig{
		RestartTimer: 3 * time.Second,
		MaxConfigure: 10,
		MaxTerminate: 2,
		MaxFailure:   5,
	}
}

// KeepAliveConfig holds LCP Echo keep-alive configuration
type KeepAliveConfig struct {
	Enabled       bool          // Enable keep-alive
	Interval      time.Duration // Echo interval (default: 30s)
	Timeout       time.Duration // Wait time for reply (default: 5s)
	MaxFailures   int           // Failures before the link is closed (default: 3)
	IdleThreshold time.Duration // Skip echo if active within (default: 60s)
}

// DefaultKeepAliveConfig returns default keep-alive configuration
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Enabled:       true,
		Interval:      30 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   3,
		IdleThreshold: 60 * time.Second,
	}
}

// Config holds interface configuration.
type Config struct {
	Name        string
	Mode        Mode
	MRU         int           // Local MRU (default 1500)
	AutoRedial  bool          // Redial after a lost connection
	RedialDelay time.Duration // Delay before redialing (default 1s)
	MaxRedials  int           // Consecutive redial attempts allowed (default 3)

	LCP       LCPConfig
	KeepAlive KeepAliveConfig
}

// DefaultConfig returns default interface configuration
func DefaultConfig() Config {
	return Config{
		Name:        "ppp0",
		Mode:        ModeClient,
		MRU:         DefaultMRU,
		RedialDelay: time.Second,
		MaxRedials:  3,
		LCP:         DefaultLCPConfig(),
		KeepAlive:   DefaultKeepAliveConfig(),
	}
}

// AuthStatus is the progress of one direction of authentication.
type AuthStatus uint8

const (
	AuthNotAuthenticated AuthStatus = iota
	AuthRequested
	AuthAccepted
	AuthDenied
)

func (s AuthStatus) String() string {
	switch s {
	case AuthNotAuthenticated:
		return "NotAuthenticated"
	case AuthRequested:
		return "Requested"
	case AuthAccepted:
		return "Accepted"
	case AuthDenied:
		return "Denied"
	default:
		return "Unknown"
	}
}
