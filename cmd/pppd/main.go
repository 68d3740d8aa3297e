package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/codelaboratoryltd/ppp/pkg/metrics"
	"github.com/codelaboratoryltd/ppp/pkg/ppp"
	"github.com/codelaboratoryltd/ppp/pkg/ppp/options"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pppd",
	Short: "PPP link daemon",
	Long: `pppd - PPP link control (RFC 1661)

Negotiates a PPP link over a PPPoE session or an in-memory loopback,
exporting link state and LCP statistics to Prometheus.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pppd version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
	},
}

var (
	configFile  string
	logLevel    string
	metricsAddr string

	// Link configuration
	linkName    string
	linkMode    string
	mru         int
	autoRedial  bool
	redialDelay time.Duration
	maxRedials  int

	// LCP configuration
	restartTimer time.Duration
	maxConfigure int
	maxTerminate int
	maxFailure   int
	rejectFirst  bool

	// Option configuration
	authProto string
	pfc       bool
	acfc      bool

	// Keep-alive configuration
	keepAlive          bool
	keepAliveInterval  time.Duration
	keepAliveTimeout   time.Duration
	keepAliveFailures  int
	keepAliveIdleAfter time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&configFile, "config", "c", "/etc/pppd/config.yaml",
		"Configuration file path")
	flags.StringVarP(&logLevel, "log-level", "l", "info",
		"Log level (debug, info, warn, error)")
	flags.StringVar(&metricsAddr, "metrics-addr", ":9091",
		"Prometheus metrics listen address (empty to disable)")

	defaults := ppp.DefaultConfig()

	// Link flags
	flags.StringVar(&linkName, "name", defaults.Name,
		"Interface name")
	flags.StringVar(&linkMode, "mode", defaults.Mode.String(),
		"Link mode (client, server)")
	flags.IntVar(&mru, "mru", defaults.MRU,
		"Maximum receive unit requested from the peer")
	flags.BoolVar(&autoRedial, "auto-redial", defaults.AutoRedial,
		"Redial after a lost connection")
	flags.DurationVar(&redialDelay, "redial-delay", defaults.RedialDelay,
		"Delay before redialing")
	flags.IntVar(&maxRedials, "max-redials", defaults.MaxRedials,
		"Consecutive redial attempts")

	// LCP flags
	flags.DurationVar(&restartTimer, "restart-timer", defaults.LCP.RestartTimer,
		"Restart timer for Configure/Terminate-Request retransmission")
	flags.IntVar(&maxConfigure, "max-configure", defaults.LCP.MaxConfigure,
		"Configure-Requests sent without reply before giving up")
	flags.IntVar(&maxTerminate, "max-terminate", defaults.LCP.MaxTerminate,
		"Terminate-Requests sent without reply before giving up")
	flags.IntVar(&maxFailure, "max-failure", defaults.LCP.MaxFailure,
		"Configure-Naks sent before rejecting instead")
	flags.BoolVar(&rejectFirst, "reject-first", defaults.LCP.RejectFirst,
		"Send Configure-Reject before Configure-Nak when a request needs both")

	// Option flags
	flags.StringVar(&authProto, "auth", "none",
		"Authentication protocol (none, pap, chap)")
	flags.BoolVar(&pfc, "pfc", false,
		"Request Protocol-Field-Compression")
	flags.BoolVar(&acfc, "acfc", false,
		"Request Address-and-Control-Field-Compression")

	// Keep-alive flags
	flags.BoolVar(&keepAlive, "keepalive", defaults.KeepAlive.Enabled,
		"Send LCP Echo-Requests on an idle link")
	flags.DurationVar(&keepAliveInterval, "keepalive-interval", defaults.KeepAlive.Interval,
		"Keep-alive check interval")
	flags.DurationVar(&keepAliveTimeout, "keepalive-timeout", defaults.KeepAlive.Timeout,
		"Time to wait for an Echo-Reply")
	flags.IntVar(&keepAliveFailures, "keepalive-failures", defaults.KeepAlive.MaxFailures,
		"Unanswered echoes before the link is closed")
	flags.DurationVar(&keepAliveIdleAfter, "keepalive-idle", defaults.KeepAlive.IdleThreshold,
		"Link idle time before echoes are sent")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loopbackCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildConfig assembles the interface configuration from flags.
func buildConfig() (ppp.Config, error) {
	mode, ok := ppp.ParseMode(linkMode)
	if !ok {
		return ppp.Config{}, fmt.Errorf("invalid --mode: %s (must be client or server)", linkMode)
	}
	if mru < options.MinMRU || mru > 0xFFFF {
		return ppp.Config{}, fmt.Errorf("invalid --mru: %d", mru)
	}
	if restartTimer <= 0 {
		return ppp.Config{}, fmt.Errorf("invalid --restart-timer: %s", restartTimer)
	}

	config := ppp.DefaultConfig()
	config.Name = linkName
	config.Mode = mode
	config.MRU = mru
	config.AutoRedial = autoRedial
	config.RedialDelay = redialDelay
	config.MaxRedials = maxRedials

	config.LCP = ppp.LCPConfig{
		RestartTimer: restartTimer,
		MaxConfigure: maxConfigure,
		MaxTerminate: maxTerminate,
		MaxFailure:   maxFailure,
		RejectFirst:  rejectFirst,
	}

	config.KeepAlive = ppp.KeepAliveConfig{
		Enabled:       keepAlive,
		Interval:      keepAliveInterval,
		Timeout:       keepAliveTimeout,
		MaxFailures:   keepAliveFailures,
		IdleThreshold: keepAliveIdleAfter,
	}

	return config, nil
}

// parseAuth maps the --auth flag to a protocol number. Zero means none.
func parseAuth(name string) (uint16, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "pap":
		return ppp.ProtocolPAP, nil
	case "chap":
		return ppp.ProtocolCHAP, nil
	default:
		return 0, fmt.Errorf("invalid --auth: %s (must be none, pap or chap)", name)
	}
}

// newInterface creates an interface with the LCP option handlers the flags
// ask for. maxMRU bounds the MRU accepted from the peer.
func newInterface(config ppp.Config, maxMRU int, logger *zap.Logger, m *metrics.Metrics, opts ...ppp.Option) (*ppp.Interface, error) {
	auth, err := parseAuth(authProto)
	if err != nil {
		return nil, err
	}

	if m != nil {
		opts = append(opts, ppp.WithMetrics(m))
	}
	iface := ppp.NewInterface(config, logger, opts...)

	handlers := []ppp.OptionHandler{
		options.NewMRU(uint16(config.MRU), uint16(maxMRU), iface.SetMRU),
		options.NewMagicNumber(),
		options.NewPFC(pfc),
		options.NewACFC(acfc),
	}

	// The server asks for authentication, the client agrees to it.
	switch {
	case auth == 0:
		handlers = append(handlers, options.NewAuthProtocol(0))
	case config.Mode == ppp.ModeServer:
		handlers = append(handlers, options.NewAuthProtocol(auth, ppp.ProtocolCHAP, ppp.ProtocolPAP))
	default:
		handlers = append(handlers, options.NewAuthProtocol(0, auth))
	}

	if err := options.Register(iface.LCP(), handlers...); err != nil {
		return nil, err
	}
	return iface, nil
}

func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Encoding = "json"

	return config.Build()
}

// loadConfigFile reads a YAML config file and applies values to unset flags.
// CLI flags take precedence over config file values.
func loadConfigFile(cmd *cobra.Command, logger *zap.Logger) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg map[string]string
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	logger.Info("Loaded config file", zap.String("path", configFile), zap.Int("keys", len(cfg)))

	for key, val := range cfg {
		f := cmd.Flags().Lookup(key)
		if f == nil {
			logger.Warn("Unknown config key, skipping", zap.String("key", key))
			continue
		}
		if cmd.Flags().Changed(key) {
			continue
		}
		if err := cmd.Flags().Set(key, val); err != nil {
			logger.Warn("Failed to set config value",
				zap.String("key", key),
				zap.String("value", val),
				zap.Error(err),
			)
		}
	}

	return nil
}

// setup initialises logging and configuration shared by all link commands.
func setup(cmd *cobra.Command) (*zap.Logger, ppp.Config, error) {
	logger, err := initLogger(logLevel)
	if err != nil {
		return nil, ppp.Config{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Load config file before consuming flag values.
	if err := loadConfigFile(cmd, logger); err != nil {
		return nil, ppp.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	config, err := buildConfig()
	if err != nil {
		return nil, ppp.Config{}, err
	}
	return logger, config, nil
}
