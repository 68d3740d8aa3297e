package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codelaboratoryltd/ppp/pkg/device"
	"github.com/codelaboratoryltd/ppp/pkg/metrics"
	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a PPP link over an established PPPoE session",
	RunE:  runLink,
}

var (
	ethInterface string
	localMAC     string
	peerMAC      string
	sessionID    uint16
)

func init() {
	runCmd.Flags().StringVarP(&ethInterface, "interface", "i", "eth0",
		"Ethernet interface carrying the PPPoE session")
	runCmd.Flags().StringVar(&localMAC, "local-mac", "",
		"Local MAC address (defaults to the interface address)")
	runCmd.Flags().StringVar(&peerMAC, "peer-mac", "",
		"Peer MAC address")
	runCmd.Flags().Uint16Var(&sessionID, "session-id", 0,
		"PPPoE session ID from discovery")
}

func runLink(cmd *cobra.Command, args []string) error {
	logger, config, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	peer, err := net.ParseMAC(peerMAC)
	if err != nil {
		return fmt.Errorf("invalid --peer-mac: %w", err)
	}
	local, err := resolveLocalMAC(ethInterface, localMAC)
	if err != nil {
		return err
	}

	dev, err := device.NewPPPoE(device.PPPoEConfig{
		Interface: ethInterface,
		LocalMAC:  local,
		PeerMAC:   peer,
		SessionID: sessionID,
	}, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	if config.MRU > dev.MTU() {
		logger.Info("Clamping MRU to PPPoE session MTU",
			zap.Int("mru", config.MRU),
			zap.Int("mtu", dev.MTU()),
		)
		config.MRU = dev.MTU()
	}

	m := metrics.New(logger)
	if err := m.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	iface, err := newInterface(config, dev.MTU(), logger, m)
	if err != nil {
		return err
	}
	iface.SetDevice(dev)
	dev.Attach(iface)
	iface.Init()
	m.Track(iface)

	logger.Info("Starting pppd",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("interface", ethInterface),
		zap.Uint16("session_id", sessionID),
		zap.String("mode", config.Mode.String()),
	)

	return serve(logger, m, config, 0, iface)
}

// serve brings the interfaces up and runs until a signal arrives or, when
// duration is set, until it elapses. The links are closed before returning.
func serve(logger *zap.Logger, m *metrics.Metrics, config ppp.Config, duration time.Duration, ifaces ...*ppp.Interface) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, metricsAddr, m, logger)
		})
	}

	g.Go(func() error {
		m.StartCollector(10*time.Second, gctx.Done())
		return nil
	})

	for _, iface := range ifaces {
		g.Go(func() error {
			watchReports(gctx, iface, logger)
			return nil
		})
	}

	for _, iface := range ifaces {
		iface.Up()
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownTimeout := config.LCP.RestartTimer * time.Duration(config.LCP.MaxTerminate+1)
		for _, iface := range ifaces {
			shutdown(iface, shutdownTimeout, logger)
			m.Untrack(iface)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("pppd stopped")
	return nil
}

// watchReports logs connection reports until ctx is done.
func watchReports(ctx context.Context, iface *ppp.Interface, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-iface.Reports():
			logger.Info("Link report",
				zap.String("interface", iface.Name()),
				zap.String("report", r.Code.String()),
				zap.Time("at", r.Timestamp),
			)
		}
	}
}

// shutdown closes the link, waits for the Terminate exchange and deletes
// the interface.
func shutdown(iface *ppp.Interface, timeout time.Duration, logger *zap.Logger) {
	iface.Down()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch iface.StateMachine().State() {
		case ppp.StateInitial, ppp.StateClosed, ppp.StateStarting, ppp.StateStopped:
			iface.Delete()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	logger.Warn("Link did not terminate in time",
		zap.String("interface", iface.Name()),
		zap.String("state", iface.StateMachine().State().String()),
	)
	iface.Delete()
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// resolveLocalMAC parses configured, falling back to the interface address.
func resolveLocalMAC(ifaceName, configured string) (net.HardwareAddr, error) {
	if configured != "" {
		mac, err := net.ParseMAC(configured)
		if err != nil {
			return nil, fmt.Errorf("invalid --local-mac: %w", err)
		}
		return mac, nil
	}

	netIface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ifaceName, err)
	}
	if len(netIface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("interface %s has no Ethernet address", ifaceName)
	}
	return netIface.HardwareAddr, nil
}
