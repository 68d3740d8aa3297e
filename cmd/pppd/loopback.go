package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codelaboratoryltd/ppp/pkg/device"
	"github.com/codelaboratoryltd/ppp/pkg/metrics"
	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Negotiate a client and a server link over an in-memory pipe",
	RunE:  runLoopback,
}

var loopbackDuration time.Duration

func init() {
	loopbackCmd.Flags().DurationVar(&loopbackDuration, "duration", 0,
		"Stop after this long (0 runs until interrupted)")
}

func runLoopback(cmd *cobra.Command, args []string) error {
	logger, config, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m := metrics.New(logger)
	if err := m.Register(); err != nil {
		return err
	}

	pipe := device.NewPipe(ppp.DefaultMRU, 64, logger)
	defer pipe.Close()

	clientConfig := config
	clientConfig.Name = config.Name + "-client"
	clientConfig.Mode = ppp.ModeClient

	serverConfig := config
	serverConfig.Name = config.Name + "-server"
	serverConfig.Mode = ppp.ModeServer

	client, err := newInterface(clientConfig, ppp.DefaultMRU, logger.With(zap.String("side", "client")), m)
	if err != nil {
		return err
	}
	server, err := newInterface(serverConfig, ppp.DefaultMRU, logger.With(zap.String("side", "server")), m)
	if err != nil {
		return err
	}

	for _, link := range []struct {
		iface *ppp.Interface
		ep    *device.Endpoint
	}{{client, pipe.A()}, {server, pipe.B()}} {
		link.iface.SetDevice(link.ep)
		link.ep.Attach(link.iface)
		link.iface.Init()
		m.Track(link.iface)
	}

	logger.Info("Starting loopback link",
		zap.String("version", version),
		zap.Duration("duration", loopbackDuration),
	)

	return serve(logger, m, config, loopbackDuration, client, server)
}
