package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ystepanoff/nowhub"
	"github.com/ystepanoff/nowhub/logger"
	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/sim"
	"github.com/ystepanoff/nowhub/telemetry"
	"github.com/ystepanoff/nowhub/transport"
)

type runOptions struct {
	simulate    bool
	newNodes    []string
	reportEvery time.Duration
}

func newRunCmd(cfg *nowhub.Config) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hub",
		Long: "Run the hub on the in-memory radio until interrupted.\n" +
			"With --simulate every stored node is emulated, and each --sim-new\n" +
			"node is paired through a sync-mode session at startup.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address of the Prometheus endpoint, empty to disable")
	flags.StringVar(&cfg.MQTTURL, "mqtt-url", cfg.MQTTURL, "MQTT broker URL, empty to disable")
	flags.StringVar(&cfg.MQTTTopicPrefix, "mqtt-prefix", cfg.MQTTTopicPrefix, "MQTT topic prefix")
	flags.DurationVar(&cfg.SyncTimeout, "sync-timeout", cfg.SyncTimeout, "length of a sync-mode session")
	flags.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "liveness ping period, 0 to disable")
	flags.BoolVar(&opts.simulate, "simulate", false, "emulate the stored nodes")
	flags.StringSliceVar(&opts.newNodes, "sim-new", nil, "emulated node to pair at startup (thermometer or relay), repeatable")
	flags.DurationVar(&opts.reportEvery, "sim-report", 10*time.Second, "telemetry period of emulated thermometers")
	return cmd
}

func run(ctx context.Context, cfg nowhub.Config, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hubOpts := []nowhub.Option{
		nowhub.WithLogger(log),
		nowhub.WithMetrics(telemetry.NewMetrics("nowhub", promReg)),
		nowhub.WithIndicator(logIndicator{log: logger.WithComponent(log, "indicator")}),
	}

	if cfg.MQTTURL != "" {
		sink, err := telemetry.NewMQTTSink(cfg.MQTTURL, cfg.MQTTClientID, cfg.MQTTTopicPrefix, cfg.MQTTTimeout)
		if err != nil {
			return fmt.Errorf("connect to MQTT broker %s: %w", cfg.MQTTURL, err)
		}
		defer sink.Close()
		hubOpts = append(hubOpts, nowhub.WithSink(sink))
		log.Info().Str("url", cfg.MQTTURL).Str("prefix", cfg.MQTTTopicPrefix).Msg("publishing to MQTT")
	}

	st := newStore(cfg)
	hub, driver := nowhub.NewSimulated(cfg, st, hubOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(promReg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.simulate {
		air := sim.NewAir(driver, log)
		known, err := st.LoadKnownNodes()
		if err != nil {
			log.Warn().Err(err).Msg("load known nodes")
		}
		for _, n := range known {
			node := emulate(n.Address, n.Type, n.Firmware)
			node.MarkPaired()
			air.Attach(node)
		}
		fresh, err := newNodes(opts.newNodes, len(known))
		if err != nil {
			return err
		}
		for _, n := range fresh {
			air.Attach(n)
		}
		g.Go(func() error { return air.Run(gctx, opts.reportEvery) })
		g.Go(func() error { return pairAll(gctx, hub, fresh, log) })
	}

	err = g.Wait()
	if errors.Is(err, transport.ErrRadioUnrecoverable) {
		log.Error().Err(err).Msg("radio unrecoverable, exiting for restart")
	}
	return err
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func emulate(addr protocol.Address, t protocol.NodeType, fw protocol.FirmwareVersion) *sim.Node {
	if t == protocol.NodeTypeRelay {
		return sim.NewRelay(addr, fw)
	}
	return sim.NewThermometer(addr, fw)
}

func newNodes(kinds []string, offset int) ([]*sim.Node, error) {
	nodes := make([]*sim.Node, 0, len(kinds))
	for i, kind := range kinds {
		// Locally administered unicast addresses.
		addr := protocol.Address{0x02, 0x4E, 0x48, 0x00, 0x00, byte(offset + i + 1)}
		fw := protocol.FirmwareVersion{1, 0, 0}
		switch kind {
		case "thermometer", "temperature-humidity":
			nodes = append(nodes, sim.NewThermometer(addr, fw))
		case "relay":
			nodes = append(nodes, sim.NewRelay(addr, fw))
		default:
			return nil, fmt.Errorf("unknown emulated node %q", kind)
		}
	}
	return nodes, nil
}

// pairAll runs one sync-mode session per node, one after the other.
func pairAll(ctx context.Context, hub *nowhub.Hub, nodes []*sim.Node, log zerolog.Logger) error {
	for _, n := range nodes {
		n.StartPairing()
		if err := hub.EnterSyncMode(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for hub.SyncActive() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
		}
		log.Info().Stringer("addr", n.Address).Bool("paired", n.Paired()).Msg("emulated node pairing finished")
	}
	return nil
}

type logIndicator struct {
	log zerolog.Logger
}

func (l logIndicator) Set(s transport.Status) {
	l.log.Debug().Stringer("status", s).Msg("indicator")
}
