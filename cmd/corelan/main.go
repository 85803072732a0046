// Command corelan runs the UDP Stream Receiver and LAN Input Server/Client
// described by this module, wiring them to the shared config, logging,
// metrics, and event-bus layers. Grounded on the teacher's
// cmd/shadowmesh-daemon/main.go (load config, build logger, construct the
// manager, handle signals, block until shutdown), adapted to a
// github.com/spf13/cobra command tree per the CLI's documented ambient
// stack decision.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/config"
	"github.com/meshdesk/corelan/internal/diagbridge"
	"github.com/meshdesk/corelan/internal/eventbus"
	"github.com/meshdesk/corelan/internal/metrics"
	"github.com/meshdesk/corelan/internal/obs"
	"github.com/meshdesk/corelan/internal/statslog"
	"github.com/meshdesk/corelan/pkg/inject"
	"github.com/meshdesk/corelan/pkg/inputrelay"
	"github.com/meshdesk/corelan/pkg/streamid"
	"github.com/meshdesk/corelan/pkg/udpstream"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "corelan",
		Short:   "UDP stream receiver and LAN input relay",
		Version: version,
	}
	root.AddCommand(newServeCmd(), newClientCmd(), newConfigCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "manage the YAML configuration file"}
	var out string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(config.Default(), out)
		},
	}
	initCmd.Flags().StringVar(&out, "out", "corelan.yaml", "output path")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func newServeCmd() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the UDP stream receiver and LAN input server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "corelan.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "bind a Prometheus /metrics endpoint here (empty disables it)")
	return cmd
}

func newClientCmd() *cobra.Command {
	var host, token, sessionID, streamID string
	var port, connectTimeoutMs int

	cmd := &cobra.Command{
		Use:   "client",
		Short: "dial a peer LAN input server and send a ping event every 5s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(host, port, token, sessionID, streamID, connectTimeoutMs)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "peer host")
	cmd.Flags().IntVar(&port, "port", 5505, "peer port")
	cmd.Flags().StringVar(&token, "token", "", "shared auth token")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to present")
	cmd.Flags().StringVar(&streamID, "stream-id", "", "stream id to present")
	cmd.Flags().IntVar(&connectTimeoutMs, "connect-timeout-ms", 3000, "connect timeout in milliseconds")
	cmd.MarkFlagRequired("token")
	return cmd
}

func runServe(configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := obs.NewLogger("corelan", obs.Config{
		Level:      parseLevel(cfg.Logging.Level),
		OutputFile: cfg.Logging.OutputFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("corelan: failed to build logger: %w", err)
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	udpMetrics := metrics.NewUDPReceiver(reg, "corelan")
	inputMetrics := metrics.NewInputServer(reg, "corelan")

	bus, closeBus, err := buildBus(cfg.RedisBus, log)
	if err != nil {
		return err
	}
	defer closeBus()

	var store *statslog.Store
	if cfg.StatsLog.Enabled {
		store, err = statslog.New(statslog.Config{
			Host: cfg.StatsLog.Host, Port: cfg.StatsLog.Port, User: cfg.StatsLog.User,
			Password: cfg.StatsLog.Password, DBName: cfg.StatsLog.DBName, SSLMode: cfg.StatsLog.SSLMode,
		}, log)
		if err != nil {
			return err
		}
		defer store.Close()

		if localBus, ok := bus.(*eventbus.LocalBus); ok {
			localBus.Subscribe(func(topic string, payload any) {
				switch ev := payload.(type) {
				case udpstream.StatsEvent:
					if err := store.AppendUDPReceiverStats(statslog.UDPReceiverSnapshot{
						StreamID: ev.StreamID, PacketsReceived: ev.PacketsReceived,
						FramesCompleted: ev.FramesCompleted,
						FramesDropped:   ev.FramesDroppedTimeout + ev.FramesDroppedQueue + ev.FramesDroppedGap,
						JitterMs:        ev.JitterMs, PendingFrames: ev.PendingFrames,
						LossPct: ev.LossPct, FpsAssembled: ev.FpsAssembled, BitrateKbps: ev.BitrateKbps,
					}); err != nil {
						log.Warnw("failed to persist udp receiver stats", "error", err)
					}
				case inputrelay.StatsEvent:
					if err := store.AppendInputServerStats(statslog.InputServerSnapshot{
						Authenticated: int(ev.AuthenticatedClients), EventsReceived: ev.EventsReceived,
						EventsInjected: ev.EventsInjected,
						EventsDropped:  ev.EventsDroppedRate + ev.EventsDroppedInactive,
						InjectErrors:   ev.InjectErrors,
					}); err != nil {
						log.Warnw("failed to persist input server stats", "error", err)
					}
				}
			})
		}
	}

	var bridge *diagbridge.Bridge
	if cfg.DiagBridge.Enabled {
		bridge = diagbridge.New(cfg.DiagBridge.Addr, log)
		if localBus, ok := bus.(*eventbus.LocalBus); ok {
			bridge.Subscribe(localBus)
		}
		bridge.Start()
		defer bridge.Stop(context.Background())
	}

	var recvStreamID *streamid.StreamID
	if cfg.UDPReceiver.StreamID != "" {
		id, err := streamid.Parse(cfg.UDPReceiver.StreamID)
		if err != nil {
			return fmt.Errorf("corelan: invalid udp_receiver.stream_id: %w", err)
		}
		recvStreamID = &id
	}

	receiver := udpstream.New(udpstream.Config{
		ListenHost:       cfg.UDPReceiver.ListenHost,
		ListenPort:       cfg.UDPReceiver.ListenPort,
		StreamID:         recvStreamID,
		MaxFrameAgeMs:    cfg.UDPReceiver.MaxFrameAgeMs,
		MaxPendingFrames: cfg.UDPReceiver.MaxPendingFrames,
		StatsIntervalMs:  cfg.UDPReceiver.StatsIntervalMs,
	}, bus, udpMetrics, log.Named("udpstream"))
	if err := receiver.Start(); err != nil {
		return err
	}
	defer receiver.Stop()

	injector := inject.New()
	server := inputrelay.New(inputrelay.Config{
		BindHost:           cfg.InputServer.BindHost,
		BindPort:           cfg.InputServer.BindPort,
		AuthToken:          cfg.InputServer.Token,
		SessionID:          cfg.InputServer.SessionID,
		StreamID:           cfg.InputServer.StreamID,
		MaxEventsPerSecond: cfg.InputServer.MaxEventsPerSecond,
		StatsIntervalMs:    cfg.InputServer.StatsIntervalMs,
	}, bus, inputMetrics, injector, log.Named("inputrelay"))
	server.SetSessionActive(true)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnw("metrics server stopped", "error", err)
			}
		}()
		defer httpSrv.Shutdown(context.Background())
	}

	log.Infow("corelan serve started",
		"udp_listen", fmt.Sprintf("%s:%d", cfg.UDPReceiver.ListenHost, cfg.UDPReceiver.ListenPort),
		"input_bind", fmt.Sprintf("%s:%d", cfg.InputServer.BindHost, cfg.InputServer.BindPort),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Infow("corelan shutting down")
	return nil
}

func runClient(host string, port int, token, sessionID, streamID string, connectTimeoutMs int) error {
	log := obs.NewNop()
	bus := eventbus.NopBus{}

	c, err := inputrelay.Start(host, port, token, sessionID, streamID, connectTimeoutMs, bus, log)
	if err != nil {
		return err
	}
	defer c.Stop()

	fmt.Println("connected; press ctrl+c to disconnect")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			seq++
			_ = c.SendEvent(inputrelay.Event{Type: inputrelay.TypePing, Seq: seq})
		}
	}
}

func buildBus(cfg config.RedisBusConfig, log *zap.SugaredLogger) (eventbus.Bus, func(), error) {
	if !cfg.Enabled {
		return eventbus.NewLocalBus(), func() {}, nil
	}
	rb, err := eventbus.NewRedisBus(eventbus.RedisBusConfig{
		Host: cfg.Host, Port: cfg.Port, Password: cfg.Password, DB: cfg.DB, Channel: cfg.Channel,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return rb, func() { rb.Close() }, nil
}

func parseLevel(s string) obs.Level {
	switch s {
	case "debug":
		return obs.Debug
	case "warn":
		return obs.Warn
	case "error":
		return obs.Error
	default:
		return obs.Info
	}
}
