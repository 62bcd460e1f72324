package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Zereker/hnmp"
	"github.com/Zereker/hnmp/internal/config"
	"github.com/Zereker/hnmp/internal/packetlog"
)

type connectFlags struct {
	host      string
	port      int
	user      string
	password  string
	traceData bool
}

func connectCmd(flags *globalFlags) *cobra.Command {
	var cf connectFlags

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a server and print the session",
		Long: `Connect to a HackNet multiplayer server, optionally log in, and
print every event until the server ends the session or Ctrl-C.

Examples:
  hnmp connect --user neo --password zion
  hnmp connect --host 10.0.0.5 --port 27015`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, flags, cf)
		},
	}

	cmd.Flags().StringVarP(&cf.host, "host", "H", "", "Server address (default from config)")
	cmd.Flags().IntVarP(&cf.port, "port", "p", 0, "Server port (default from config)")
	cmd.Flags().StringVarP(&cf.user, "user", "u", "", "Log in as this user")
	cmd.Flags().StringVar(&cf.password, "password", "", "Password (default $HNMP_PASSWORD)")
	cmd.Flags().BoolVar(&cf.traceData, "trace-data", false, "Include message fields in the packet log")

	return cmd
}

func runConnect(cmd *cobra.Command, flags *globalFlags, cf connectFlags) error {
	// an explicit config path is created with defaults on first use
	var created bool
	if flags.configPath != "" {
		var err error
		if created, err = config.EnsureFile(flags.configPath); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if created {
		slog.Info("wrote default config", "path", flags.configPath)
	}
	if cf.host != "" {
		cfg.Server.Address = cf.host
	}
	if cf.port != 0 {
		cfg.Server.Port = cf.port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(cfg.ConnOptions(),
		hnmp.HandlerOption(newConsole(cmd.OutOrStdout())),
		hnmp.LoggerOption(slog.Default()),
	)

	if path := cfg.Telemetry.PacketLogPath; path != "" {
		var plOpts []packetlog.Option
		if cf.traceData {
			plOpts = append(plOpts, packetlog.WithData())
		}
		pl, err := packetlog.New(path, runID, plOpts...)
		if err != nil {
			return err
		}
		defer func() { _ = pl.Close() }()
		opts = append(opts, hnmp.TracerOption(pl))
		slog.Info("packet log enabled", "path", path)
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		shutdown, err := serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
		opts = append(opts, hnmp.MetricsOption(reg))
	}

	conn, err := hnmp.NewConn(opts...)
	if err != nil {
		return err
	}

	if err := conn.Dial(ctx, cfg.Server.Address, cfg.Server.Port); err != nil {
		if errors.Is(err, hnmp.ErrConnectionRefused) {
			// already reported by the console
			return errors.New("no server listening")
		}
		return err
	}

	if cf.password == "" {
		cf.password = os.Getenv("HNMP_PASSWORD")
	}
	if cf.user != "" {
		if err := conn.Login(cf.user, cf.password); err != nil {
			conn.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, closing connection")
		conn.Close()
	case <-conn.Done():
	}

	if err := conn.Wait(); err != nil {
		slog.Warn("connection ended with error", "error", err)
	}
	return nil
}

// serveMetrics exposes reg on addr under /metrics. The returned function
// stops the server.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "metrics listener")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("metrics enabled", "addr", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
