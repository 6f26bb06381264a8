package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/discovery"
	"github.com/quyphuc2111/lanpeek/pkg/metrics"
	sig "github.com/quyphuc2111/lanpeek/pkg/signal"
)

var (
	flagServeAddr     string
	flagServeAnnounce bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server that hosts and viewers connect to.

Examples:
  lanpeek serve
  lanpeek serve --addr :9000 --announce`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&flagServeAnnounce, "announce", false, "announce the server over mDNS")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	addr := cfg.Signal.Address
	if flagServeAddr != "" {
		addr = flagServeAddr
	}

	var collector *metrics.Collector
	if cfg.Monitoring.PrometheusEnabled {
		collector = metrics.NewCollector()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagServeAnnounce {
		announcer, err := discovery.Announce(ctx, cfg.Discovery.ServiceName)
		if err != nil {
			log.Warn("mdns announce failed", zap.Error(err))
		} else {
			defer announcer.Close()
			log.Info("announcing over mdns", zap.String("name", cfg.Discovery.ServiceName))
		}
	}

	server := sig.NewServer(log, collector)
	if err := server.Serve(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
