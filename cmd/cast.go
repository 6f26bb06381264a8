package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/framecast"
)

var (
	flagCastAddr string
	flagCastDir  string
)

var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Broadcast raw frames over WebSocket",
	Long: `Broadcast JPEG frames to every connected WebSocket client, with
no rooms and no negotiation. A fallback for clients without WebRTC.

Examples:
  lanpeek cast --dir ./frames
  lanpeek cast --dir ./frames --addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCast()
	},
}

func init() {
	castCmd.Flags().StringVar(&flagCastAddr, "addr", "", "listen address (overrides config)")
	castCmd.Flags().StringVar(&flagCastDir, "dir", "", "directory of JPEG frames to cycle through")
	castCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(castCmd)
}

func runCast() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	addr := cfg.Broadcast.Address
	if flagCastAddr != "" {
		addr = flagCastAddr
	}

	source, err := framecast.NewDirSource(flagCastDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("casting frames", zap.String("addr", addr), zap.String("dir", flagCastDir))
	server := framecast.NewServer(source, cfg.Broadcast.FrameInterval, log)
	err = server.Serve(ctx, addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
