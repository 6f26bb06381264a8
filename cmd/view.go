package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sig "github.com/quyphuc2111/lanpeek/pkg/signal"
	"github.com/quyphuc2111/lanpeek/pkg/view"
)

var (
	flagViewServer string
	flagViewOutput string
)

var viewCmd = &cobra.Command{
	Use:   "view <room-code>",
	Short: "Join a room and receive the stream",
	Long: `Join a room by its code and receive the host's stream. The video
is written to an IVF file that any VP8-capable player can open.

Examples:
  lanpeek view AB12CD
  lanpeek view ab12cd --server ws://192.168.1.10:8080/ws --output session.ivf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runView(args[0])
	},
}

func init() {
	viewCmd.Flags().StringVar(&flagViewServer, "server", "ws://127.0.0.1:8080/ws", "signaling server URL")
	viewCmd.Flags().StringVarP(&flagViewOutput, "output", "o", "", "IVF output file (discard if empty)")
	rootCmd.AddCommand(viewCmd)
}

func runView(code string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	code = sig.NormalizeRoomCode(code)
	if !sig.ValidateRoomCode(code) {
		return fmt.Errorf("invalid room code %q", code)
	}

	var sink view.TrackSink = view.DiscardSink{}
	if flagViewOutput != "" {
		sink, err = view.NewIVFSink(flagViewOutput)
		if err != nil {
			return err
		}
	}

	conn, err := sig.Dial(flagViewServer, log)
	if err != nil {
		return err
	}

	viewer := view.NewViewer(cfg, conn, sink, log)
	viewer.SetStateHandler(func(state string) {
		fmt.Println("connection:", state)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("joining room", zap.String("code", code))
	if err := viewer.Run(ctx, code); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if flagViewOutput != "" {
		fmt.Println("recording saved to", flagViewOutput)
	}
	return nil
}
