package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quyphuc2111/lanpeek/pkg/share"
	sig "github.com/quyphuc2111/lanpeek/pkg/signal"
)

var (
	flagShareServer string
	flagShareCode   string
	flagShareSource string
	flagShareLoop   bool
	flagShareNoTUI  bool
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share a video stream and open a room",
	Long: `Open a room and stream video to every viewer that joins with the
room code. Without --server an embedded signaling server is started.

Examples:
  lanpeek share --source clip.ivf --loop
  lanpeek share --server ws://192.168.1.10:8080/ws --source clip.ivf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare()
	},
}

func init() {
	shareCmd.Flags().StringVar(&flagShareServer, "server", "", "signaling server URL (empty runs one embedded)")
	shareCmd.Flags().StringVar(&flagShareCode, "code", "", "room code (random if empty)")
	shareCmd.Flags().StringVar(&flagShareSource, "source", "", "IVF file to stream")
	shareCmd.Flags().BoolVar(&flagShareLoop, "loop", false, "loop the source file")
	shareCmd.Flags().BoolVar(&flagShareNoTUI, "no-tui", false, "plain log output instead of the TUI")
	rootCmd.AddCommand(shareCmd)
}

func runShare() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	code := sig.NormalizeRoomCode(flagShareCode)
	if code == "" {
		code = sig.GenerateRoomCode()
	} else if !sig.ValidateRoomCode(code) {
		return fmt.Errorf("invalid room code %q", code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	serverURL := flagShareServer
	if serverURL == "" {
		server := sig.NewServer(log, nil)
		group.Go(func() error {
			err := server.Serve(ctx, cfg.Signal.Address)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		serverURL = localServerURL(cfg.Signal.Address)
	}

	conn, err := dialWithRetry(ctx, serverURL, log)
	if err != nil {
		return err
	}

	engine, err := share.NewEngine(cfg, log)
	if err != nil {
		return err
	}
	host := share.NewHost(engine, conn, code, log)

	if flagShareSource != "" {
		source := &share.IVFSource{Path: flagShareSource, Loop: flagShareLoop}
		group.Go(func() error {
			err := source.Stream(ctx, engine)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		err := host.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if flagShareNoTUI {
		log.Info("sharing", zap.String("code", code), zap.String("server", serverURL))
		return group.Wait()
	}

	program := tea.NewProgram(newShareModel(host, serverURL))
	group.Go(func() error {
		_, err := program.Run()
		stop() // quitting the TUI ends the session
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		program.Quit()
		return nil
	})
	return group.Wait()
}

// localServerURL turns a listen address like ":8080" into a dialable
// WebSocket URL.
func localServerURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://127.0.0.1%s/ws", addr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, port))
}
