package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/quyphuc2111/lanpeek/pkg/discovery"
)

var flagScanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find hosts on the local network",
	Long: `Scan the local network for machines that could be running a
signaling server. mDNS is tried first, then a TCP sweep of the subnet.

Examples:
  lanpeek scan
  lanpeek scan --timeout 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan()
	},
}

func init() {
	scanCmd.Flags().DurationVar(&flagScanTimeout, "timeout", 30*time.Second, "overall scan timeout")
	rootCmd.AddCommand(scanCmd)
}

func runScan() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagScanTimeout)
	defer cancel()

	fmt.Println("Scanning local network...")
	hosts, err := discovery.NewScanner(cfg, log).Scan(ctx)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Println("No hosts found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Address", "Hostname", "Source"})
	for _, h := range hosts {
		name := h.Hostname
		if name == "" {
			name = "-"
		}
		t.AppendRow(table.Row{h.Addr, name, h.Source})
	}
	t.Render()
	return nil
}
