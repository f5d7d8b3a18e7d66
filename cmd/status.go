package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/rendezvous/transport"
)

var statusTimeout time.Duration

var statusCmd = &cobra.Command{
	Use:   "status ADDR [ADDR...]",
	Short: "Query the status server of running nodes",
	Long: `Query nodes started with --status-addr and print their barrier state and
per-peer liveness. Exits 1 if any node cannot be reached.

Examples:
  rendezvous status 10.0.0.1:7070 10.0.0.2:7070`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Per-node request timeout")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, addr := range args {
		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		report, err := transport.FetchStatus(ctx, addr)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", addr, err)
			failed++
			continue
		}
		printReport(out, addr, report)
	}

	if failed > 0 {
		return fatal(fmt.Errorf("%d of %d nodes unreachable", failed, len(args)))
	}
	return nil
}

func printReport(w io.Writer, addr string, r transport.StatusReport) {
	health := "NOT_SERVING"
	if r.Serving {
		health = "SERVING"
	}
	fmt.Fprintf(w, "%s %s (%s) %s after %v, health %s\n",
		headerStyle.Render(r.Hostname), dimStyle.Render(addr), dimStyle.Render(r.RunID),
		stateStyle(r.State).Render(r.State), r.Elapsed.Round(time.Millisecond), health)

	for _, p := range r.Peers {
		if p.Self {
			continue
		}
		fmt.Fprintf(w, "  %-12s %-22s heartbeat %-3s ack %s\n",
			p.Hostname, p.Addr, mark(p.HeartbeatReceived), mark(p.AckReceived))
	}
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
