package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/logger"
	"github.com/adamgarcia4/rendezvous/node"
)

var (
	simulateFlags  barrierFlags
	simulateNodes  int
	simulateAbsent int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a whole peer set in this process on loopback",
	Long: `Run a barrier between in-process nodes, each on its own loopback UDP port.
Absent nodes are listed in every peer set but never started, so the others
time out waiting for them.

Examples:
  rendezvous simulate --nodes 5 --exit-on-ready
  rendezvous simulate --nodes 3 --absent 1 --timeout 10s -d`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateFlags.register(simulateCmd.Flags())
	simulateCmd.Flags().IntVarP(&simulateNodes, "nodes", "n", 3, "Size of the peer set")
	simulateCmd.Flags().IntVar(&simulateAbsent, "absent", 0, "How many of the nodes never start")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	config, err := simulateFlags.config(cmd.Flags())
	if err != nil {
		return fatal(err)
	}

	logger.Init("sim", true)
	logger.SetDebug(config.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %d nodes on loopback", simulateNodes-simulateAbsent)
	if simulateAbsent > 0 {
		logger.Warnf("%d of %d nodes will never start; the rest will time out", simulateAbsent, simulateNodes)
	}

	m := node.NewManager(config)
	if err := m.CreateCluster(ctx, simulateNodes, simulateAbsent); err != nil {
		return fatal(err)
	}
	defer func() {
		if err := m.StopAll(); err != nil {
			logger.Errorf("Error stopping nodes: %v", err)
		}
	}()

	results := m.RunAll(ctx)
	printResults(cmd.OutOrStdout(), m.Hostnames(), results)

	return exitForAll(results)
}

// exitForAll fails the command when any node did not complete.
func exitForAll(results map[string]barrier.State) error {
	for _, state := range results {
		if err := exitFor(state); err != nil {
			return err
		}
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func stateStyle(state string) lipgloss.Style {
	switch state {
	case barrier.StateComplete.String():
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	case barrier.StateTimedOut.String():
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	}
}

// printResults writes one line per host in peer set order. Hosts with no
// result never started.
func printResults(w io.Writer, hostnames []string, results map[string]barrier.State) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-12s %s", "HOST", "RESULT")))
	for _, h := range hostnames {
		state, ok := results[h]
		if !ok {
			fmt.Fprintf(w, "%-12s %s\n", h, dimStyle.Render("absent"))
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", h, stateStyle(state.String()).Render(state.String()))
	}
}
