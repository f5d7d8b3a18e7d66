package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/logger"
	"github.com/adamgarcia4/rendezvous/node"
)

var runFlags barrierFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the barrier with the hosts in the peer list",
	Long: `Join the barrier. Every host in the peer list must run this command with
the same list; the local hostname must appear in it.

Examples:
  # Hosts file in the working directory, default port 8888
  rendezvous run --hosts ./hosts

  # Peer list from etcd, verbose, leave as soon as the barrier completes
  rendezvous run --etcd-endpoints 10.0.0.5:2379 --exit-on-ready -d`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd.Flags())
}

func runRun(cmd *cobra.Command, args []string) error {
	config, err := runFlags.config(cmd.Flags())
	if err != nil {
		return fatal(err)
	}

	// Initialize logger for non-interactive mode (write to stderr)
	logger.Init("", true)
	logger.SetDebug(config.Debug)
	defer logger.Sync()
	logger.Debugf("Port %d, total timeout %v, send interval %v, poll timeout %v",
		config.Port, config.TotalTimeout, config.SendInterval, config.PollTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(config)
	if err != nil {
		return fatal(err)
	}

	if err := n.Start(ctx); err != nil {
		return fatal(err)
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	state, err := n.Run(ctx)
	if err != nil {
		return fatal(err)
	}
	logger.Printf("Run %s finished %s", n.RunID(), state)
	return exitFor(state)
}

// exitFor maps a terminal barrier state to the command result.
func exitFor(state barrier.State) error {
	if state == barrier.StateComplete {
		return nil
	}
	return &exitCodeError{code: ExitTimedOut}
}
