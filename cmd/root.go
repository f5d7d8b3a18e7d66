package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Process exit codes
const (
	ExitComplete = 0
	ExitFatal    = 1
	ExitTimedOut = 2
)

var rootCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "UDP mutual-liveness barrier",
	Long: `Every host in a fixed peer list proves to every other host that it is
reachable, through a HEARTBEAT / HEARTBEAT_ACK exchange over UDP, before a
distributed job proceeds. The command exits 0 once the barrier is complete
and 2 if the total timeout passes first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeError carries a process exit code out of a command. A nil err
// means the reason was already logged.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func fatal(err error) error {
	return &exitCodeError{code: ExitFatal, err: err}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return ExitComplete
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(os.Stderr, exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintln(os.Stderr, err)
	return ExitFatal
}
