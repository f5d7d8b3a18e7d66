package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/rendezvous/barrier"
)

func parseFlags(t *testing.T, args ...string) (*barrierFlags, *pflag.FlagSet) {
	t.Helper()
	var f barrierFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return &f, fs
}

func TestFlagsDefaults(t *testing.T) {
	f, fs := parseFlags(t)

	cfg, err := f.config(fs)
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, "hosts", cfg.HostsFile)
	assert.Equal(t, 120*time.Second, cfg.TotalTimeout)
	assert.False(t, cfg.Debug)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hosts_file: /etc/rendezvous/hosts
port: 9000
total_timeout: 30s
exit_on_ready: true
`), 0o644))

	f, fs := parseFlags(t, "--config", path, "--port", "9100", "-d")

	cfg, err := f.config(fs)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port, "flag wins")
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/etc/rendezvous/hosts", cfg.HostsFile, "unset flag keeps file value")
	assert.Equal(t, 30*time.Second, cfg.TotalTimeout)
	assert.True(t, cfg.ExitOnReady)
}

func TestFlagsInvalid(t *testing.T) {
	f, fs := parseFlags(t, "--send-interval", "0s")
	_, err := f.config(fs)
	assert.Error(t, err)

	f, fs = parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = f.config(fs)
	assert.Error(t, err)
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(barrier.StateComplete))

	err := exitFor(barrier.StateTimedOut)
	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitTimedOut, exitErr.code)
}

func TestExitCodes(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	fast := []string{"--send-interval", "50ms", "--poll-timeout", "20ms"}

	code := run(append([]string{"simulate", "--nodes", "3", "--exit-on-ready", "--timeout", "5s"}, fast...))
	assert.Equal(t, ExitComplete, code)
	assert.Contains(t, out.String(), "node-3")

	out.Reset()
	code = run(append([]string{"simulate", "--nodes", "2", "--absent", "1", "--timeout", "300ms"}, fast...))
	assert.Equal(t, ExitTimedOut, code)
	assert.Contains(t, out.String(), "absent")

	code = run([]string{"status", "--timeout", "200ms", "127.0.0.1:1"})
	assert.Equal(t, ExitFatal, code)

	code = run([]string{"no-such-command"})
	assert.Equal(t, ExitFatal, code)
}
