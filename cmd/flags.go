package cmd

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/adamgarcia4/rendezvous/node"
	"github.com/adamgarcia4/rendezvous/peers"
)

// barrierFlags are shared by every command that runs a barrier. Values from
// --config are the base; only flags given on the command line override them.
type barrierFlags struct {
	configFile string

	hostname      string
	hostsFile     string
	etcdEndpoints []string
	etcdPrefix    string
	etcdTimeout   time.Duration
	maxHosts      int

	bindAddress string
	port        int

	totalTimeout time.Duration
	sendInterval time.Duration
	pollTimeout  time.Duration

	exitOnReady       bool
	ackEveryHeartbeat bool

	debug       bool
	metricsAddr string
	statusAddr  string
}

func (f *barrierFlags) register(fs *pflag.FlagSet) {
	d := node.DefaultConfig()

	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file")

	fs.StringVar(&f.hostname, "hostname", "", "Local hostname (default $HOSTNAME, then the system hostname)")
	fs.StringVarP(&f.hostsFile, "hosts", "f", d.HostsFile, "Hosts file, one hostname per line")
	fs.StringSliceVar(&f.etcdEndpoints, "etcd-endpoints", nil, "Read the peer list from etcd instead of the hosts file (comma-separated)")
	fs.StringVar(&f.etcdPrefix, "etcd-prefix", peers.DefaultEtcdPrefix, "etcd key prefix holding one hostname per key")
	fs.DurationVar(&f.etcdTimeout, "etcd-timeout", d.EtcdTimeout, "Give up reading the peer list from etcd after this long")
	fs.IntVar(&f.maxHosts, "max-hosts", d.MaxHosts, "Maximum number of hosts read from the peer list")

	fs.StringVar(&f.bindAddress, "bind", d.BindAddress, "Address to bind the UDP socket to (default all interfaces)")
	fs.IntVarP(&f.port, "port", "p", d.Port, "UDP port used by every peer")

	fs.DurationVarP(&f.totalTimeout, "timeout", "t", d.TotalTimeout, "Total time allowed to reach the barrier")
	fs.DurationVar(&f.sendInterval, "send-interval", d.SendInterval, "Retransmission interval for unacknowledged peers")
	fs.DurationVar(&f.pollTimeout, "poll-timeout", d.PollTimeout, "Upper bound on one receive wait")

	fs.BoolVar(&f.exitOnReady, "exit-on-ready", false, "Exit as soon as the barrier completes instead of serving late peers")
	fs.BoolVar(&f.ackEveryHeartbeat, "ack-every-heartbeat", false, "Acknowledge every HEARTBEAT, not just the first from each peer")

	fs.BoolVarP(&f.debug, "debug", "d", false, "Log every send and receive")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /status on this address")
	fs.StringVar(&f.statusAddr, "status-addr", "", "Serve the gRPC status and health services on this address")
}

// config builds the node config: defaults, then the config file, then the
// flags the user actually set.
func (f *barrierFlags) config(fs *pflag.FlagSet) (*node.Config, error) {
	cfg := node.DefaultConfig()
	if f.configFile != "" {
		loaded, err := node.LoadConfigFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("hostname", func() { cfg.Hostname = f.hostname })
	set("hosts", func() { cfg.HostsFile = f.hostsFile })
	set("etcd-endpoints", func() { cfg.EtcdEndpoints = f.etcdEndpoints })
	set("etcd-prefix", func() { cfg.EtcdPrefix = f.etcdPrefix })
	set("etcd-timeout", func() { cfg.EtcdTimeout = f.etcdTimeout })
	set("max-hosts", func() { cfg.MaxHosts = f.maxHosts })
	set("bind", func() { cfg.BindAddress = f.bindAddress })
	set("port", func() { cfg.Port = f.port })
	set("timeout", func() { cfg.TotalTimeout = f.totalTimeout })
	set("send-interval", func() { cfg.SendInterval = f.sendInterval })
	set("poll-timeout", func() { cfg.PollTimeout = f.pollTimeout })
	set("exit-on-ready", func() { cfg.ExitOnReady = f.exitOnReady })
	set("ack-every-heartbeat", func() { cfg.AckEveryHeartbeat = f.ackEveryHeartbeat })
	set("debug", func() { cfg.Debug = f.debug })
	set("metrics-addr", func() { cfg.MetricsAddr = f.metricsAddr })
	set("status-addr", func() { cfg.StatusAddr = f.statusAddr })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
