package node

import "errors"

var (
	ErrConfigRequired      = errors.New("config is required")
	ErrHostsSourceRequired = errors.New("a hosts file or etcd endpoints are required")
	ErrInvalidPort         = errors.New("port must be in the range 1-65535")
	ErrInvalidEtcdTimeout  = errors.New("etcd timeout must not be negative")
	ErrInvalidMaxHosts     = errors.New("max hosts must be positive")
	ErrInvalidTotalTimeout = errors.New("total timeout must be positive")
	ErrInvalidSendInterval = errors.New("send interval must be positive")
	ErrInvalidPollTimeout  = errors.New("poll timeout must be positive")

	// Startup failures; the process cannot take part in the barrier.
	ErrLoadPeers     = errors.New("cannot load peer list")
	ErrResolve       = errors.New("cannot resolve peer")
	ErrLocalHostname = errors.New("cannot determine local hostname")
	ErrSelfNotListed = errors.New("local host is not in the peer list")
	ErrBind          = errors.New("cannot bind UDP socket")

	ErrNotStarted     = errors.New("node not started")
	ErrAlreadyStarted = errors.New("node already started")
)
