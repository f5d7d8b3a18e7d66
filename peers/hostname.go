package peers

import (
	"errors"
	"fmt"
	"os"
)

var ErrNoHostname = errors.New("cannot determine local hostname")

// LocalHostname picks the identity of this process: override if set, then
// the HOSTNAME environment variable, then the kernel hostname.
func LocalHostname(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h, nil
	}

	h, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHostname, err)
	}
	if h == "" {
		return "", ErrNoHostname
	}
	return h, nil
}
