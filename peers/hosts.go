package peers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxHosts caps the peer set, self included.
const DefaultMaxHosts = 10

// ParseHosts reads one hostname per line. Lines are trimmed; blank lines and
// lines starting with '#' are skipped. Reading stops at max hostnames with a
// warning; max <= 0 means DefaultMaxHosts.
func ParseHosts(r io.Reader, max int, log *zap.SugaredLogger) ([]string, error) {
	if max <= 0 {
		max = DefaultMaxHosts
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var hosts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(hosts) == max {
			log.Warnf("Warning: Maximum number of hosts reached (%d), ignoring %q and the rest", max, line)
			break
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading hosts: %w", err)
	}
	return hosts, nil
}

// LoadHostsFile opens path and parses it with ParseHosts.
func LoadHostsFile(path string, max int, log *zap.SugaredLogger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseHosts(f, max, log)
}

// Dedupe drops repeated hostnames, keeping the first occurrence.
func Dedupe(hosts []string, log *zap.SugaredLogger) []string {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if seen[h] {
			log.Warnf("Duplicate host %s ignored", h)
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
