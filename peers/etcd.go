package peers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	// DefaultEtcdPrefix is where hostnames are read from when no prefix is set.
	DefaultEtcdPrefix = "/rendezvous/hosts/"
	// DefaultEtcdTimeout bounds the whole peer list read, connection included.
	DefaultEtcdTimeout = 5 * time.Second
)

func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// LoadFromEtcd reads the peer set from every key under prefix, in key order.
// Each value is one hostname; blank values are skipped. The same max cap as
// hosts files applies. The read fails after timeout even if ctx has no
// deadline, since the client waits for a ready connection.
func LoadFromEtcd(ctx context.Context, endpoints []string, prefix string, timeout time.Duration, max int, log *zap.SugaredLogger) ([]string, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no etcd endpoints")
	}
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if timeout <= 0 {
		timeout = DefaultEtcdTimeout
	}

	cli, err := NewEtcdClient(endpoints)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := cli.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", prefix, err)
	}

	return hostnamesFromKVs(resp.Kvs, max, log), nil
}

func hostnamesFromKVs(kvs []*mvccpb.KeyValue, max int, log *zap.SugaredLogger) []string {
	if max <= 0 {
		max = DefaultMaxHosts
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var hosts []string
	for _, kv := range kvs {
		h := strings.TrimSpace(string(kv.Value))
		if h == "" {
			continue
		}
		if len(hosts) == max {
			log.Warnf("Warning: Maximum number of hosts reached (%d), ignoring key %s and the rest", max, kv.Key)
			break
		}
		hosts = append(hosts, h)
	}
	return hosts
}
