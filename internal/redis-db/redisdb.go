/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the connectivity check done when a client is built.
const pingTimeout = 500 * time.Millisecond

// Redis wraps the client shared by the approval lock, the account cache and
// the task queue.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL accepts either a bare host:port or a redis:// / rediss:// URL.
// A URL carrying only a password ("redis://secret@host:6379") is accepted as
// well. skipTLSVerify only applies to rediss:// URLs.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if !strings.Contains(rawURL, "://") {
		return &redis.Options{Addr: rawURL}, nil
	}

	if scheme, rest, ok := strings.Cut(rawURL, "://"); ok {
		if auth, host, hasAuth := strings.Cut(rest, "@"); hasAuth && !strings.Contains(auth, ":") {
			rawURL = scheme + "://:" + auth + "@" + host
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}
	return opts, nil
}

// NewRedisClient builds a standalone client for one address and a cluster
// client for several, then pings it.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		cluster := &redis.UniversalOptions{}
		for _, addr := range addresses {
			opts, err := ParseRedisURL(addr, skipTLSVerify)
			if err != nil {
				return nil, err
			}
			cluster.Addrs = append(cluster.Addrs, opts.Addr)
			if cluster.Password == "" {
				cluster.Password = opts.Password
			}
			if opts.TLSConfig != nil {
				cluster.TLSConfig = opts.TLSConfig
			}
		}
		client = redis.NewUniversalClient(cluster)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{addresses: addresses, client: client}, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Close releases the underlying connections.
func (r *Redis) Close() error {
	return r.client.Close()
}
