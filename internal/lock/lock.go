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

package redlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock is already held")

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Locker is a single-key redis lock. value identifies the holder so that only
// the holder can release or extend it.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// PendingKey is the key guarding one pending transaction.
func PendingKey(pendingID string) string {
	return "pending:" + pendingID
}

// ForPending returns the lock serialising approval and rejection of pendingID.
func ForPending(client redis.UniversalClient, pendingID, holder string) *Locker {
	return NewLocker(client, PendingKey(pendingID), holder)
}

func (l *Locker) Key() string {
	return l.key
}

// Lock takes the key for ttl without waiting.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed for key %s, lock expired or held by someone else", l.key)
	}
	return nil
}

// Extend pushes the expiry of a held lock out by extension.
func (l *Locker) Extend(ctx context.Context, extension time.Duration) error {
	ms := strconv.FormatInt(extension.Milliseconds(), 10)
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, ms).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("extend failed for key %s, lock expired or held by someone else", l.key)
	}
	return nil
}
