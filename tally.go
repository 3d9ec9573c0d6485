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

package tally

import (
	"context"
	"embed"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/database"
	"github.com/blnkfinance/tally/fees"
	"github.com/blnkfinance/tally/internal/cache"
	redis_db "github.com/blnkfinance/tally/internal/redis-db"
)

// Tally is the ledger service. Ledger balances are only written by the ledger
// engine in ledger.go and bank balances only by the hold manager in hold.go;
// everything else calls down into those two.
type Tally struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	queue      EventQueue
	identity   IdentityResolver
	fees       fees.Calculator
	settlement config.SettlementConfig
	now        func() time.Time
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewTally wires the service from the loaded configuration. Redis is
// optional; without it there is no approval lock, no account cache and no
// event queue.
func NewTally(db database.IDataSource) (*Tally, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	t := &Tally{
		datasource: db,
		identity:   NewStaticIdentity(configuration.Roles),
		fees:       fees.NewSchedule(),
		settlement: configuration.Settlement,
		now:        func() time.Time { return time.Now().UTC() },
	}

	if configuration.Redis.Dns != "" {
		client, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to redis")
		}
		t.redis = client.Client()
		t.cache = cache.NewFromClient(t.redis)

		queue, err := NewQueue(configuration)
		if err != nil {
			return nil, errors.Wrap(err, "creating task queue")
		}
		t.queue = queue
	}
	return t, nil
}

// Datasource exposes the store the service runs against.
func (t *Tally) Datasource() database.IDataSource {
	return t.datasource
}

// unit is one attempt at a unit of work. The datasource is bound to the open
// transaction; hooks run only once that transaction has committed.
type unit struct {
	*Tally
	ds    database.IDataSource
	now   time.Time
	hooks []func(context.Context)
}

func (u *unit) afterCommit(hook func(context.Context)) {
	u.hooks = append(u.hooks, hook)
}

// inUnit runs fn in one database transaction. fn may run more than once when
// the transaction is retried, so it must not have effects outside ds other
// than through afterCommit.
func (t *Tally) inUnit(ctx context.Context, fn func(ctx context.Context, u *unit) error) error {
	var committed *unit
	err := t.datasource.WithTx(ctx, func(ctx context.Context, ds database.IDataSource) error {
		u := &unit{Tally: t, ds: ds, now: t.now()}
		if err := fn(ctx, u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		return err
	}
	for _, hook := range committed.hooks {
		hook(ctx)
	}
	return nil
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	logrus.WithError(err).Error(msg)
	return err
}
