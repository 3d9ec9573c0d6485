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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/internal/notification"
	redis_db "github.com/blnkfinance/tally/internal/redis-db"
	"github.com/blnkfinance/tally/model"
)

// Task types handled by the workers command.
const (
	TaskSettlementCompleted = "settlement.completed"
	TaskLienExpiry          = "lien.expiry"
)

// EventQueue receives work that must happen after a unit of work commits.
type EventQueue interface {
	EnqueueSettlement(ctx context.Context, event SettlementEvent) error
	ScheduleLienExpiry(ctx context.Context, lien model.AccountLien) error
}

// Queue is the asynq-backed EventQueue.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	queues    config.QueueConfig
	sinks     []string
}

// LienExpiryPayload is the body of a lien.expiry task.
type LienExpiryPayload struct {
	LienID string `json:"lien_id"`
}

// SettlementDelivery is the body of a settlement.completed task: one event
// bound for one sink.
type SettlementDelivery struct {
	Sink       string          `json:"sink"`
	Settlement SettlementEvent `json:"settlement"`
}

// QueueRedisOpt converts the configured redis address for asynq clients and
// servers.
func QueueRedisOpt(conf config.RedisConfig) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Dns, conf.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := QueueRedisOpt(conf.Redis)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		queues:    conf.Queue,
		sinks:     SinkNames(conf),
	}, nil
}

// settlementTasks builds one task per sink, keyed by sink and pending id, so
// a settlement reaches each sink once however often the enqueue is attempted
// and a sink retries on its own.
func (q *Queue) settlementTasks(event SettlementEvent) ([]*asynq.Task, error) {
	tasks := make([]*asynq.Task, 0, len(q.sinks))
	for _, sink := range q.sinks {
		payload, err := json.Marshal(SettlementDelivery{Sink: sink, Settlement: event})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, asynq.NewTask(TaskSettlementCompleted, payload,
			asynq.TaskID("settlement-"+sink+"-"+event.PendingID),
			asynq.Queue(q.queues.SettlementQueue),
			asynq.MaxRetry(5),
		))
	}
	return tasks, nil
}

func (q *Queue) lienExpiryTask(lien model.AccountLien) (*asynq.Task, error) {
	if lien.ExpiresAt == nil {
		return nil, errors.New("lien has no expiry")
	}
	payload, err := json.Marshal(LienExpiryPayload{LienID: lien.LienID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLienExpiry, payload,
		asynq.TaskID("lien-expiry-"+lien.LienID),
		asynq.Queue(q.queues.LienExpiryQueue),
		asynq.ProcessAt(*lien.ExpiresAt),
	), nil
}

func (q *Queue) EnqueueSettlement(ctx context.Context, event SettlementEvent) error {
	tasks, err := q.settlementTasks(event)
	if err != nil {
		return err
	}
	var errs []error
	for _, task := range tasks {
		if err := q.enqueue(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (q *Queue) ScheduleLienExpiry(ctx context.Context, lien model.AccountLien) error {
	task, err := q.lienExpiryTask(lien)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task)
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"task": task.Type(), "id": info.ID, "queue": info.Queue}).Debug("task enqueued")
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// publishSettlement announces a settled pending transaction once the unit of
// work commits.
func (u *unit) publishSettlement(p *model.PendingTransaction, txns []model.LedgerTransaction) {
	event := NewSettlementEvent(p, txns, u.now)
	u.afterCommit(func(ctx context.Context) { u.Tally.enqueueSettlement(ctx, event) })
}

// enqueueSettlement never fails the caller: the settlement is already
// committed, so a lost event is logged and notified instead.
func (t *Tally) enqueueSettlement(ctx context.Context, event SettlementEvent) {
	if t.queue == nil {
		return
	}
	if err := t.queue.EnqueueSettlement(ctx, event); err != nil {
		logrus.WithError(err).WithField("pending", event.PendingID).Error("failed to enqueue settlement event")
		notification.NotifyError(err)
	}
}

func (t *Tally) scheduleLienExpiry(ctx context.Context, lien model.AccountLien) {
	if t.queue == nil {
		logrus.WithField("lien", lien.LienID).Warn("no queue configured, lien will not expire on its own")
		return
	}
	if err := t.queue.ScheduleLienExpiry(ctx, lien); err != nil {
		logrus.WithError(err).WithField("lien", lien.LienID).Error("failed to schedule lien expiry")
		notification.NotifyError(err)
	}
}

// SettlementEventHandler delivers a settlement.completed task to the sink it
// names. A sink this worker does not run is not retried.
func SettlementEventHandler(sinks Sinks) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var delivery SettlementDelivery
		if err := json.Unmarshal(task.Payload(), &delivery); err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
		if _, ok := sinks[delivery.Sink]; !ok {
			return errors.Join(fmt.Errorf("no publisher for sink %q", delivery.Sink), asynq.SkipRetry)
		}
		return sinks.Deliver(ctx, delivery.Sink, delivery.Settlement)
	}
}

// LienExpiryHandler releases liens whose expiry task has fired.
func (t *Tally) LienExpiryHandler() asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload LienExpiryPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
		lien, err := t.ReleaseExpiredLien(ctx, payload.LienID)
		if err != nil {
			return err
		}
		if lien.Active() && lien.ExpiresAt != nil {
			// fired early; asynq retries with backoff
			return errors.New("lien " + lien.LienID + " is not due until " + lien.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	}
}
