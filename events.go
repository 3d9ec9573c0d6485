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
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/internal/notification"
	"github.com/blnkfinance/tally/model"
)

// SettlementEvent announces an approved pending transaction and its postings.
type SettlementEvent struct {
	Event         string                    `json:"event"`
	PendingID     string                    `json:"pending_id"`
	Type          model.PendingType         `json:"type"`
	Amount        decimal.Decimal           `json:"amount"`
	BankAccountID string                    `json:"bank_account_id,omitempty"`
	CustomerID    string                    `json:"customer_id,omitempty"`
	MakerID       string                    `json:"maker_id"`
	CheckerID     string                    `json:"checker_id,omitempty"`
	AutoApproved  bool                      `json:"auto_approved"`
	References    []string                  `json:"references"`
	Transactions  []model.LedgerTransaction `json:"transactions"`
	SettledAt     time.Time                 `json:"settled_at"`
}

func NewSettlementEvent(p *model.PendingTransaction, txns []model.LedgerTransaction, at time.Time) SettlementEvent {
	return SettlementEvent{
		Event:         TaskSettlementCompleted,
		PendingID:     p.PendingID,
		Type:          p.Type,
		Amount:        p.Amount,
		BankAccountID: p.BankAccountID,
		CustomerID:    p.CustomerID,
		MakerID:       p.MakerID,
		CheckerID:     p.CheckerID,
		AutoApproved:  p.CheckerID == "",
		References:    p.SettlementRefs,
		Transactions:  txns,
		SettledAt:     at,
	}
}

// EventPublisher delivers settlement events outside the ledger.
type EventPublisher interface {
	Publish(ctx context.Context, event SettlementEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic, keyed by pending id so the events
// of one pending transaction stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.PendingID),
		Value:   data,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event.Event)}},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// WebhookPublisher posts events to the configured webhook URL.
type WebhookPublisher struct {
	cfg config.WebhookConfig
}

func NewWebhookPublisher(cfg config.WebhookConfig) *WebhookPublisher {
	return &WebhookPublisher{cfg: cfg}
}

func (p *WebhookPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	return notification.SendWebhook(ctx, p.cfg, event.Event, event)
}

const (
	SinkWebhook = "webhook"
	SinkKafka   = "kafka"
)

// SinkNames lists the sinks settlement events are delivered to. The webhook
// sink is always present and does nothing without a url.
func SinkNames(conf *config.Configuration) []string {
	names := []string{SinkWebhook}
	if len(conf.Kafka.Brokers) > 0 {
		names = append(names, SinkKafka)
	}
	return names
}

// Sinks maps sink names to publishers. Each sink is delivered by a task of its
// own, so retrying a failed sink never publishes to the others again.
type Sinks map[string]EventPublisher

// Deliver publishes event to the named sink.
func (s Sinks) Deliver(ctx context.Context, sink string, event SettlementEvent) error {
	publisher, ok := s[sink]
	if !ok {
		return fmt.Errorf("no publisher for sink %q", sink)
	}
	return publisher.Publish(ctx, event)
}
