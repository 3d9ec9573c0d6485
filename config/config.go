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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_SETTLEMENT_QUEUE   = "tally_settlement_events"
	DEFAULT_LIEN_EXPIRY_QUEUE  = "tally_lien_expiry"
	DEFAULT_KAFKA_TOPIC        = "tally.settlement.completed"
	DEFAULT_PROFIT_SHARE       = "60"
	DEFAULT_TX_RETRY_ATTEMPTS  = 3
	DEFAULT_APPROVAL_LOCK_SECS = 30
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"TALLY_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"TALLY_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"TALLY_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"TALLY_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"TALLY_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"TALLY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"TALLY_REDIS_SKIP_TLS_VERIFY"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" envconfig:"TALLY_KAFKA_BROKERS"`
	Topic   string   `json:"topic" envconfig:"TALLY_KAFKA_TOPIC"`
}

type QueueConfig struct {
	SettlementQueue string `json:"settlement_queue" envconfig:"TALLY_QUEUE_SETTLEMENT"`
	LienExpiryQueue string `json:"lien_expiry_queue" envconfig:"TALLY_QUEUE_LIEN_EXPIRY"`
	Concurrency     int    `json:"concurrency" envconfig:"TALLY_QUEUE_CONCURRENCY"`
}

type TracingConfig struct {
	Endpoint    string `json:"endpoint" envconfig:"TALLY_TRACING_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"TALLY_TRACING_SERVICE_NAME"`
	Insecure    bool   `json:"insecure" envconfig:"TALLY_TRACING_INSECURE"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"TALLY_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"TALLY_WEBHOOK_URL"`
	Secret  string            `json:"secret" envconfig:"TALLY_WEBHOOK_SECRET"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

// SettlementConfig tunes the maker-checker workflow.
type SettlementConfig struct {
	AutoApproveDeposits *bool  `json:"auto_approve_deposits" envconfig:"TALLY_AUTO_APPROVE_DEPOSITS"`
	ProfitSharePercent  string `json:"profit_share_percent" envconfig:"TALLY_PROFIT_SHARE_PERCENT"`
	TxRetryAttempts     int    `json:"tx_retry_attempts" envconfig:"TALLY_TX_RETRY_ATTEMPTS"`
	ApprovalLockSeconds int    `json:"approval_lock_seconds" envconfig:"TALLY_APPROVAL_LOCK_SECONDS"`
}

type Configuration struct {
	ProjectName  string            `json:"project_name" envconfig:"TALLY_PROJECT_NAME"`
	DataSource   DataSourceConfig  `json:"data_source"`
	Redis        RedisConfig       `json:"redis"`
	Kafka        KafkaConfig       `json:"kafka"`
	Queue        QueueConfig       `json:"queue"`
	Tracing      TracingConfig     `json:"tracing"`
	Notification Notification      `json:"notification"`
	Settlement   SettlementConfig  `json:"settlement"`
	Roles        map[string]string `json:"roles" envconfig:"TALLY_ROLES"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// a .env next to the binary is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// override config from environment variables
	err = envconfig.Process("tally", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tally.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Tally"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.DataSource.MaxOpenConns <= 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns <= 0 {
		cnf.DataSource.MaxIdleConns = 10
	}
	if cnf.DataSource.ConnMaxLifetime <= 0 {
		cnf.DataSource.ConnMaxLifetime = 30 * time.Minute
	}
	if cnf.DataSource.ConnMaxIdleTime <= 0 {
		cnf.DataSource.ConnMaxIdleTime = 5 * time.Minute
	}

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Approval locks, caching and the event queue are disabled.")
	}

	if cnf.Queue.SettlementQueue == "" {
		cnf.Queue.SettlementQueue = DEFAULT_SETTLEMENT_QUEUE
	}
	if cnf.Queue.LienExpiryQueue == "" {
		cnf.Queue.LienExpiryQueue = DEFAULT_LIEN_EXPIRY_QUEUE
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 5
	}
	if len(cnf.Kafka.Brokers) > 0 && cnf.Kafka.Topic == "" {
		cnf.Kafka.Topic = DEFAULT_KAFKA_TOPIC
	}
	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "tally"
	}

	if cnf.Settlement.AutoApproveDeposits == nil {
		enabled := true
		cnf.Settlement.AutoApproveDeposits = &enabled
	}
	if cnf.Settlement.ProfitSharePercent == "" {
		cnf.Settlement.ProfitSharePercent = DEFAULT_PROFIT_SHARE
	}
	share, err := decimal.NewFromString(cnf.Settlement.ProfitSharePercent)
	if err != nil {
		return errors.New("profit share percent must be a decimal")
	}
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("profit share percent must be between 0 and 100")
	}
	if cnf.Settlement.TxRetryAttempts <= 0 {
		cnf.Settlement.TxRetryAttempts = DEFAULT_TX_RETRY_ATTEMPTS
	}
	if cnf.Settlement.ApprovalLockSeconds <= 0 {
		cnf.Settlement.ApprovalLockSeconds = DEFAULT_APPROVAL_LOCK_SECS
	}

	return nil
}

// ProfitShare returns the funding source's share of a sale gain as a fraction.
func (s SettlementConfig) ProfitShare() decimal.Decimal {
	share, err := decimal.NewFromString(s.ProfitSharePercent)
	if err != nil {
		share = decimal.RequireFromString(DEFAULT_PROFIT_SHARE)
	}
	return share.Div(decimal.NewFromInt(100))
}

func (s SettlementConfig) AutoApprove() bool {
	return s.AutoApproveDeposits == nil || *s.AutoApproveDeposits
}

func (s SettlementConfig) ApprovalLockTimeout() time.Duration {
	if s.ApprovalLockSeconds <= 0 {
		return DEFAULT_APPROVAL_LOCK_SECS * time.Second
	}
	return time.Duration(s.ApprovalLockSeconds) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
