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

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/tally"
	"github.com/blnkfinance/tally/config"
)

func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.SettlementQueue: 3,
		cfg.Queue.LienExpiryQueue: 1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := tally.QueueRedisOpt(conf.Redis)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logrus.WithError(err).WithField("task", task.Type()).Error("task failed")
		}),
	}), nil
}

// initializeSinks builds a publisher for every sink the queue fans settlement
// events out to: kafka when brokers are configured and always the webhook,
// which is a no-op without a url.
func initializeSinks(conf *config.Configuration) (tally.Sinks, func()) {
	sinks := tally.Sinks{tally.SinkWebhook: tally.NewWebhookPublisher(conf.Notification.Webhook)}
	closeFn := func() {}

	if len(conf.Kafka.Brokers) > 0 {
		kafkaPublisher := tally.NewKafkaPublisher(conf.Kafka)
		sinks[tally.SinkKafka] = kafkaPublisher
		closeFn = func() {
			if err := kafkaPublisher.Close(); err != nil {
				logrus.WithError(err).Error("closing kafka writer")
			}
		}
	}
	return sinks, closeFn
}

func initializeTaskHandlers(app *tallyInstance, sinks tally.Sinks) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tally.TaskSettlementCompleted, tracedHandler("settlement.completed", tally.SettlementEventHandler(sinks)))
	mux.HandleFunc(tally.TaskLienExpiry, tracedHandler("lien.expiry", app.tally.LienExpiryHandler()))
	return mux
}

func workerCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tally's settlement and lien expiry workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			if app.cnf.Redis.Dns == "" {
				log.Fatal("workers need a redis dns")
			}

			shutdown, err := initializeTracing(ctx, app.cnf.Tracing)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during tracer shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(app.cnf, initializeQueues(app.cnf))
			if err != nil {
				log.Fatal(err)
			}

			sinks, closeSinks := initializeSinks(app.cnf)
			defer closeSinks()

			mux := initializeTaskHandlers(app, sinks)
			if err := srv.Run(mux); err != nil {
				log.Fatal("Error running server:", err)
			}
		},
	}

	return cmd
}
