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
	"log"

	"github.com/spf13/cobra"
)

const redacted = "********"

func configCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			// copy so the redaction does not leak into the running service
			cfg := *app.cnf
			if cfg.DataSource.Dns != "" {
				cfg.DataSource.Dns = redacted
			}
			if cfg.Redis.Dns != "" {
				cfg.Redis.Dns = redacted
			}
			if cfg.Notification.Webhook.Secret != "" {
				cfg.Notification.Webhook.Secret = redacted
			}

			if err := printJSON(cfg); err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}
		},
	}
	return cmd
}
