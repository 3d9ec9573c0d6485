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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/tally"
	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/database"
	"github.com/blnkfinance/tally/internal/notification"
)

// Tally represents the CLI application, encapsulating the root Cobra command.
type Tally struct {
	cmd *cobra.Command
}

// tallyInstance holds the service and its configuration for the subcommands.
type tallyInstance struct {
	tally *tally.Tally
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *tallyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newTally, err := setupTally(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.tally = newTally
		app.cnf = cnf
		return nil
	}
}

func setupTally(cfg *config.Configuration) (*tally.Tally, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newTally, err := tally.NewTally(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tally: %v", err)
	}
	return newTally, nil
}

// printJSON writes v to stdout the way every read command reports results.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func NewCLI() *Tally {
	var configFile string
	t := &tallyInstance{}

	var rootCmd = &cobra.Command{
		Use:          "tally",
		Short:        "Double-entry ledger with maker-checker settlement",
		SilenceUsage: true,
		Run:          func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tally.json", "Configuration file for tally")
	rootCmd.PersistentPreRunE = preRun(t, &configFile)

	rootCmd.AddCommand(configCommands(t))
	rootCmd.AddCommand(migrateCommands(t))
	rootCmd.AddCommand(workerCommands(t))
	rootCmd.AddCommand(accountCommands(t))
	rootCmd.AddCommand(pendingCommands(t))
	rootCmd.AddCommand(lienCommands(t))
	rootCmd.AddCommand(ipoCommands(t))
	rootCmd.AddCommand(statementCommands(t))

	return &Tally{cmd: rootCmd}
}

func (w Tally) executeCLI() {
	if err := w.cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
