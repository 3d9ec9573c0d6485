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
	"time"

	"github.com/spf13/cobra"
)

const statementDate = "2006-01-02"

// statementRange parses inclusive calendar days into [from, to) in UTC.
func statementRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(statementDate, from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(statementDate, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end.AddDate(0, 0, 1), nil
}

func statementCommands(app *tallyInstance) *cobra.Command {
	var from, to string
	var bank bool

	cmd := &cobra.Command{
		Use:   "statement <accountId>",
		Short: "print a ledger or bank account statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := statementRange(from, to)
			if err != nil {
				return err
			}
			if bank {
				statement, err := app.tally.GetBankStatement(cmd.Context(), args[0], start, end)
				if err != nil {
					return err
				}
				return printJSON(statement)
			}
			statement, err := app.tally.GetAccountStatement(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			return printJSON(statement)
		},
	}

	today := time.Now().UTC().Format(statementDate)
	cmd.Flags().StringVar(&from, "from", today, "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", today, "last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&bank, "bank", false, "the id is a bank account")

	return cmd
}
