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
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/tally"
	"github.com/blnkfinance/tally/model"
)

func accountCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "inspect ledger and bank accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "create the system ledger accounts if they are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := app.tally.SeedSystemAccounts(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(accounts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <accountId>",
		Short: "show a ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := app.tally.GetLedgerAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(account)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "customer <customerId>",
		Short: "show a customer's ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := app.tally.FindCustomerLedger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(account)
		},
	})

	var class string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "list ledger accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := app.tally.ListLedgerAccounts(cmd.Context(), model.AccountClass(class), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(accounts)
		},
	}
	list.Flags().StringVar(&class, "class", "", "only accounts of this class, e.g. CUSTOMER_LEDGER")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.AddCommand(list)

	cmd.AddCommand(bankCommands(app))
	return cmd
}

func bankCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "manage customer bank accounts",
	}

	var number, customer, investor, deposit, maker string
	open := &cobra.Command{
		Use:   "open",
		Short: "open a bank account, optionally filing an opening deposit for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := app.tally.OpenBankAccount(cmd.Context(), number, customer, investor)
			if err != nil {
				return err
			}
			if deposit == "" {
				return printJSON(bank)
			}
			amount, err := decimal.NewFromString(deposit)
			if err != nil {
				return err
			}
			pending, err := app.tally.CreatePendingTransaction(cmd.Context(), tally.PendingRequest{
				Type:        model.PendingDeposit,
				Amount:      amount,
				Target:      model.PendingTarget{BankAccountID: bank.BankAccountID},
				Description: "opening deposit",
				MakerID:     maker,
			})
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"bank_account": bank, "opening_deposit": pending})
		},
	}
	open.Flags().StringVar(&number, "number", "", "bank account number")
	open.Flags().StringVar(&customer, "customer", "", "owning customer id")
	open.Flags().StringVar(&investor, "investor", "", "funding investor id")
	open.Flags().StringVar(&deposit, "deposit", "", "file an opening DEPOSIT of this amount")
	open.Flags().StringVar(&maker, "maker", "", "maker id for the opening deposit")
	_ = open.MarkFlagRequired("number")
	_ = open.MarkFlagRequired("customer")
	cmd.AddCommand(open)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <bankAccountId>",
		Short: "show a bank account with its available balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := app.tally.GetBankAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(bank)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <bankAccountId>",
		Short: "verify the held balance matches the active liens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.tally.CheckHoldConsistency(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Println("holds consistent")
			return nil
		},
	})

	return cmd
}
