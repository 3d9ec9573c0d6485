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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/tally"
	"github.com/blnkfinance/tally/model"
)

func pendingCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "maker-checker pending transactions",
	}

	cmd.AddCommand(pendingCreateCommand(app))
	cmd.AddCommand(bulkDepositCommand(app))

	var checker string
	approve := &cobra.Command{
		Use:   "approve <pendingId>",
		Short: "approve and settle a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.tally.Approve(cmd.Context(), args[0], checker)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	approve.Flags().StringVar(&checker, "checker", "", "checker user id")
	_ = approve.MarkFlagRequired("checker")
	cmd.AddCommand(approve)

	var rejecter, rejectReason string
	reject := &cobra.Command{
		Use:   "reject <pendingId>",
		Short: "reject a pending transaction and release its hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.tally.Reject(cmd.Context(), args[0], rejecter, rejectReason)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	reject.Flags().StringVar(&rejecter, "checker", "", "checker user id")
	reject.Flags().StringVar(&rejectReason, "reason", "", "why the request is rejected")
	_ = reject.MarkFlagRequired("checker")
	_ = reject.MarkFlagRequired("reason")
	cmd.AddCommand(reject)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <pendingId>",
		Short: "show a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.tally.GetPendingTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	})

	var status string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "list pending transactions by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.tally.ListPendingTransactions(cmd.Context(), model.PendingStatus(strings.ToUpper(status)), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	list.Flags().StringVar(&status, "status", "PENDING", "PENDING, APPROVED or REJECTED")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.AddCommand(list)

	var makerID, reason string
	reverse := &cobra.Command{
		Use:   "reverse <transactionId>",
		Short: "request the reversal of a posted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.tally.ReverseTransaction(cmd.Context(), args[0], makerID, reason)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	reverse.Flags().StringVar(&makerID, "maker", "", "maker user id")
	reverse.Flags().StringVar(&reason, "reason", "", "why the transaction is reversed")
	_ = reverse.MarkFlagRequired("maker")
	cmd.AddCommand(reverse)

	return cmd
}

func pendingCreateCommand(app *tallyInstance) *cobra.Command {
	var (
		kind, amount, bank, customer, investor  string
		ledgerAccount, makerID, description     string
		payload                                 string
		symbol, price, instrument, investorKind string
		quantity                                int64
		holdingDays                             int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "propose a deposit, withdrawal, capital movement or trade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := tally.PendingRequest{
				Type:        model.PendingType(strings.ToUpper(kind)),
				MakerID:     makerID,
				Description: description,
				Target: model.PendingTarget{
					BankAccountID:   bank,
					CustomerID:      customer,
					InvestorID:      investor,
					LedgerAccountID: ledgerAccount,
				},
			}
			if amount != "" {
				value, err := decimal.NewFromString(amount)
				if err != nil {
					return err
				}
				req.Amount = value
			}

			switch {
			case payload != "":
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid json")
				}
				req.Payload = json.RawMessage(payload)
			case req.Type == model.PendingBuyShares || req.Type == model.PendingSellShares:
				tradePrice, err := decimal.NewFromString(price)
				if err != nil {
					return err
				}
				trade, err := json.Marshal(model.TradePayload{
					Symbol:          symbol,
					InstrumentClass: model.InstrumentClass(strings.ToUpper(instrument)),
					Quantity:        quantity,
					Price:           tradePrice,
					HoldingDays:     holdingDays,
					InvestorKind:    strings.ToUpper(investorKind),
				})
				if err != nil {
					return err
				}
				req.Payload = trade
			}

			pending, err := app.tally.CreatePendingTransaction(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "DEPOSIT, WITHDRAWAL, CORE_CAPITAL_DEPOSIT, CORE_CAPITAL_WITHDRAWAL, BUY_SHARES or SELL_SHARES (batches use bulk-deposit and ipo allot-batch)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount; computed from price and quantity for trades")
	cmd.Flags().StringVar(&bank, "bank-account", "", "bank account id")
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	cmd.Flags().StringVar(&investor, "investor", "", "investor id; names the investor ledger of a capital movement")
	cmd.Flags().StringVar(&ledgerAccount, "ledger-account", "", "core capital or investor ledger account id for a capital movement")
	cmd.Flags().StringVar(&payload, "payload", "", "raw json payload; overrides the trade flags")
	cmd.Flags().StringVar(&makerID, "maker", "", "maker user id")
	cmd.Flags().StringVar(&description, "description", "", "free text")
	cmd.Flags().StringVar(&symbol, "symbol", "", "trade symbol")
	cmd.Flags().StringVar(&price, "price", "0", "trade price per unit")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "trade quantity")
	cmd.Flags().StringVar(&instrument, "instrument", "", "EQUITY, BOND or MUTUAL_FUND")
	cmd.Flags().IntVar(&holdingDays, "holding-days", 0, "days the sold units were held")
	cmd.Flags().StringVar(&investorKind, "investor-kind", "", "INDIVIDUAL or ENTITY")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("maker")

	return cmd
}

// readJSONFile decodes a json document from path into v.
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func bulkDepositCommand(app *tallyInstance) *cobra.Command {
	var file, makerID, remarks string
	cmd := &cobra.Command{
		Use:   "bulk-deposit",
		Short: "propose a batch of deposits that a checker approves as one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []model.BulkDepositItem
			if err := readJSONFile(file, &items); err != nil {
				return err
			}
			pending, err := app.tally.CreateBulkDeposit(cmd.Context(), items, makerID, remarks)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `json array of {"bank_account_id"|"customer_id", "amount", "remarks"}`)
	cmd.Flags().StringVar(&makerID, "maker", "", "maker user id")
	cmd.Flags().StringVar(&remarks, "remarks", "", "free text for the batch")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("maker")
	return cmd
}
