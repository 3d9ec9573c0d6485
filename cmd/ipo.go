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

func ipoCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipo",
		Short: "IPO applications and allotments",
	}

	var bank, symbol, price, makerID string
	var quantity int64
	apply := &cobra.Command{
		Use:   "apply",
		Short: "apply for IPO shares, holding the application amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(price)
			if err != nil {
				return err
			}
			application, err := app.tally.ApplyIPO(cmd.Context(), tally.IPORequest{
				BankAccountID: bank,
				Symbol:        symbol,
				Price:         value,
				Quantity:      quantity,
				MakerID:       makerID,
			})
			if err != nil {
				return err
			}
			return printJSON(application)
		},
	}
	apply.Flags().StringVar(&bank, "bank", "", "applicant bank account id")
	apply.Flags().StringVar(&symbol, "symbol", "", "issue symbol")
	apply.Flags().StringVar(&price, "price", "", "issue price per unit")
	apply.Flags().Int64Var(&quantity, "quantity", 0, "units applied for")
	apply.Flags().StringVar(&makerID, "maker", "", "maker user id")
	for _, name := range []string{"bank", "symbol", "price", "quantity", "maker"} {
		_ = apply.MarkFlagRequired(name)
	}
	cmd.AddCommand(apply)

	var allotted int64
	var allotMaker string
	allot := &cobra.Command{
		Use:   "allot <applicationId>",
		Short: "propose the allotment of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.tally.AllotIPO(cmd.Context(), args[0], allotted, allotMaker)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	allot.Flags().Int64Var(&allotted, "quantity", 0, "units allotted, 0 for none")
	allot.Flags().StringVar(&allotMaker, "maker", "", "maker user id")
	_ = allot.MarkFlagRequired("maker")
	cmd.AddCommand(allot)

	var batchFile, batchSymbol, batchMaker string
	allotBatch := &cobra.Command{
		Use:   "allot-batch",
		Short: "propose the allotment drafts of an issue for one approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var drafts []model.AllotmentPayload
			if err := readJSONFile(batchFile, &drafts); err != nil {
				return err
			}
			pending, err := app.tally.SubmitAllotments(cmd.Context(), batchSymbol, drafts, batchMaker)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
	allotBatch.Flags().StringVar(&batchFile, "file", "", `json array of {"application_id", "allotted_quantity"}`)
	allotBatch.Flags().StringVar(&batchSymbol, "symbol", "", "issue symbol; taken from the first application when empty")
	allotBatch.Flags().StringVar(&batchMaker, "maker", "", "maker user id")
	_ = allotBatch.MarkFlagRequired("file")
	_ = allotBatch.MarkFlagRequired("maker")
	cmd.AddCommand(allotBatch)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <applicationId>",
		Short: "show an IPO application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.tally.GetIPOApplication(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(application)
		},
	})

	return cmd
}
