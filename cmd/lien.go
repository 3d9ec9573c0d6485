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
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/tally"
)

func lienCommands(app *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lien",
		Short: "place and release holds on bank accounts",
	}

	var bank, amount, reference, actor string
	var expiresIn time.Duration
	place := &cobra.Command{
		Use:   "place",
		Short: "place a manual lien",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return err
			}
			req := tally.LienRequest{BankAccountID: bank, Amount: value, Reference: reference, ActorID: actor}
			if expiresIn > 0 {
				req.ExpiresAt = ptr.Time(time.Now().UTC().Add(expiresIn))
			}
			lien, err := app.tally.PlaceLien(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(lien)
		},
	}
	place.Flags().StringVar(&bank, "bank", "", "bank account id")
	place.Flags().StringVar(&amount, "amount", "", "amount to hold")
	place.Flags().StringVar(&reference, "reference", "", "lien reference")
	place.Flags().StringVar(&actor, "actor", "", "administrator placing the lien")
	place.Flags().DurationVar(&expiresIn, "expires-in", 0, "release the lien automatically after this long, e.g. 72h")
	_ = place.MarkFlagRequired("bank")
	_ = place.MarkFlagRequired("amount")
	_ = place.MarkFlagRequired("actor")
	cmd.AddCommand(place)

	cmd.AddCommand(&cobra.Command{
		Use:   "release <lienId> <actorId> [reason]",
		Short: "release an active lien",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lien, err := app.tally.ReleaseLien(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			return printJSON(lien)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <bankAccountId>",
		Short: "list the active liens on a bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			liens, err := app.tally.GetActiveLiens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(liens)
		},
	})

	return cmd
}
