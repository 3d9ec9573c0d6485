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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

func applyIPO(t *testing.T, f *fixture, bankID string, quantity int64) *model.IPOApplication {
	t.Helper()
	app, err := f.ApplyIPO(context.Background(), IPORequest{
		BankAccountID: bankID,
		Symbol:        "nabil",
		Price:         dec("100"),
		Quantity:      quantity,
		MakerID:       "maker",
	})
	require.NoError(t, err)
	return app
}

func TestIPO_PartialAllotment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_ipo", "", "1000")

	app := applyIPO(t, f, bank.BankAccountID, 6)
	assert.Equal(t, "NABIL", app.Symbol)
	assert.True(t, app.Amount.Equal(dec("600")))
	held := f.bank(t, bank.BankAccountID)
	assert.True(t, held.HeldBalance.Equal(dec("600")))
	assert.True(t, held.Spendable().Equal(dec("400")))
	assert.True(t, f.balanceOf(t, model.ClassIPOFundHold, model.IPOFundHold.Name).Equal(dec("600")))

	lien, err := f.GetLien(ctx, app.LienID)
	require.NoError(t, err)
	assert.Equal(t, model.LienPurposeIPOApplication, lien.Purpose)
	assert.Equal(t, "IPO-APP-"+app.ApplicationID, lien.ReferenceID)

	_, err = f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("500"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "maker",
	})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	pending, err := f.AllotIPO(ctx, app.ApplicationID, 4, "maker")
	require.NoError(t, err)
	assert.True(t, pending.Amount.Equal(dec("600")))
	assert.Equal(t, app.LienID, pending.LienID)

	result, err := f.Approve(ctx, pending.PendingID, "checker")
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, model.TypeAllotment, result.Transactions[0].Type)
	assert.True(t, result.Transactions[0].Amount.Equal(dec("400")))
	assert.Equal(t, model.TypeRefund, result.Transactions[1].Type)
	assert.True(t, result.Transactions[1].Amount.Equal(dec("200")))

	after := f.bank(t, bank.BankAccountID)
	assert.True(t, after.HeldBalance.IsZero())
	assert.True(t, after.Balance.Equal(dec("600")))

	holdings, err := f.store.GetHoldings(ctx, "cust_ipo")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(4), holdings[0].Quantity)
	assert.True(t, holdings[0].AverageCost.Equal(dec("100")))

	settled, err := f.GetIPOApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, model.IPOAllotted, settled.Status)
	assert.Equal(t, int64(4), settled.AllottedQuantity)

	assert.True(t, f.balanceOf(t, model.ClassIPOFundHold, model.IPOFundHold.Name).IsZero())
	assert.True(t, f.capitalBalance(t).Equal(dec("400")))
	assert.True(t, f.customerBalance(t, "cust_ipo").Equal(dec("600")))
	assert.True(t, f.customerBalance(t, "cust_ipo").Equal(after.Balance))
	f.assertHoldsConsistent(t, bank.BankAccountID)
	f.assertConserved(t)
}

func TestIPO_NotAllotted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_na", "", "1000")
	app := applyIPO(t, f, bank.BankAccountID, 6)

	pending, err := f.AllotIPO(ctx, app.ApplicationID, 0, "maker")
	require.NoError(t, err)
	result, err := f.Approve(ctx, pending.PendingID, "checker")
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, model.TypeRefund, result.Transactions[0].Type)

	after := f.bank(t, bank.BankAccountID)
	assert.True(t, after.Balance.Equal(dec("1000")))
	assert.True(t, after.HeldBalance.IsZero())
	assert.True(t, f.customerBalance(t, "cust_na").Equal(dec("1000")))

	holdings, err := f.store.GetHoldings(ctx, "cust_na")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	settled, err := f.GetIPOApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, model.IPONotAllotted, settled.Status)

	_, err = f.AllotIPO(ctx, app.ApplicationID, 2, "maker")
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict), "got %v", err)
}

func TestIPO_RejectedAllotmentKeepsApplicationHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_rj", "", "1000")
	app := applyIPO(t, f, bank.BankAccountID, 6)

	pending, err := f.AllotIPO(ctx, app.ApplicationID, 9, "maker")
	assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
	assert.Nil(t, pending)

	pending, err = f.AllotIPO(ctx, app.ApplicationID, 6, "maker")
	require.NoError(t, err)
	_, err = f.Reject(ctx, pending.PendingID, "checker", "allotment list was wrong")
	require.NoError(t, err)

	lien, err := f.GetLien(ctx, app.LienID)
	require.NoError(t, err)
	assert.True(t, lien.Active())
	assert.True(t, f.bank(t, bank.BankAccountID).HeldBalance.Equal(dec("600")))
	f.assertHoldsConsistent(t, bank.BankAccountID)
}

func TestIPO_ApplicationNeedsSpendableFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_small", "", "300")

	_, err := f.ApplyIPO(ctx, IPORequest{BankAccountID: bank.BankAccountID, Symbol: "NABIL", Price: dec("100"), Quantity: 6, MakerID: "maker"})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	assert.True(t, f.bank(t, bank.BankAccountID).HeldBalance.IsZero())
	assert.True(t, f.customerBalance(t, "cust_small").Equal(dec("300")))
	f.assertConserved(t)
}
