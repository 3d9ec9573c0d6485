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

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/tally/internal/apierror"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "TXN-2026-00000042", FormatReference(2026, 42))
	assert.Equal(t, "TXN-2026-123456789", FormatReference(2026, 123456789))
}

func TestNewLedgerAccount(t *testing.T) {
	account, err := NewLedgerAccount("Customer Ledger", ClassCustomerLedger, "cus_1")
	require.NoError(t, err)
	assert.Contains(t, account.AccountID, "la_")
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, AccountStatusActive, account.Status)

	_, err = NewLedgerAccount("Customer Ledger", ClassCustomerLedger, "")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	_, err = NewLedgerAccount("Office Cash", ClassOffice, "cus_1")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	_, err = NewLedgerAccount("Nowhere", AccountClass("NOPE"), "")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}

func TestPostingValidate(t *testing.T) {
	valid := Posting{DebitAccountID: "la_1", CreditAccountID: "la_2", Amount: d("10"), Type: TypeDeposit, MakerID: "maker"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Posting)
	}{
		{"zero amount", func(p *Posting) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *Posting) { p.Amount = d("-1") }},
		{"sub-cent amount", func(p *Posting) { p.Amount = d("0.004") }},
		{"three decimals", func(p *Posting) { p.Amount = d("10.125") }},
		{"same account", func(p *Posting) { p.CreditAccountID = p.DebitAccountID }},
		{"missing maker", func(p *Posting) { p.MakerID = "" }},
		{"unknown type", func(p *Posting) { p.Type = "GIFT" }},
		{"bank effect without bank account", func(p *Posting) { p.BankEffect = BankEffectCredit }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.True(t, apierror.Is(p.Validate(), apierror.ErrValidation))
		})
	}
}

func TestApplyPosting(t *testing.T) {
	debit := &LedgerAccount{AccountID: "la_1", Balance: d("100")}
	credit := &LedgerAccount{AccountID: "la_2", Balance: d("5")}

	txn, err := NewLedgerTransaction(Posting{
		DebitAccountID: "la_1", CreditAccountID: "la_2", Amount: d("40.25"), Type: TypeTransfer, MakerID: "m",
	}, FormatReference(2026, 1), time.Now())
	require.NoError(t, err)
	assert.Equal(t, BankEffectNone, txn.BankEffect)
	assert.Equal(t, TransactionStatusCompleted, txn.Status)

	require.NoError(t, ApplyPosting(txn, debit, credit))
	assert.Equal(t, "59.75", debit.Balance.String())
	assert.Equal(t, "45.25", credit.Balance.String())
	assert.True(t, txn.DebitBalanceAfter.Equal(debit.Balance))
	assert.True(t, txn.CreditBalanceAfter.Equal(credit.Balance))

	// conservation
	assert.Equal(t, "105", debit.Balance.Add(credit.Balance).String())

	err = ApplyPosting(txn, credit, debit)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}

func TestMirror(t *testing.T) {
	txn := &LedgerTransaction{TransactionID: "txn_1", DebitAccountID: "a", CreditAccountID: "b", Amount: d("9")}
	mirror := txn.Mirror("maker", "checker", "correction")
	assert.Equal(t, "b", mirror.DebitAccountID)
	assert.Equal(t, "a", mirror.CreditAccountID)
	assert.Equal(t, TypeReversal, mirror.Type)
	assert.Equal(t, "txn_1", mirror.ReversalOf)
}

func TestBankAccountHolds(t *testing.T) {
	account, err := NewBankAccount("0012345", "cus_1", "")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
	require.NoError(t, account.Credit(d("1000")))

	require.NoError(t, account.Hold(d("600")))
	assert.Equal(t, "400", account.Spendable().String())

	err = account.Hold(d("500"))
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance))

	err = account.Debit(d("500"))
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance))

	require.NoError(t, account.Unhold(d("600")))
	assert.True(t, account.HeldBalance.IsZero())

	err = account.Unhold(d("1"))
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict))

	require.NoError(t, account.Debit(d("400")))
	require.NoError(t, account.Credit(d("50")))
	assert.Equal(t, "650", account.Balance.String())

	_, err = NewBankAccount("", "cus_1", "")
	assert.Error(t, err)
}

func TestLienClose(t *testing.T) {
	lien, err := NewAccountLien("bank_1", d("20"), LienPurposeManual, "REF-1", nil)
	require.NoError(t, err)
	assert.True(t, lien.Active())

	at := time.Now()
	assert.True(t, lien.Close(LienReleased, "settled", at))
	assert.Equal(t, LienReleased, lien.Status)
	assert.Equal(t, &at, lien.ReleasedAt)

	assert.False(t, lien.Close(LienCancelled, "again", time.Now()))
	assert.Equal(t, LienReleased, lien.Status)
	assert.Equal(t, "settled", lien.Reason)

	past := time.Now().Add(-time.Hour)
	_, err = NewAccountLien("bank_1", d("20"), LienPurposeManual, "REF-1", &past)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	_, err = NewAccountLien("bank_1", decimal.Zero, LienPurposeManual, "REF-1", nil)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}

func TestPendingTransactionLifecycle(t *testing.T) {
	p, err := NewPendingTransaction(PendingDeposit, d("500"), PendingTarget{CustomerID: "cus_1"}, "maker", "cash in", nil)
	require.NoError(t, err)
	assert.Equal(t, PendingStatusPending, p.Status)

	require.NoError(t, p.Approve("checker", time.Now()))
	assert.Equal(t, PendingStatusApproved, p.Status)
	assert.Equal(t, "checker", p.CheckerID)
	assert.NotNil(t, p.VerifiedAt)

	assert.True(t, apierror.Is(p.Approve("checker", time.Now()), apierror.ErrStateConflict))
	assert.True(t, apierror.Is(p.Reject("checker", "late", time.Now()), apierror.ErrStateConflict))

	q, err := NewPendingTransaction(PendingWithdrawal, d("10"), PendingTarget{CustomerID: "cus_1"}, "maker", "", nil)
	require.NoError(t, err)
	assert.True(t, apierror.Is(q.Reject("checker", "  ", time.Now()), apierror.ErrValidation))
	require.NoError(t, q.Reject("checker", "Customer request withdrawn", time.Now()))
	assert.Equal(t, "Customer request withdrawn", q.RejectionReason)
}

func TestNewPendingTransactionValidation(t *testing.T) {
	payload := json.RawMessage(`{"symbol":"NABIL","quantity":10,"price":"500"}`)
	tests := []struct {
		name   string
		typ    PendingType
		amount decimal.Decimal
		target PendingTarget
		maker  string
		body   json.RawMessage
	}{
		{"non-positive amount", PendingDeposit, decimal.Zero, PendingTarget{CustomerID: "c"}, "m", nil},
		{"too many decimals", PendingDeposit, d("1.005"), PendingTarget{CustomerID: "c"}, "m", nil},
		{"missing maker", PendingDeposit, d("1"), PendingTarget{CustomerID: "c"}, "", nil},
		{"deposit without customer", PendingDeposit, d("1"), PendingTarget{}, "m", nil},
		{"buy without bank account", PendingBuyShares, d("1"), PendingTarget{CustomerID: "c"}, "m", payload},
		{"buy without payload", PendingBuyShares, d("1"), PendingTarget{BankAccountID: "b"}, "m", nil},
		{"unknown type", PendingType("LOAN"), d("1"), PendingTarget{}, "m", nil},
		{"malformed payload", PendingReversal, d("1"), PendingTarget{}, "m", json.RawMessage(`{`)},
		{"ledger account on deposit", PendingDeposit, d("1"), PendingTarget{CustomerID: "c", LedgerAccountID: "la_1"}, "m", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPendingTransaction(tt.typ, tt.amount, tt.target, tt.maker, "", tt.body)
			assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
		})
	}
}

func TestHoldingWeightedAverage(t *testing.T) {
	h, err := NewHolding("cus_1", " nabil ", "")
	require.NoError(t, err)
	assert.Equal(t, "NABIL", h.Symbol)
	assert.Equal(t, InstrumentEquity, h.InstrumentClass)

	require.NoError(t, h.Add(10, d("1000")))
	require.NoError(t, h.Add(20, d("2500")))
	assert.Equal(t, int64(30), h.Quantity)
	assert.Equal(t, "116.67", h.AverageCost.String())

	basis, err := h.Remove(10)
	require.NoError(t, err)
	assert.Equal(t, "1166.7", basis.String())
	assert.Equal(t, int64(20), h.Quantity)

	_, err = h.Remove(21)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	_, err = h.Remove(20)
	require.NoError(t, err)
	assert.Equal(t, HoldingSold, h.Status)
	assert.True(t, h.TotalCost.IsZero())
}

func TestIPOAllot(t *testing.T) {
	app, err := NewIPOApplication("bank_1", "cus_1", "hidcl", d("100"), 6, "maker")
	require.NoError(t, err)
	assert.Equal(t, "600", app.Amount.String())
	assert.Equal(t, "IPO-APP-"+app.ApplicationID, app.LienReference())

	_, _, err = app.Allot(7, time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	allotted, refund, err := app.Allot(4, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "400", allotted.String())
	assert.Equal(t, "200", refund.String())
	assert.Equal(t, IPOAllotted, app.Status)

	_, _, err = app.Allot(4, time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict))

	none, err := NewIPOApplication("bank_1", "cus_1", "hidcl", d("100"), 6, "maker")
	require.NoError(t, err)
	allotted, refund, err = none.Allot(0, time.Now())
	require.NoError(t, err)
	assert.True(t, allotted.IsZero())
	assert.Equal(t, "600", refund.String())
	assert.Equal(t, IPONotAllotted, none.Status)
}

func TestBuildStatement(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prior := []LedgerTransaction{
		{DebitAccountID: "other", CreditAccountID: "acc", Amount: d("100"), CreatedAt: base.Add(-48 * time.Hour)},
		{DebitAccountID: "acc", CreditAccountID: "other", Amount: d("30"), CreatedAt: base.Add(-24 * time.Hour)},
		{DebitAccountID: "x", CreditAccountID: "y", Amount: d("999"), CreatedAt: base.Add(-24 * time.Hour)},
	}
	opening := OpeningBalance(prior, LedgerClassifier("acc"))
	assert.Equal(t, "70", opening.String())

	postings := []LedgerTransaction{
		{ReferenceID: "TXN-1", DebitAccountID: "other", CreditAccountID: "acc", Amount: d("50"), CreatedAt: base.Add(time.Hour)},
		{ReferenceID: "TXN-2", DebitAccountID: "acc", CreditAccountID: "other", Amount: d("20"), CreatedAt: base.Add(2 * time.Hour)},
	}
	statement := BuildStatement("acc", base, base.Add(24*time.Hour), opening, postings, LedgerClassifier("acc"))
	require.Len(t, statement.Lines, 2)
	assert.Equal(t, "TXN-2", statement.Lines[0].Transaction.ReferenceID)
	assert.Equal(t, "100", statement.Lines[0].RunningBalance.String())
	assert.Equal(t, DirectionDebit, statement.Lines[0].Direction)
	assert.Equal(t, "120", statement.Lines[1].RunningBalance.String())
	assert.Equal(t, "100", statement.ClosingBalance.String())
	assert.Equal(t, "50", statement.TotalCredits.String())
	assert.Equal(t, "20", statement.TotalDebits.String())
}

func TestBankClassifier(t *testing.T) {
	classify := BankClassifier("bank_1")
	_, ok := classify(LedgerTransaction{BankAccountID: "bank_1", BankEffect: BankEffectNone})
	assert.False(t, ok)
	direction, ok := classify(LedgerTransaction{BankAccountID: "bank_1", BankEffect: BankEffectDebit})
	assert.True(t, ok)
	assert.Equal(t, DirectionDebit, direction)
	_, ok = classify(LedgerTransaction{BankAccountID: "bank_2", BankEffect: BankEffectCredit})
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" admin "))
	assert.Equal(t, RoleSuperAdmin, ParseRole("SUPERADMIN"))
	assert.Equal(t, RoleOperator, ParseRole("teller"))
	assert.True(t, RoleAdmin.Administrator())
	assert.False(t, RoleOperator.Administrator())
}

func TestPendingTypeReversible(t *testing.T) {
	for _, typ := range []PendingType{PendingDeposit, PendingWithdrawal, PendingCoreCapitalDeposit, PendingCoreCapitalWithdrawal} {
		assert.True(t, typ.Reversible(), typ)
	}
	for _, typ := range []PendingType{PendingBuyShares, PendingSellShares, PendingIPOAllotment, PendingReversal, PendingBulkDeposit, PendingIPOAllotmentBatch} {
		assert.False(t, typ.Reversible(), typ)
	}
}

func TestBulkDepositTotal(t *testing.T) {
	total, err := BulkDepositPayload{Items: []BulkDepositItem{
		{CustomerID: "c1", Amount: d("10.25")},
		{BankAccountID: "b1", Amount: d("4.75")},
	}}.Total()
	require.NoError(t, err)
	assert.True(t, total.Equal(d("15")))

	for _, items := range [][]BulkDepositItem{
		nil,
		{{CustomerID: "c1", Amount: d("-1")}},
		{{CustomerID: "c1", Amount: d("0.001")}},
		{{Amount: d("1")}},
	} {
		_, err := BulkDepositPayload{Items: items}.Total()
		assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
	}
}

func TestAllotmentBatchValidate(t *testing.T) {
	assert.NoError(t, AllotmentBatchPayload{Allotments: []AllotmentPayload{{ApplicationID: "a1"}, {ApplicationID: "a2", AllottedQuantity: 3}}}.Validate())
	assert.Error(t, AllotmentBatchPayload{}.Validate())
	assert.Error(t, AllotmentBatchPayload{Allotments: []AllotmentPayload{{ApplicationID: ""}}}.Validate())
	assert.Error(t, AllotmentBatchPayload{Allotments: []AllotmentPayload{{ApplicationID: "a1"}, {ApplicationID: "a1"}}}.Validate())
}
