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
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeFee        TransactionType = "FEE"
	TypeAllotment  TransactionType = "ALLOTMENT"
	TypeSettlement TransactionType = "SETTLEMENT"
	TypeReversal   TransactionType = "REVERSAL"
	TypeTransfer   TransactionType = "TRANSFER"
	TypeRefund     TransactionType = "REFUND"
)

var transactionTypes = []interface{}{
	TypeDeposit, TypeWithdrawal, TypeFee, TypeAllotment, TypeSettlement, TypeReversal, TypeTransfer, TypeRefund,
}

// BankEffect records how a posting moved the linked customer bank account.
type BankEffect string

const (
	BankEffectNone   BankEffect = "NONE"
	BankEffectCredit BankEffect = "CREDIT"
	BankEffectDebit  BankEffect = "DEBIT"
)

const TransactionStatusCompleted = "COMPLETED"

// LedgerTransaction is an immutable posting. A row exists only once both
// sides have been applied.
type LedgerTransaction struct {
	TransactionID      string          `json:"transaction_id"`
	ReferenceID        string          `json:"reference_id"`
	DebitAccountID     string          `json:"debit_account_id"`
	CreditAccountID    string          `json:"credit_account_id"`
	Amount             decimal.Decimal `json:"amount"`
	Type               TransactionType `json:"type"`
	Particulars        string          `json:"particulars"`
	MakerID            string          `json:"maker_id"`
	CheckerID          string          `json:"checker_id,omitempty"`
	Status             string          `json:"status"`
	BankAccountID      string          `json:"bank_account_id,omitempty"`
	BankEffect         BankEffect      `json:"bank_effect"`
	PendingID          string          `json:"pending_id,omitempty"`
	ReversalOf         string          `json:"reversal_of,omitempty"`
	DebitBalanceAfter  decimal.Decimal `json:"debit_balance_after"`
	CreditBalanceAfter decimal.Decimal `json:"credit_balance_after"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Posting is a request to move Amount from DebitAccountID to CreditAccountID.
type Posting struct {
	DebitAccountID  string
	CreditAccountID string
	Amount          decimal.Decimal
	Type            TransactionType
	Particulars     string
	MakerID         string
	CheckerID       string
	BankAccountID   string
	BankEffect      BankEffect
	PendingID       string
	ReversalOf      string
}

// Validate checks a posting request before any account is touched.
func (p Posting) Validate() error {
	if !p.Amount.IsPositive() {
		return apierror.Validation("transaction amount must be positive, got %s", p.Amount.String())
	}
	if !p.Amount.Equal(RoundMoney(p.Amount)) {
		return apierror.Validation("transaction amount %s has more than %d decimal places", p.Amount.String(), MoneyScale)
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.DebitAccountID, validation.Required),
		validation.Field(&p.CreditAccountID, validation.Required, validation.NotIn(p.DebitAccountID).Error("must differ from the debit account")),
		validation.Field(&p.Type, validation.Required, validation.In(transactionTypes...)),
		validation.Field(&p.MakerID, validation.Required),
		validation.Field(&p.BankEffect, validation.When(p.BankAccountID == "", validation.In(BankEffectNone, BankEffect("")))),
	)
	if err != nil {
		return apierror.Validation("invalid posting: %v", err)
	}
	return nil
}

// FormatReference renders a reference id such as TXN-2026-00000042.
func FormatReference(year int, sequence int64) string {
	return fmt.Sprintf("TXN-%d-%08d", year, sequence)
}

// NewLedgerTransaction builds the transaction row for a validated posting.
func NewLedgerTransaction(p Posting, referenceID string, at time.Time) (*LedgerTransaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if referenceID == "" {
		return nil, apierror.Validation("reference id is required")
	}
	effect := p.BankEffect
	if effect == "" {
		effect = BankEffectNone
	}
	return &LedgerTransaction{
		TransactionID:   GenerateUUIDWithSuffix("txn"),
		ReferenceID:     referenceID,
		DebitAccountID:  p.DebitAccountID,
		CreditAccountID: p.CreditAccountID,
		Amount:          p.Amount,
		Type:            p.Type,
		Particulars:     p.Particulars,
		MakerID:         p.MakerID,
		CheckerID:       p.CheckerID,
		Status:          TransactionStatusCompleted,
		BankAccountID:   p.BankAccountID,
		BankEffect:      effect,
		PendingID:       p.PendingID,
		ReversalOf:      p.ReversalOf,
		CreatedAt:       at,
	}, nil
}

// ApplyPosting moves the transaction amount from debit to credit and stamps
// both balances after the move on the transaction.
func ApplyPosting(txn *LedgerTransaction, debit, credit *LedgerAccount) error {
	if debit == nil || credit == nil {
		return apierror.NotFound("both accounts are required to apply a posting")
	}
	if debit.AccountID != txn.DebitAccountID || credit.AccountID != txn.CreditAccountID {
		return apierror.Validation("posting accounts do not match transaction %s", txn.ReferenceID)
	}
	if !txn.Amount.IsPositive() {
		return apierror.Validation("transaction amount must be positive")
	}

	debit.Balance = debit.Balance.Sub(txn.Amount)
	credit.Balance = credit.Balance.Add(txn.Amount)
	debit.UpdatedAt = txn.CreatedAt
	credit.UpdatedAt = txn.CreatedAt

	txn.DebitBalanceAfter = debit.Balance
	txn.CreditBalanceAfter = credit.Balance
	return nil
}

// Mirror returns the posting that undoes txn.
func (txn *LedgerTransaction) Mirror(makerID, checkerID, particulars string) Posting {
	return Posting{
		DebitAccountID:  txn.CreditAccountID,
		CreditAccountID: txn.DebitAccountID,
		Amount:          txn.Amount,
		Type:            TypeReversal,
		Particulars:     particulars,
		MakerID:         makerID,
		CheckerID:       checkerID,
		ReversalOf:      txn.TransactionID,
	}
}
