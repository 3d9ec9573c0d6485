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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

// BankAccount is the customer-facing account. Balance is money owned,
// HeldBalance is the part earmarked by active liens.
type BankAccount struct {
	BankAccountID string          `json:"bank_account_id"`
	AccountNumber string          `json:"account_number"`
	CustomerID    string          `json:"customer_id"`
	InvestorID    string          `json:"investor_id,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	HeldBalance   decimal.Decimal `json:"held_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewBankAccount opens an account at zero. Money only arrives through
// settled postings.
func NewBankAccount(accountNumber, customerID, investorID string) (*BankAccount, error) {
	account := &BankAccount{
		BankAccountID: GenerateUUIDWithSuffix("bank"),
		AccountNumber: accountNumber,
		CustomerID:    customerID,
		InvestorID:    investorID,
		Balance:       decimal.Zero,
		HeldBalance:   decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}
	account.UpdatedAt = account.CreatedAt
	err := validation.ValidateStruct(account,
		validation.Field(&account.AccountNumber, validation.Required),
		validation.Field(&account.CustomerID, validation.Required),
	)
	if err != nil {
		return nil, apierror.Validation("invalid bank account: %v", err)
	}
	return account, nil
}

// Spendable is Balance minus HeldBalance.
func (b *BankAccount) Spendable() decimal.Decimal {
	return b.Balance.Sub(b.HeldBalance)
}

// Hold earmarks amount out of the spendable funds.
func (b *BankAccount) Hold(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierror.Validation("hold amount must be positive, got %s", amount.String())
	}
	if b.Spendable().LessThan(amount) {
		return apierror.InsufficientBalance("bank account %s has %s spendable, %s required",
			b.BankAccountID, b.Spendable().String(), amount.String())
	}
	b.HeldBalance = b.HeldBalance.Add(amount)
	return nil
}

// Unhold returns previously held funds to the spendable pool.
func (b *BankAccount) Unhold(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierror.Validation("release amount must be positive, got %s", amount.String())
	}
	if b.HeldBalance.LessThan(amount) {
		return apierror.StateConflict("bank account %s holds %s, cannot release %s",
			b.BankAccountID, b.HeldBalance.String(), amount.String())
	}
	b.HeldBalance = b.HeldBalance.Sub(amount)
	return nil
}

func (b *BankAccount) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierror.Validation("credit amount must be positive, got %s", amount.String())
	}
	b.Balance = b.Balance.Add(amount)
	return nil
}

// Debit removes owned funds. Held funds cannot be debited; release the lien first.
func (b *BankAccount) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierror.Validation("debit amount must be positive, got %s", amount.String())
	}
	if b.Spendable().LessThan(amount) {
		return apierror.InsufficientBalance("bank account %s has %s spendable, %s required",
			b.BankAccountID, b.Spendable().String(), amount.String())
	}
	b.Balance = b.Balance.Sub(amount)
	return nil
}
