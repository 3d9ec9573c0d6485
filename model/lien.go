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

type LienStatus string

const (
	LienActive    LienStatus = "ACTIVE"
	LienReleased  LienStatus = "RELEASED"
	LienCancelled LienStatus = "CANCELLED"
)

const (
	LienPurposeIPOApplication = "IPO_APPLICATION"
	LienPurposeWithdrawal     = "WITHDRAWAL"
	LienPurposeSharePurchase  = "SHARE_PURCHASE"
	LienPurposeManual         = "MANUAL"
)

// AccountLien reserves Amount of a bank account's funds.
type AccountLien struct {
	LienID        string          `json:"lien_id"`
	BankAccountID string          `json:"bank_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Purpose       string          `json:"purpose"`
	ReferenceID   string          `json:"reference_id"`
	Reason        string          `json:"reason,omitempty"`
	Status        LienStatus      `json:"status"`
	StartDate     time.Time       `json:"start_date"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
}

func NewAccountLien(bankAccountID string, amount decimal.Decimal, purpose, referenceID string, expiresAt *time.Time) (*AccountLien, error) {
	if !amount.IsPositive() {
		return nil, apierror.Validation("lien amount must be positive, got %s", amount.String())
	}
	lien := &AccountLien{
		LienID:        GenerateUUIDWithSuffix("lien"),
		BankAccountID: bankAccountID,
		Amount:        amount,
		Purpose:       purpose,
		ReferenceID:   referenceID,
		Status:        LienActive,
		StartDate:     time.Now().UTC(),
		ExpiresAt:     expiresAt,
	}
	err := validation.ValidateStruct(lien,
		validation.Field(&lien.BankAccountID, validation.Required),
		validation.Field(&lien.Purpose, validation.Required),
		validation.Field(&lien.ReferenceID, validation.Required),
	)
	if err != nil {
		return nil, apierror.Validation("invalid lien: %v", err)
	}
	if expiresAt != nil && !expiresAt.After(lien.StartDate) {
		return nil, apierror.Validation("lien expiry must be in the future")
	}
	return lien, nil
}

func (l *AccountLien) Active() bool {
	return l.Status == LienActive
}

// Close moves an active lien to status. It returns false when the lien was
// already closed, in which case nothing changes.
func (l *AccountLien) Close(status LienStatus, reason string, at time.Time) bool {
	if !l.Active() {
		return false
	}
	l.Status = status
	l.Reason = reason
	l.ReleasedAt = &at
	return true
}
