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
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

type PendingType string

const (
	PendingDeposit               PendingType = "DEPOSIT"
	PendingWithdrawal            PendingType = "WITHDRAWAL"
	PendingCoreCapitalDeposit    PendingType = "CORE_CAPITAL_DEPOSIT"
	PendingCoreCapitalWithdrawal PendingType = "CORE_CAPITAL_WITHDRAWAL"
	PendingBuyShares             PendingType = "BUY_SHARES"
	PendingSellShares            PendingType = "SELL_SHARES"
	PendingIPOAllotment          PendingType = "IPO_ALLOTMENT"
	PendingReversal              PendingType = "REVERSAL"
	PendingBulkDeposit           PendingType = "BULK_DEPOSIT"
	PendingIPOAllotmentBatch     PendingType = "IPO_ALLOTMENT_BATCH"
)

var pendingTypes = []interface{}{
	PendingDeposit, PendingWithdrawal, PendingCoreCapitalDeposit, PendingCoreCapitalWithdrawal,
	PendingBuyShares, PendingSellShares, PendingIPOAllotment, PendingReversal,
	PendingBulkDeposit, PendingIPOAllotmentBatch,
}

// CapitalClass reports whether approval needs an administrator checker.
func (t PendingType) CapitalClass() bool {
	return t == PendingCoreCapitalDeposit || t == PendingCoreCapitalWithdrawal
}

// Reversible reports whether a settlement of this type is a single leg that
// a REVERSAL can mirror on its own. Multi-leg settlements such as trades and
// allotments also move holdings, liens and application state.
func (t PendingType) Reversible() bool {
	switch t {
	case PendingDeposit, PendingWithdrawal, PendingCoreCapitalDeposit, PendingCoreCapitalWithdrawal:
		return true
	}
	return false
}

type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "PENDING"
	PendingStatusApproved PendingStatus = "APPROVED"
	PendingStatusRejected PendingStatus = "REJECTED"
)

// PendingTarget names what a pending transaction acts on. Which fields are
// required depends on the transaction type. LedgerAccountID picks the core
// capital or investor ledger a capital movement books against.
type PendingTarget struct {
	BankAccountID   string `json:"bank_account_id,omitempty"`
	CustomerID      string `json:"customer_id,omitempty"`
	InvestorID      string `json:"investor_id,omitempty"`
	LedgerAccountID string `json:"ledger_account_id,omitempty"`
}

// PendingTransaction is a proposed money movement waiting for a checker.
type PendingTransaction struct {
	PendingID       string          `json:"pending_id"`
	Type            PendingType     `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	BankAccountID   string          `json:"bank_account_id,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	InvestorID      string          `json:"investor_id,omitempty"`
	LedgerAccountID string          `json:"ledger_account_id,omitempty"`
	Description     string          `json:"description,omitempty"`
	MakerID         string          `json:"maker_id"`
	CheckerID       string          `json:"checker_id,omitempty"`
	Status          PendingStatus   `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	LienID          string          `json:"lien_id,omitempty"`
	SettlementRefs  []string        `json:"settlement_refs,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
}

// NewPendingTransaction validates a maker request and returns it in PENDING state.
func NewPendingTransaction(typ PendingType, amount decimal.Decimal, target PendingTarget, makerID, description string, payload json.RawMessage) (*PendingTransaction, error) {
	if !amount.IsPositive() {
		return nil, apierror.Validation("amount must be positive, got %s", amount.String())
	}
	p := &PendingTransaction{
		PendingID:       GenerateUUIDWithSuffix("pend"),
		Type:            typ,
		Amount:          RoundMoney(amount),
		BankAccountID:   target.BankAccountID,
		CustomerID:      target.CustomerID,
		InvestorID:      target.InvestorID,
		LedgerAccountID: target.LedgerAccountID,
		Description:     description,
		MakerID:         makerID,
		Status:          PendingStatusPending,
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
	}
	if !amount.Equal(p.Amount) {
		return nil, apierror.Validation("amount %s has more than %d decimal places", amount.String(), MoneyScale)
	}

	needsCustomer := typ == PendingDeposit || typ == PendingWithdrawal
	needsBank := typ == PendingBuyShares || typ == PendingSellShares
	needsPayload := needsBank || typ == PendingIPOAllotment || typ == PendingReversal ||
		typ == PendingBulkDeposit || typ == PendingIPOAllotmentBatch

	err := validation.ValidateStruct(p,
		validation.Field(&p.Type, validation.Required, validation.In(pendingTypes...)),
		validation.Field(&p.MakerID, validation.Required),
		validation.Field(&p.BankAccountID, validation.When(needsBank, validation.Required)),
		validation.Field(&p.CustomerID,
			validation.When(needsCustomer && p.BankAccountID == "", validation.Required.Error("customer or bank account is required"))),
		validation.Field(&p.Payload, validation.When(needsPayload, validation.Required)),
		validation.Field(&p.LedgerAccountID,
			validation.When(!typ.CapitalClass(), validation.Empty.Error("only capital movements name a ledger account"))),
	)
	if err != nil {
		return nil, apierror.Validation("invalid pending transaction: %v", err)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, apierror.Validation("payload is not valid JSON")
	}
	return p, nil
}

func (p *PendingTransaction) IsPending() bool {
	return p.Status == PendingStatusPending
}

// Approve marks the transaction settled by checkerID. An empty checker marks
// a system approval.
func (p *PendingTransaction) Approve(checkerID string, at time.Time) error {
	if !p.IsPending() {
		return apierror.StateConflict("pending transaction %s is already %s", p.PendingID, p.Status)
	}
	p.Status = PendingStatusApproved
	p.CheckerID = checkerID
	p.VerifiedAt = &at
	return nil
}

func (p *PendingTransaction) Reject(checkerID, reason string, at time.Time) error {
	if !p.IsPending() {
		return apierror.StateConflict("pending transaction %s is already %s", p.PendingID, p.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return apierror.Validation("rejection reason is required")
	}
	p.Status = PendingStatusRejected
	p.CheckerID = checkerID
	p.RejectionReason = reason
	p.VerifiedAt = &at
	return nil
}

// DecodePayload unmarshals the trade-specific parameters into v.
func (p *PendingTransaction) DecodePayload(v interface{}) error {
	if len(p.Payload) == 0 {
		return apierror.Validation("pending transaction %s has no payload", p.PendingID)
	}
	if err := json.Unmarshal(p.Payload, v); err != nil {
		return apierror.Validation("malformed payload: %v", err)
	}
	return nil
}

// AllotmentPayload is the payload of an IPO_ALLOTMENT. A zero quantity
// settles the application as not allotted.
type AllotmentPayload struct {
	ApplicationID    string `json:"application_id"`
	AllottedQuantity int64  `json:"allotted_quantity"`
}

type ReversalPayload struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}
