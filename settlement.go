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
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

// settlement runs one approved pending transaction. Every leg goes through
// the ledger engine in the same unit of work, so a failing leg undoes the
// legs before it.
type settlement struct {
	*unit
	pending *model.PendingTransaction
	txns    []model.LedgerTransaction
}

func (u *unit) settle(ctx context.Context, p *model.PendingTransaction) ([]model.LedgerTransaction, error) {
	s := &settlement{unit: u, pending: p}

	var err error
	switch p.Type {
	case model.PendingDeposit:
		err = s.deposit(ctx)
	case model.PendingWithdrawal:
		err = s.withdrawal(ctx)
	case model.PendingCoreCapitalDeposit:
		err = s.capitalDeposit(ctx)
	case model.PendingCoreCapitalWithdrawal:
		err = s.capitalWithdrawal(ctx)
	case model.PendingBuyShares:
		err = s.buy(ctx)
	case model.PendingSellShares:
		err = s.sell(ctx)
	case model.PendingIPOAllotment:
		err = s.allotment(ctx)
	case model.PendingReversal:
		err = s.reversal(ctx)
	case model.PendingBulkDeposit:
		err = s.bulkDeposit(ctx)
	case model.PendingIPOAllotmentBatch:
		err = s.allotmentBatch(ctx)
	default:
		err = apierror.Validation("no settlement for pending type %s", p.Type)
	}
	if err != nil {
		return nil, err
	}
	return s.txns, nil
}

// leg posts one entry on behalf of the pending transaction. Zero amounts are
// skipped so optional legs such as fees or tax need no special casing.
func (s *settlement) leg(ctx context.Context, p model.Posting) error {
	if p.Amount.IsZero() {
		return nil
	}
	p.MakerID = s.pending.MakerID
	p.CheckerID = s.pending.CheckerID
	p.PendingID = s.pending.PendingID
	if p.Particulars == "" {
		p.Particulars = s.particulars()
	}
	txn, err := s.post(ctx, p)
	if err != nil {
		return err
	}
	s.txns = append(s.txns, *txn)
	return nil
}

func (s *settlement) particulars() string {
	if s.pending.Description != "" {
		return s.pending.Description
	}
	return fmt.Sprintf("%s %s", s.pending.Type, s.pending.PendingID)
}

// releaseLien consumes the hold placed when the request was created.
func (s *settlement) releaseLien(ctx context.Context) error {
	if s.pending.LienID == "" {
		return nil
	}
	_, _, err := s.releaseHold(ctx, s.pending.LienID, model.LienReleased, "settled by "+s.pending.PendingID)
	return err
}

func (s *settlement) deposit(ctx context.Context) error {
	p := s.pending
	fundingID, err := s.fundingSourceID(ctx, p.InvestorID)
	if err != nil {
		return err
	}
	customerID, err := s.customerAccountID(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	accounts, err := s.lockBalances(ctx, fundingID, customerID)
	if err != nil {
		return err
	}
	if err := requireBalance(accounts[fundingID], p.Amount); err != nil {
		return err
	}

	posting := model.Posting{
		DebitAccountID:  fundingID,
		CreditAccountID: customerID,
		Amount:          p.Amount,
		Type:            model.TypeDeposit,
	}
	if p.BankAccountID != "" {
		if err := s.creditBank(ctx, p.BankAccountID, p.Amount); err != nil {
			return err
		}
		posting.BankAccountID = p.BankAccountID
		posting.BankEffect = model.BankEffectCredit
	}
	return s.leg(ctx, posting)
}

// withdrawal pays the customer out to the funding source. With a bank
// account the hold placed at creation is released and the bank debited for
// the same amount; without one the customer ledger must still cover it.
func (s *settlement) withdrawal(ctx context.Context) error {
	p := s.pending
	fundingID, err := s.fundingSourceID(ctx, p.InvestorID)
	if err != nil {
		return err
	}
	customerID, err := s.customerAccountID(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	accounts, err := s.lockBalances(ctx, fundingID, customerID)
	if err != nil {
		return err
	}

	posting := model.Posting{
		DebitAccountID:  customerID,
		CreditAccountID: fundingID,
		Amount:          p.Amount,
		Type:            model.TypeWithdrawal,
	}
	if p.BankAccountID == "" {
		if err := requireBalance(accounts[customerID], p.Amount); err != nil {
			return err
		}
		return s.leg(ctx, posting)
	}

	if err := s.releaseLien(ctx); err != nil {
		return err
	}
	if err := s.debitBank(ctx, p.BankAccountID, p.Amount); err != nil {
		return err
	}
	posting.BankAccountID = p.BankAccountID
	posting.BankEffect = model.BankEffectDebit
	return s.leg(ctx, posting)
}

// capitalAccountID is the account a capital movement books against: the
// named ledger account when one is given, otherwise the funding source.
func (u *unit) capitalAccountID(ctx context.Context, p *model.PendingTransaction) (string, error) {
	if p.LedgerAccountID == "" {
		return u.fundingSourceID(ctx, p.InvestorID)
	}
	account, err := u.ds.GetLedgerAccount(ctx, p.LedgerAccountID)
	if err != nil {
		return "", err
	}
	switch {
	case account.Class != model.ClassCoreCapital && account.Class != model.ClassInvestorLedger:
		return "", apierror.Validation("%s is a %s account, capital moves through core capital or an investor ledger", account.AccountID, account.Class)
	case p.InvestorID != "" && account.OwnerID != p.InvestorID:
		return "", apierror.Validation("%s is not the ledger of investor %s", account.AccountID, p.InvestorID)
	}
	return account.AccountID, nil
}

func (s *settlement) capitalAccounts(ctx context.Context) (capitalID, officeID string, accounts map[string]*model.LedgerAccount, err error) {
	capitalID, err = s.capitalAccountID(ctx, s.pending)
	if err != nil {
		return "", "", nil, err
	}
	officeID, err = s.systemAccountID(ctx, model.OfficeCash)
	if err != nil {
		return "", "", nil, err
	}
	accounts, err = s.lockBalances(ctx, capitalID, officeID)
	return capitalID, officeID, accounts, err
}

func (s *settlement) capitalDeposit(ctx context.Context) error {
	capitalID, officeID, _, err := s.capitalAccounts(ctx)
	if err != nil {
		return err
	}
	return s.leg(ctx, model.Posting{
		DebitAccountID:  officeID,
		CreditAccountID: capitalID,
		Amount:          s.pending.Amount,
		Type:            model.TypeDeposit,
	})
}

func (s *settlement) capitalWithdrawal(ctx context.Context) error {
	capitalID, officeID, accounts, err := s.capitalAccounts(ctx)
	if err != nil {
		return err
	}
	if err := requireBalance(accounts[capitalID], s.pending.Amount); err != nil {
		return err
	}
	return s.leg(ctx, model.Posting{
		DebitAccountID:  capitalID,
		CreditAccountID: officeID,
		Amount:          s.pending.Amount,
		Type:            model.TypeWithdrawal,
	})
}

// prepareReversal sizes a reversal request from the transaction it undoes.
func (u *unit) prepareReversal(ctx context.Context, req *PendingRequest) error {
	var payload model.ReversalPayload
	if err := decodeRequestPayload(req.Payload, &payload); err != nil {
		return err
	}
	original, err := u.reversible(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	req.Amount = original.Amount
	if req.Target.BankAccountID == "" {
		req.Target.BankAccountID = original.BankAccountID
	}
	if req.Description == "" {
		req.Description = fmt.Sprintf("Reversal of %s: %s", original.ReferenceID, payload.Reason)
	}
	return nil
}

// reversible loads a transaction that has not been reversed and is not
// itself a reversal. Only the single leg of a deposit, withdrawal or capital
// movement settled through maker-checker can be reversed.
func (u *unit) reversible(ctx context.Context, transactionID string) (*model.LedgerTransaction, error) {
	if transactionID == "" {
		return nil, apierror.Validation("transaction to reverse is required")
	}
	original, err := u.ds.GetLedgerTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.ReversalOf != "" {
		return nil, apierror.StateConflict("%s is a reversal and cannot be reversed", original.ReferenceID)
	}
	if original.PendingID == "" {
		return nil, apierror.StateConflict("%s was not settled through approval and cannot be reversed", original.ReferenceID)
	}
	source, err := u.ds.GetPendingTransaction(ctx, original.PendingID)
	if err != nil {
		return nil, err
	}
	if !source.Type.Reversible() {
		return nil, apierror.StateConflict("%s settles %s and cannot be reversed leg by leg", original.ReferenceID, source.Type)
	}
	reversal, err := u.ds.GetReversalOf(ctx, original.TransactionID)
	switch {
	case err == nil:
		return nil, apierror.StateConflict("%s was already reversed by %s", original.ReferenceID, reversal.ReferenceID)
	case !apierror.Is(err, apierror.ErrNotFound):
		return nil, err
	}
	return original, nil
}

// reversal posts the mirror of the original entry and undoes its effect on
// the linked bank account.
func (s *settlement) reversal(ctx context.Context) error {
	var payload model.ReversalPayload
	if err := s.pending.DecodePayload(&payload); err != nil {
		return err
	}
	original, err := s.reversible(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if _, err := s.lockBalances(ctx, original.DebitAccountID, original.CreditAccountID); err != nil {
		return err
	}

	mirror := original.Mirror(s.pending.MakerID, s.pending.CheckerID, s.particulars())
	if original.BankAccountID != "" {
		mirror.BankAccountID = original.BankAccountID
		switch original.BankEffect {
		case model.BankEffectCredit:
			mirror.BankEffect = model.BankEffectDebit
			err = s.debitBank(ctx, original.BankAccountID, original.Amount)
		case model.BankEffectDebit:
			mirror.BankEffect = model.BankEffectCredit
			err = s.creditBank(ctx, original.BankAccountID, original.Amount)
		default:
			mirror.BankEffect = model.BankEffectNone
		}
		if err != nil {
			return err
		}
	}
	return s.leg(ctx, mirror)
}

// ReverseTransaction asks for transactionID to be reversed. The reversal is
// itself a pending transaction and needs a checker.
func (t *Tally) ReverseTransaction(ctx context.Context, transactionID, makerID, reason string) (*model.PendingTransaction, error) {
	payload, err := json.Marshal(model.ReversalPayload{TransactionID: transactionID, Reason: reason})
	if err != nil {
		return nil, err
	}
	return t.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingReversal,
		MakerID: makerID,
		Payload: payload,
	})
}

// decodeRequestPayload decodes a maker payload before any record exists.
func decodeRequestPayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return apierror.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apierror.Validation("malformed payload: %v", err)
	}
	return nil
}

// minDecimal returns the smaller of a and b.
func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
