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
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/tally/internal/apierror"
	redlock "github.com/blnkfinance/tally/internal/lock"
	"github.com/blnkfinance/tally/model"
)

var workflowTracer = otel.Tracer("tally.workflow")

const defaultPageSize = 20

// PendingRequest is a maker's proposal. Amount is ignored for allotments and
// reversals, and recomputed with fees for trades.
type PendingRequest struct {
	Type        model.PendingType
	Amount      decimal.Decimal
	Target      model.PendingTarget
	MakerID     string
	Description string
	Payload     json.RawMessage
}

// SettlementResult is an approved pending transaction and the postings its
// settlement produced, in posting order.
type SettlementResult struct {
	Pending      *model.PendingTransaction `json:"pending"`
	Transactions []model.LedgerTransaction `json:"transactions"`
}

// CreatePendingTransaction records a maker's request. Funds the request will
// spend are held in the same unit of work, so a failed hold leaves no
// pending record behind. A deposit whose funding source already covers it is
// settled immediately and returned APPROVED with no checker.
func (t *Tally) CreatePendingTransaction(ctx context.Context, req PendingRequest) (*model.PendingTransaction, error) {
	ctx, span := workflowTracer.Start(ctx, "CreatePendingTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("tally.pending.type", string(req.Type)))

	var pending *model.PendingTransaction
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		r := req
		if err := u.prepare(ctx, &r); err != nil {
			return err
		}
		if err := u.resolveTarget(ctx, &r.Target); err != nil {
			return err
		}

		p, err := model.NewPendingTransaction(r.Type, r.Amount, r.Target, r.MakerID, r.Description, r.Payload)
		if err != nil {
			return err
		}
		p.CreatedAt = u.now
		if err := u.reserve(ctx, p); err != nil {
			return err
		}
		if err := u.ds.CreatePendingTransaction(ctx, p); err != nil {
			return err
		}

		if err := u.autoApprove(ctx, p); err != nil {
			return err
		}
		pending = p
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to create pending transaction", err)
	}

	logrus.WithFields(logrus.Fields{
		"pending": pending.PendingID,
		"type":    pending.Type,
		"status":  pending.Status,
		"maker":   pending.MakerID,
	}).Info("pending transaction created")
	return pending, nil
}

// prepare fills in the parts of a request derived from other records.
func (u *unit) prepare(ctx context.Context, req *PendingRequest) error {
	switch req.Type {
	case model.PendingBuyShares, model.PendingSellShares:
		return u.priceTrade(req)
	case model.PendingIPOAllotment:
		return u.prepareAllotment(ctx, req)
	case model.PendingReversal:
		return u.prepareReversal(ctx, req)
	case model.PendingBulkDeposit:
		return u.prepareBulkDeposit(ctx, req)
	case model.PendingIPOAllotmentBatch:
		return u.prepareAllotmentBatch(ctx, req)
	}
	return nil
}

// resolveTarget completes the customer and investor from the bank account.
func (u *unit) resolveTarget(ctx context.Context, target *model.PendingTarget) error {
	if target.BankAccountID == "" {
		return nil
	}
	bank, err := u.ds.GetBankAccount(ctx, target.BankAccountID)
	if err != nil {
		return err
	}
	if target.CustomerID == "" {
		target.CustomerID = bank.CustomerID
	}
	if target.CustomerID != bank.CustomerID {
		return apierror.Validation("bank account %s does not belong to customer %s", bank.BankAccountID, target.CustomerID)
	}
	if target.InvestorID == "" {
		target.InvestorID = bank.InvestorID
	}
	return nil
}

// reserve checks and holds whatever the request will spend when approved.
func (u *unit) reserve(ctx context.Context, p *model.PendingTransaction) error {
	switch p.Type {
	case model.PendingWithdrawal:
		if p.BankAccountID != "" {
			lien, err := u.placeHold(ctx, p.BankAccountID, p.Amount, model.LienPurposeWithdrawal, p.PendingID, nil)
			if err != nil {
				return err
			}
			p.LienID = lien.LienID
			return nil
		}
		account, err := u.ds.FindOwnedAccount(ctx, model.ClassCustomerLedger, p.CustomerID)
		if apierror.Is(err, apierror.ErrNotFound) {
			return apierror.InsufficientBalance("customer %s has no ledger balance", p.CustomerID)
		}
		if err != nil {
			return err
		}
		return requireBalance(account, p.Amount)

	case model.PendingCoreCapitalDeposit:
		if p.LedgerAccountID == "" {
			return nil
		}
		_, err := u.capitalAccountID(ctx, p)
		return err

	case model.PendingCoreCapitalWithdrawal:
		capitalID, err := u.capitalAccountID(ctx, p)
		if err != nil {
			return err
		}
		account, err := u.ds.GetLedgerAccount(ctx, capitalID)
		if err != nil {
			return err
		}
		return requireBalance(account, p.Amount)

	case model.PendingBuyShares:
		lien, err := u.placeHold(ctx, p.BankAccountID, p.Amount, model.LienPurposeSharePurchase, p.PendingID, nil)
		if err != nil {
			return err
		}
		p.LienID = lien.LienID
		return nil

	case model.PendingSellShares:
		return u.checkSellable(ctx, p)

	case model.PendingIPOAllotment:
		return u.attachApplicationLien(ctx, p)
	}
	return nil
}

// autoApprove settles a deposit at creation when the funding source already
// covers it. Otherwise the deposit waits for a checker. Both accounts the
// deposit posts to are locked together here, in the same order settlement
// locks them, so the check and the posting see one balance.
func (u *unit) autoApprove(ctx context.Context, p *model.PendingTransaction) error {
	if p.Type != model.PendingDeposit || !u.settlement.AutoApprove() {
		return nil
	}
	fundingID, err := u.fundingSourceID(ctx, p.InvestorID)
	if err != nil {
		return err
	}
	customerID, err := u.customerAccountID(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	accounts, err := u.lockBalances(ctx, fundingID, customerID)
	if err != nil {
		return err
	}
	if accounts[fundingID].Balance.LessThan(p.Amount) {
		return nil
	}

	if err := p.Approve("", u.now); err != nil {
		return err
	}
	_, err = u.complete(ctx, p)
	return err
}

// complete settles an approved record and persists its terminal state.
func (u *unit) complete(ctx context.Context, p *model.PendingTransaction) ([]model.LedgerTransaction, error) {
	txns, err := u.settle(ctx, p)
	if err != nil {
		return nil, err
	}
	p.SettlementRefs = make([]string, 0, len(txns))
	for _, txn := range txns {
		p.SettlementRefs = append(p.SettlementRefs, txn.ReferenceID)
	}
	if err := u.ds.UpdatePendingTransaction(ctx, p); err != nil {
		return nil, err
	}
	u.publishSettlement(p, txns)
	return txns, nil
}

// Approve settles a pending transaction on a checker's approval. Settlement
// and the status change commit together; on any failure the record stays
// PENDING and no balance moves.
func (t *Tally) Approve(ctx context.Context, pendingID, checkerID string) (*SettlementResult, error) {
	ctx, span := workflowTracer.Start(ctx, "Approve")
	defer span.End()
	span.SetAttributes(attribute.String("tally.pending.id", pendingID))

	unlock, err := t.lockPending(ctx, pendingID, checkerID)
	if err != nil {
		return nil, logAndRecordError(span, "approval refused", err)
	}
	defer unlock()

	var result *SettlementResult
	err = t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		p, err := u.ds.LockPendingTransaction(ctx, pendingID)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return apierror.StateConflict("pending transaction %s is already %s", p.PendingID, p.Status)
		}
		if err := u.authorizeChecker(ctx, p, checkerID); err != nil {
			return err
		}
		if err := p.Approve(checkerID, u.now); err != nil {
			return err
		}
		txns, err := u.complete(ctx, p)
		if err != nil {
			return err
		}
		result = &SettlementResult{Pending: p, Transactions: txns}
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to approve pending transaction", err)
	}

	logrus.WithFields(logrus.Fields{
		"pending":  pendingID,
		"checker":  checkerID,
		"postings": len(result.Transactions),
	}).Info("pending transaction approved")
	return result, nil
}

// Reject closes a pending transaction without settling it. A hold placed at
// creation is cancelled; the lien of an IPO application is not, because the
// application can still be allotted by a new request.
func (t *Tally) Reject(ctx context.Context, pendingID, checkerID, reason string) (*model.PendingTransaction, error) {
	ctx, span := workflowTracer.Start(ctx, "Reject")
	defer span.End()
	span.SetAttributes(attribute.String("tally.pending.id", pendingID))

	unlock, err := t.lockPending(ctx, pendingID, checkerID)
	if err != nil {
		return nil, logAndRecordError(span, "rejection refused", err)
	}
	defer unlock()

	var pending *model.PendingTransaction
	err = t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		p, err := u.ds.LockPendingTransaction(ctx, pendingID)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return apierror.StateConflict("pending transaction %s is already %s", p.PendingID, p.Status)
		}
		if err := u.authorizeChecker(ctx, p, checkerID); err != nil {
			return err
		}
		if err := p.Reject(checkerID, reason, u.now); err != nil {
			return err
		}
		if p.LienID != "" && p.Type != model.PendingIPOAllotment {
			if _, _, err := u.releaseHold(ctx, p.LienID, model.LienCancelled, "rejected: "+reason); err != nil {
				return err
			}
		}
		if err := u.ds.UpdatePendingTransaction(ctx, p); err != nil {
			return err
		}
		pending = p
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to reject pending transaction", err)
	}
	logrus.WithFields(logrus.Fields{"pending": pendingID, "checker": checkerID}).Info("pending transaction rejected")
	return pending, nil
}

// lockPending takes the cross-process approval lock when redis is
// configured. The row lock taken inside the unit of work still applies.
func (t *Tally) lockPending(ctx context.Context, pendingID, checkerID string) (func(), error) {
	if t.redis == nil {
		return func() {}, nil
	}
	locker := redlock.ForPending(t.redis, pendingID, checkerID+"/"+model.GenerateUUIDWithSuffix("approval"))
	if err := locker.Lock(ctx, t.settlement.ApprovalLockTimeout()); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, apierror.StateConflict("pending transaction %s is being processed", pendingID)
		}
		return nil, err
	}
	return func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("key", locker.Key()).Warn("failed to release approval lock")
		}
	}, nil
}

func (t *Tally) GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	return t.datasource.GetPendingTransaction(ctx, id)
}

// ListPendingTransactions lists by status, newest first. An empty status
// lists the PENDING queue.
func (t *Tally) ListPendingTransactions(ctx context.Context, status model.PendingStatus, limit, offset int) ([]model.PendingTransaction, error) {
	if status == "" {
		status = model.PendingStatusPending
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	return t.datasource.ListPendingTransactions(ctx, status, limit, offset)
}
