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
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

var holdTracer = otel.Tracer("tally.hold")

// placeHold earmarks amount of a bank account's spendable funds. The lien
// row and the held balance change in the same unit of work.
func (u *unit) placeHold(ctx context.Context, bankAccountID string, amount decimal.Decimal, purpose, reference string, expiresAt *time.Time) (*model.AccountLien, error) {
	lien, err := model.NewAccountLien(bankAccountID, amount, purpose, reference, expiresAt)
	if err != nil {
		return nil, err
	}

	bank, err := u.ds.LockBankAccount(ctx, bankAccountID)
	if err != nil {
		return nil, err
	}
	if err := bank.Hold(amount); err != nil {
		return nil, err
	}
	bank.UpdatedAt = u.now

	if err := u.ds.CreateLien(ctx, lien); err != nil {
		return nil, err
	}
	if err := u.ds.UpdateBankAccountBalances(ctx, bank); err != nil {
		return nil, err
	}
	return lien, nil
}

// releaseHold closes an active lien with status and returns its funds to the
// spendable pool. A lien that is already closed is left alone and released
// reports false.
func (u *unit) releaseHold(ctx context.Context, lienID string, status model.LienStatus, reason string) (lien *model.AccountLien, released bool, err error) {
	lien, err = u.ds.LockLien(ctx, lienID)
	if err != nil {
		return nil, false, err
	}
	if !lien.Active() {
		return lien, false, nil
	}

	bank, err := u.ds.LockBankAccount(ctx, lien.BankAccountID)
	if err != nil {
		return nil, false, err
	}
	if err := bank.Unhold(lien.Amount); err != nil {
		return nil, false, err
	}
	bank.UpdatedAt = u.now
	lien.Close(status, reason, u.now)

	if err := u.ds.UpdateLien(ctx, lien); err != nil {
		return nil, false, err
	}
	if err := u.ds.UpdateBankAccountBalances(ctx, bank); err != nil {
		return nil, false, err
	}
	return lien, true, nil
}

// creditBank adds settled funds to a bank account.
func (u *unit) creditBank(ctx context.Context, bankAccountID string, amount decimal.Decimal) error {
	bank, err := u.ds.LockBankAccount(ctx, bankAccountID)
	if err != nil {
		return err
	}
	if err := bank.Credit(amount); err != nil {
		return err
	}
	bank.UpdatedAt = u.now
	return u.ds.UpdateBankAccountBalances(ctx, bank)
}

// debitBank removes settled funds. Only spendable funds can be debited, so
// any lien covering them must be released first.
func (u *unit) debitBank(ctx context.Context, bankAccountID string, amount decimal.Decimal) error {
	bank, err := u.ds.LockBankAccount(ctx, bankAccountID)
	if err != nil {
		return err
	}
	if err := bank.Debit(amount); err != nil {
		return err
	}
	bank.UpdatedAt = u.now
	return u.ds.UpdateBankAccountBalances(ctx, bank)
}

// LienRequest is an administrative hold placed outside any settlement.
type LienRequest struct {
	BankAccountID string
	Amount        decimal.Decimal
	Reference     string
	ExpiresAt     *time.Time
	ActorID       string
}

// PlaceLien places a manual hold. Only administrators may place one. A lien
// with an expiry is released by the lien-expiry worker when it falls due.
func (t *Tally) PlaceLien(ctx context.Context, req LienRequest) (*model.AccountLien, error) {
	ctx, span := holdTracer.Start(ctx, "PlaceLien")
	defer span.End()

	if err := t.requireAdministrator(ctx, req.ActorID); err != nil {
		return nil, logAndRecordError(span, "lien rejected", err)
	}
	if strings.TrimSpace(req.Reference) == "" {
		req.Reference = "MANUAL-" + req.ActorID
	}

	var lien *model.AccountLien
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		var err error
		lien, err = u.placeHold(ctx, req.BankAccountID, model.RoundMoney(req.Amount), model.LienPurposeManual, req.Reference, req.ExpiresAt)
		if err != nil {
			return err
		}
		if lien.ExpiresAt != nil {
			placed := *lien
			u.afterCommit(func(ctx context.Context) { t.scheduleLienExpiry(ctx, placed) })
		}
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to place lien", err)
	}
	return lien, nil
}

// ReleaseLien releases a hold on an administrator's instruction. Releasing a
// closed lien is a no-op.
func (t *Tally) ReleaseLien(ctx context.Context, lienID, actorID, reason string) (*model.AccountLien, error) {
	ctx, span := holdTracer.Start(ctx, "ReleaseLien")
	defer span.End()

	if err := t.requireAdministrator(ctx, actorID); err != nil {
		return nil, logAndRecordError(span, "lien release rejected", err)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "released by " + actorID
	}

	var lien *model.AccountLien
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		var err error
		lien, _, err = u.releaseHold(ctx, lienID, model.LienReleased, reason)
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to release lien", err)
	}
	return lien, nil
}

// ReleaseExpiredLien releases lienID when its expiry has passed. It is called
// by the lien-expiry worker, which may run early or more than once.
func (t *Tally) ReleaseExpiredLien(ctx context.Context, lienID string) (*model.AccountLien, error) {
	ctx, span := holdTracer.Start(ctx, "ReleaseExpiredLien")
	defer span.End()

	var lien *model.AccountLien
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		current, err := u.ds.LockLien(ctx, lienID)
		if err != nil {
			return err
		}
		if !current.Active() || current.ExpiresAt == nil || u.now.Before(*current.ExpiresAt) {
			lien = current
			return nil
		}
		lien, _, err = u.releaseHold(ctx, lienID, model.LienReleased, "expired")
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to release expired lien", err)
	}
	if lien.Active() && lien.ExpiresAt != nil {
		logrus.WithField("lien", lienID).Info("lien not yet due, leaving it active")
	}
	return lien, nil
}

// OpenBankAccount registers a customer bank account at zero. Funds arrive
// through an approved DEPOSIT so the customer ledger always backs them.
func (t *Tally) OpenBankAccount(ctx context.Context, accountNumber, customerID, investorID string) (*model.BankAccount, error) {
	account, err := model.NewBankAccount(accountNumber, customerID, investorID)
	if err != nil {
		return nil, err
	}
	if err := t.datasource.CreateBankAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (t *Tally) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	return t.datasource.GetBankAccount(ctx, id)
}

func (t *Tally) GetLien(ctx context.Context, id string) (*model.AccountLien, error) {
	return t.datasource.GetLien(ctx, id)
}

func (t *Tally) GetActiveLiens(ctx context.Context, bankAccountID string) ([]model.AccountLien, error) {
	return t.datasource.GetActiveLiens(ctx, bankAccountID)
}

// CheckHoldConsistency verifies that a bank account's held balance equals the
// sum of its active liens.
func (t *Tally) CheckHoldConsistency(ctx context.Context, bankAccountID string) error {
	bank, err := t.datasource.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return err
	}
	liens, err := t.datasource.GetActiveLiens(ctx, bankAccountID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, lien := range liens {
		total = total.Add(lien.Amount)
	}
	if !total.Equal(bank.HeldBalance) {
		return apierror.StateConflict("bank account %s holds %s but its active liens total %s",
			bankAccountID, bank.HeldBalance.String(), total.String())
	}
	return nil
}
