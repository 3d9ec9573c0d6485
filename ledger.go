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
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/internal/cache"
	"github.com/blnkfinance/tally/model"
)

var ledgerTracer = otel.Tracer("tally.ledger")

// accountCacheTTL bounds how long an account id is cached. Accounts are never
// deleted, so the id for a key never changes.
const accountCacheTTL = 24 * time.Hour

// Post moves amount from the debit account to the credit account in its own
// unit of work. Postings that touch a bank account must go through a
// settlement instead.
func (t *Tally) Post(ctx context.Context, p model.Posting) (*model.LedgerTransaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Post")
	defer span.End()

	if p.BankAccountID != "" {
		return nil, apierror.Validation("direct postings cannot move a bank account")
	}
	var txn *model.LedgerTransaction
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		var err error
		txn, err = u.post(ctx, p)
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, "posting failed", err)
	}
	return txn, nil
}

// post is the ledger engine. It is the only code that changes a ledger
// account balance: both sides move by the same amount and the transaction row
// is appended in the caller's unit of work.
func (u *unit) post(ctx context.Context, p model.Posting) (*model.LedgerTransaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	accounts, err := u.ds.LockLedgerAccounts(ctx, p.DebitAccountID, p.CreditAccountID)
	if err != nil {
		return nil, err
	}

	reference, err := u.nextReference(ctx)
	if err != nil {
		return nil, err
	}
	txn, err := model.NewLedgerTransaction(p, reference, u.now)
	if err != nil {
		return nil, err
	}

	debit, credit := accounts[p.DebitAccountID], accounts[p.CreditAccountID]
	if err := model.ApplyPosting(txn, debit, credit); err != nil {
		return nil, err
	}
	if err := u.ds.UpdateLedgerAccountBalance(ctx, debit); err != nil {
		return nil, err
	}
	if err := u.ds.UpdateLedgerAccountBalance(ctx, credit); err != nil {
		return nil, err
	}
	if err := u.ds.RecordLedgerTransaction(ctx, txn); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reference": txn.ReferenceID,
		"debit":     txn.DebitAccountID,
		"credit":    txn.CreditAccountID,
		"amount":    txn.Amount.String(),
	}).Debug("posted ledger transaction")
	return txn, nil
}

// nextReference draws from the shared sequence. The storage id of the
// transaction row plays no part in it.
func (u *unit) nextReference(ctx context.Context) (string, error) {
	sequence, err := u.ds.NextSequence(ctx)
	if err != nil {
		return "", err
	}
	return model.FormatReference(u.now.Year(), sequence), nil
}

// lockBalances locks every account a settlement will touch, in id order, and
// returns them keyed by id.
func (u *unit) lockBalances(ctx context.Context, ids ...string) (map[string]*model.LedgerAccount, error) {
	return u.ds.LockLedgerAccounts(ctx, ids...)
}

// requireBalance fails when a locked account holds less than amount.
func requireBalance(account *model.LedgerAccount, amount decimal.Decimal) error {
	if account.Balance.LessThan(amount) {
		return apierror.InsufficientBalance("%s has %s, %s required", account.Name, account.Balance.String(), amount.String())
	}
	return nil
}

func systemCacheKey(sys model.SystemAccount) string {
	return "account:system:" + sys.Name
}

func ownedCacheKey(class model.AccountClass, ownerID string) string {
	return fmt.Sprintf("account:%s:%s", class, ownerID)
}

func (u *unit) cachedAccountID(ctx context.Context, key string) string {
	if u.cache == nil {
		return ""
	}
	var id string
	if err := u.cache.Get(ctx, key, &id); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logrus.WithError(err).Warn("account cache lookup failed")
		}
		return ""
	}
	return id
}

func (u *unit) rememberAccountID(key, id string) {
	if u.cache == nil {
		return
	}
	u.afterCommit(func(ctx context.Context) {
		if err := u.cache.Set(ctx, key, id, accountCacheTTL); err != nil {
			logrus.WithError(err).Warn("account cache write failed")
		}
	})
}

// systemAccountID returns the id of a house account, creating it on first use.
func (u *unit) systemAccountID(ctx context.Context, sys model.SystemAccount) (string, error) {
	key := systemCacheKey(sys)
	if id := u.cachedAccountID(ctx, key); id != "" {
		return id, nil
	}

	account, err := u.ds.FindSystemAccount(ctx, sys.Name)
	if apierror.Is(err, apierror.ErrNotFound) {
		account, err = model.NewLedgerAccount(sys.Name, sys.Class, "")
		if err == nil {
			err = u.ds.CreateLedgerAccount(ctx, account)
		}
	}
	if err != nil {
		return "", err
	}
	u.rememberAccountID(key, account.AccountID)
	return account.AccountID, nil
}

// ownedAccountID returns the customer or investor ledger of ownerID, creating
// it on first use. A concurrent creator makes the insert fail on the owner
// index and the unit of work is retried.
func (u *unit) ownedAccountID(ctx context.Context, class model.AccountClass, ownerID string) (string, error) {
	if ownerID == "" {
		return "", apierror.Validation("%s requires an owner", class)
	}
	key := ownedCacheKey(class, ownerID)
	if id := u.cachedAccountID(ctx, key); id != "" {
		return id, nil
	}

	account, err := u.ds.FindOwnedAccount(ctx, class, ownerID)
	if apierror.Is(err, apierror.ErrNotFound) {
		account, err = model.NewLedgerAccount(ownedAccountName(class, ownerID), class, ownerID)
		if err == nil {
			err = u.ds.CreateLedgerAccount(ctx, account)
		}
	}
	if err != nil {
		return "", err
	}
	u.rememberAccountID(key, account.AccountID)
	return account.AccountID, nil
}

func ownedAccountName(class model.AccountClass, ownerID string) string {
	if class == model.ClassInvestorLedger {
		return "Investor Ledger " + ownerID
	}
	return "Customer Ledger " + ownerID
}

func (u *unit) customerAccountID(ctx context.Context, customerID string) (string, error) {
	return u.ownedAccountID(ctx, model.ClassCustomerLedger, customerID)
}

// fundingSourceID is the investor ledger when the customer is funded by an
// investor, otherwise Core Capital.
func (u *unit) fundingSourceID(ctx context.Context, investorID string) (string, error) {
	if investorID != "" {
		return u.ownedAccountID(ctx, model.ClassInvestorLedger, investorID)
	}
	return u.systemAccountID(ctx, model.CoreCapital)
}

// SeedSystemAccounts creates every house account that does not exist yet.
func (t *Tally) SeedSystemAccounts(ctx context.Context) ([]model.LedgerAccount, error) {
	var seeded []model.LedgerAccount
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		seeded = seeded[:0]
		for _, sys := range model.SystemAccounts {
			id, err := u.systemAccountID(ctx, sys)
			if err != nil {
				return err
			}
			account, err := u.ds.GetLedgerAccount(ctx, id)
			if err != nil {
				return err
			}
			seeded = append(seeded, *account)
		}
		return nil
	})
	return seeded, err
}

func (t *Tally) GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error) {
	return t.datasource.GetLedgerAccount(ctx, id)
}

func (t *Tally) ListLedgerAccounts(ctx context.Context, class model.AccountClass, limit, offset int) ([]model.LedgerAccount, error) {
	return t.datasource.ListLedgerAccounts(ctx, class, limit, offset)
}

// FindCustomerLedger returns the ledger of a customer, NotFound if they have never transacted.
func (t *Tally) FindCustomerLedger(ctx context.Context, customerID string) (*model.LedgerAccount, error) {
	return t.datasource.FindOwnedAccount(ctx, model.ClassCustomerLedger, customerID)
}

func (t *Tally) GetLedgerTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	return t.datasource.GetLedgerTransaction(ctx, id)
}

func (t *Tally) GetLedgerTransactionByReference(ctx context.Context, reference string) (*model.LedgerTransaction, error) {
	return t.datasource.GetLedgerTransactionByReference(ctx, reference)
}
