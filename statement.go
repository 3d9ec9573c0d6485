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
	"time"

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/database"
	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

var statementTracer = otel.Tracer("tally.statement")

func validRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return apierror.Validation("statement range needs both from and to")
	}
	if !from.Before(to) {
		return apierror.Validation("statement range must end after it starts")
	}
	return nil
}

// GetAccountStatement lists a ledger account's postings in [from, to) with a
// running balance. The opening balance is recomputed from every posting
// before from, not read from the account row.
func (t *Tally) GetAccountStatement(ctx context.Context, accountID string, from, to time.Time) (*model.Statement, error) {
	ctx, span := statementTracer.Start(ctx, "GetAccountStatement")
	defer span.End()

	if err := validRange(from, to); err != nil {
		return nil, err
	}
	var statement model.Statement
	err := t.datasource.WithReadTx(ctx, func(ctx context.Context, ds database.IDataSource) error {
		if _, err := ds.GetLedgerAccount(ctx, accountID); err != nil {
			return err
		}
		opening, err := ds.SumAccountPostingsBefore(ctx, accountID, from)
		if err != nil {
			return err
		}
		postings, err := ds.GetAccountPostings(ctx, accountID, from, to)
		if err != nil {
			return err
		}
		statement = model.BuildStatement(accountID, from, to, opening, postings, model.LedgerClassifier(accountID))
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to build account statement", err)
	}
	return &statement, nil
}

// GetBankStatement replays the postings linked to a bank account by their
// bank effect. Accounts open at zero, so the opening balance is the sum of
// every bank effect before from.
func (t *Tally) GetBankStatement(ctx context.Context, bankAccountID string, from, to time.Time) (*model.Statement, error) {
	ctx, span := statementTracer.Start(ctx, "GetBankStatement")
	defer span.End()

	if err := validRange(from, to); err != nil {
		return nil, err
	}
	var statement model.Statement
	err := t.datasource.WithReadTx(ctx, func(ctx context.Context, ds database.IDataSource) error {
		if _, err := ds.GetBankAccount(ctx, bankAccountID); err != nil {
			return err
		}
		opening, err := ds.SumBankPostingsBefore(ctx, bankAccountID, from)
		if err != nil {
			return err
		}
		postings, err := ds.GetBankPostings(ctx, bankAccountID, from, to)
		if err != nil {
			return err
		}
		statement = model.BuildStatement(bankAccountID, from, to, opening, postings, model.BankClassifier(bankAccountID))
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to build bank statement", err)
	}
	return &statement, nil
}
