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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const ledgerTransactionColumns = `transaction_id, reference_id, debit_account_id, credit_account_id, amount, type, particulars,
	maker_id, checker_id, status, bank_account_id, bank_effect, pending_id, reversal_of,
	debit_balance_after, credit_balance_after, created_at`

func scanLedgerTransaction(row rowScanner) (*model.LedgerTransaction, error) {
	txn := &model.LedgerTransaction{}
	var checker, bankAccount, pending, reversalOf sql.NullString
	err := row.Scan(&txn.TransactionID, &txn.ReferenceID, &txn.DebitAccountID, &txn.CreditAccountID, &txn.Amount,
		&txn.Type, &txn.Particulars, &txn.MakerID, &checker, &txn.Status, &bankAccount, &txn.BankEffect,
		&pending, &reversalOf, &txn.DebitBalanceAfter, &txn.CreditBalanceAfter, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	txn.CheckerID = checker.String
	txn.BankAccountID = bankAccount.String
	txn.PendingID = pending.String
	txn.ReversalOf = reversalOf.String
	return txn, nil
}

// RecordLedgerTransaction appends a posting to the transaction log.
func (d Datasource) RecordLedgerTransaction(ctx context.Context, txn *model.LedgerTransaction) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "RecordLedgerTransaction")
	defer span.End()

	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.ledger_transactions (transaction_id, reference_id, debit_account_id, credit_account_id, amount, type,
			particulars, maker_id, checker_id, status, bank_account_id, bank_effect, pending_id, reversal_of,
			debit_balance_after, credit_balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		txn.TransactionID, txn.ReferenceID, txn.DebitAccountID, txn.CreditAccountID, txn.Amount.String(), txn.Type,
		txn.Particulars, txn.MakerID, nullString(txn.CheckerID), txn.Status, nullString(txn.BankAccountID), txn.BankEffect,
		nullString(txn.PendingID), nullString(txn.ReversalOf), txn.DebitBalanceAfter.String(), txn.CreditBalanceAfter.String(),
		txn.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "ledger transaction")
	}
	return nil
}

func (d Datasource) getLedgerTransaction(ctx context.Context, where, arg string) (*model.LedgerTransaction, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ledgerTransactionColumns+` FROM tally.ledger_transactions WHERE `+where+` = $1`, arg)
	txn, err := scanLedgerTransaction(row)
	if err != nil {
		return nil, mapReadError(err, "ledger transaction", arg)
	}
	return txn, nil
}

func (d Datasource) GetLedgerTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	return d.getLedgerTransaction(ctx, "transaction_id", id)
}

func (d Datasource) GetLedgerTransactionByReference(ctx context.Context, reference string) (*model.LedgerTransaction, error) {
	return d.getLedgerTransaction(ctx, "reference_id", reference)
}

func (d Datasource) GetReversalOf(ctx context.Context, transactionID string) (*model.LedgerTransaction, error) {
	return d.getLedgerTransaction(ctx, "reversal_of", transactionID)
}

func (d Datasource) queryPostings(ctx context.Context, query string, args ...interface{}) ([]model.LedgerTransaction, error) {
	rows, err := d.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve postings", err)
	}
	defer closeRows(rows)

	postings := []model.LedgerTransaction{}
	for rows.Next() {
		txn, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan posting", err)
		}
		postings = append(postings, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over postings", err)
	}
	return postings, nil
}

// GetAccountPostings lists postings that touch accountID booked in [from, to),
// oldest first. The id column breaks ties between postings of one settlement.
func (d Datasource) GetAccountPostings(ctx context.Context, accountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	return d.queryPostings(ctx, `
		SELECT `+ledgerTransactionColumns+` FROM tally.ledger_transactions
		WHERE (debit_account_id = $1 OR credit_account_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id`, accountID, from, to)
}

func (d Datasource) SumAccountPostingsBefore(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := d.q().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN credit_account_id = $1 THEN amount ELSE -amount END), 0)
		FROM tally.ledger_transactions
		WHERE (debit_account_id = $1 OR credit_account_id = $1) AND created_at < $2`, accountID, before).Scan(&sum)
	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute opening balance", err)
	}
	return sum, nil
}

func (d Datasource) GetBankPostings(ctx context.Context, bankAccountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	return d.queryPostings(ctx, `
		SELECT `+ledgerTransactionColumns+` FROM tally.ledger_transactions
		WHERE bank_account_id = $1 AND bank_effect <> 'NONE' AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id`, bankAccountID, from, to)
}

func (d Datasource) SumBankPostingsBefore(ctx context.Context, bankAccountID string, before time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := d.q().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN bank_effect = 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM tally.ledger_transactions
		WHERE bank_account_id = $1 AND bank_effect <> 'NONE' AND created_at < $2`, bankAccountID, before).Scan(&sum)
	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute opening balance", err)
	}
	return sum, nil
}
