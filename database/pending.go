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
	"encoding/json"

	"github.com/lib/pq"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const pendingColumns = `pending_id, type, amount, bank_account_id, customer_id, investor_id, ledger_account_id, description,
	maker_id, checker_id, status, rejection_reason, payload, lien_id, settlement_refs, created_at, verified_at`

func scanPending(row rowScanner) (*model.PendingTransaction, error) {
	p := &model.PendingTransaction{}
	var bankAccount, customer, investor, ledgerAccount, checker, reason, lienID sql.NullString
	var payload []byte
	var verifiedAt sql.NullTime
	err := row.Scan(&p.PendingID, &p.Type, &p.Amount, &bankAccount, &customer, &investor, &ledgerAccount,
		&p.Description, &p.MakerID, &checker, &p.Status, &reason, &payload, &lienID,
		pq.Array(&p.SettlementRefs), &p.CreatedAt, &verifiedAt)
	if err != nil {
		return nil, err
	}
	p.BankAccountID = bankAccount.String
	p.CustomerID = customer.String
	p.InvestorID = investor.String
	p.LedgerAccountID = ledgerAccount.String
	p.CheckerID = checker.String
	p.RejectionReason = reason.String
	p.LienID = lienID.String
	p.VerifiedAt = timePtr(verifiedAt)
	if len(payload) > 0 {
		p.Payload = json.RawMessage(payload)
	}
	return p, nil
}

func nullPayload(payload json.RawMessage) interface{} {
	if len(payload) == 0 {
		return nil
	}
	return []byte(payload)
}

func (d Datasource) CreatePendingTransaction(ctx context.Context, p *model.PendingTransaction) error {
	refs := p.SettlementRefs
	if refs == nil {
		refs = []string{}
	}
	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.pending_transactions (pending_id, type, amount, bank_account_id, customer_id, investor_id,
			ledger_account_id, description, maker_id, checker_id, status, rejection_reason, payload, lien_id,
			settlement_refs, created_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.PendingID, p.Type, p.Amount.String(), nullString(p.BankAccountID), nullString(p.CustomerID),
		nullString(p.InvestorID), nullString(p.LedgerAccountID), p.Description, p.MakerID, nullString(p.CheckerID),
		p.Status, nullString(p.RejectionReason), nullPayload(p.Payload), nullString(p.LienID),
		pq.Array(refs), p.CreatedAt, nullTime(p.VerifiedAt),
	)
	if err != nil {
		return mapWriteError(err, "pending transaction")
	}
	return nil
}

func (d Datasource) GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM tally.pending_transactions WHERE pending_id = $1`, id)
	p, err := scanPending(row)
	if err != nil {
		return nil, mapReadError(err, "pending transaction", id)
	}
	return p, nil
}

func (d Datasource) LockPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM tally.pending_transactions WHERE pending_id = $1`+d.lockClause(), id)
	p, err := scanPending(row)
	if err != nil {
		return nil, mapReadError(err, "pending transaction", id)
	}
	return p, nil
}

// UpdatePendingTransaction persists a status transition. The status guard
// makes a second transition from a terminal state affect no rows.
func (d Datasource) UpdatePendingTransaction(ctx context.Context, p *model.PendingTransaction) error {
	refs := p.SettlementRefs
	if refs == nil {
		refs = []string{}
	}
	result, err := d.q().ExecContext(ctx, `
		UPDATE tally.pending_transactions
		SET status = $2, checker_id = $3, rejection_reason = $4, lien_id = $5, settlement_refs = $6, verified_at = $7
		WHERE pending_id = $1 AND status = $8`,
		p.PendingID, p.Status, nullString(p.CheckerID), nullString(p.RejectionReason), nullString(p.LienID),
		pq.Array(refs), nullTime(p.VerifiedAt), model.PendingStatusPending,
	)
	if err != nil {
		return mapWriteError(err, "pending transaction")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.StateConflict("pending transaction %s is no longer PENDING", p.PendingID)
	}
	return nil
}

func (d Datasource) ListPendingTransactions(ctx context.Context, status model.PendingStatus, limit, offset int) ([]model.PendingTransaction, error) {
	rows, err := d.q().QueryContext(ctx, `
		SELECT `+pendingColumns+` FROM tally.pending_transactions
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending transactions", err)
	}
	defer closeRows(rows)

	pending := []model.PendingTransaction{}
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan pending transaction", err)
		}
		pending = append(pending, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over pending transactions", err)
	}
	return pending, nil
}
