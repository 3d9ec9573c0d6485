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
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const ledgerAccountColumns = `account_id, name, class, owner_id, balance, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanLedgerAccount(row rowScanner) (*model.LedgerAccount, error) {
	account := &model.LedgerAccount{}
	var owner sql.NullString
	err := row.Scan(&account.AccountID, &account.Name, &account.Class, &owner, &account.Balance,
		&account.Status, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.OwnerID = owner.String
	return account, nil
}

// CreateLedgerAccount inserts a new ledger account row.
func (d Datasource) CreateLedgerAccount(ctx context.Context, account *model.LedgerAccount) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CreateLedgerAccount")
	defer span.End()

	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.ledger_accounts (account_id, name, class, owner_id, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.AccountID, account.Name, account.Class, nullString(account.OwnerID), account.Balance.String(),
		account.Status, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "ledger account")
	}
	return nil
}

// GetLedgerAccount retrieves a ledger account by ID.
func (d Datasource) GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ledgerAccountColumns+` FROM tally.ledger_accounts WHERE account_id = $1`, id)
	account, err := scanLedgerAccount(row)
	if err != nil {
		return nil, mapReadError(err, "ledger account", id)
	}
	return account, nil
}

// FindSystemAccount retrieves the unowned account with the given name.
func (d Datasource) FindSystemAccount(ctx context.Context, name string) (*model.LedgerAccount, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ledgerAccountColumns+` FROM tally.ledger_accounts WHERE name = $1 AND owner_id IS NULL`, name)
	account, err := scanLedgerAccount(row)
	if err != nil {
		return nil, mapReadError(err, "system account", name)
	}
	return account, nil
}

// FindOwnedAccount retrieves a customer or investor ledger.
func (d Datasource) FindOwnedAccount(ctx context.Context, class model.AccountClass, ownerID string) (*model.LedgerAccount, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ledgerAccountColumns+` FROM tally.ledger_accounts WHERE class = $1 AND owner_id = $2`, class, ownerID)
	account, err := scanLedgerAccount(row)
	if err != nil {
		return nil, mapReadError(err, fmt.Sprintf("%s account", class), ownerID)
	}
	return account, nil
}

// LockLedgerAccounts takes row locks on the given accounts one at a time in
// ascending id order, so two postings over the same pair can never deadlock.
func (d Datasource) LockLedgerAccounts(ctx context.Context, ids ...string) (map[string]*model.LedgerAccount, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "LockLedgerAccounts")
	defer span.End()

	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	sort.Strings(unique)

	accounts := make(map[string]*model.LedgerAccount, len(unique))
	for _, id := range unique {
		row := d.q().QueryRowContext(ctx, `SELECT `+ledgerAccountColumns+` FROM tally.ledger_accounts WHERE account_id = $1`+d.lockClause(), id)
		account, err := scanLedgerAccount(row)
		if err != nil {
			span.RecordError(err)
			return nil, mapReadError(err, "ledger account", id)
		}
		accounts[id] = account
	}
	return accounts, nil
}

// UpdateLedgerAccountBalance persists the balance of a locked account.
func (d Datasource) UpdateLedgerAccountBalance(ctx context.Context, account *model.LedgerAccount) error {
	result, err := d.q().ExecContext(ctx, `
		UPDATE tally.ledger_accounts SET balance = $2, updated_at = $3 WHERE account_id = $1`,
		account.AccountID, account.Balance.String(), account.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "ledger account")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NotFound("ledger account with ID '%s' not found", account.AccountID)
	}
	return nil
}

// ListLedgerAccounts lists accounts ordered by name. An empty class lists every class.
func (d Datasource) ListLedgerAccounts(ctx context.Context, class model.AccountClass, limit, offset int) ([]model.LedgerAccount, error) {
	rows, err := d.q().QueryContext(ctx, `
		SELECT `+ledgerAccountColumns+` FROM tally.ledger_accounts
		WHERE ($1::text = '' OR class = $1::text)
		ORDER BY name, account_id LIMIT $2 OFFSET $3`, string(class), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger accounts", err)
	}
	defer closeRows(rows)

	accounts := []model.LedgerAccount{}
	for rows.Next() {
		account, err := scanLedgerAccount(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger account", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over ledger accounts", err)
	}
	return accounts, nil
}

// NextSequence draws the next reference number from the shared Postgres sequence.
func (d Datasource) NextSequence(ctx context.Context) (int64, error) {
	var next int64
	err := d.q().QueryRowContext(ctx, `SELECT nextval('tally.transaction_ref_seq')`).Scan(&next)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to draw reference sequence", err)
	}
	return next, nil
}
