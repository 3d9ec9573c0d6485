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

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const bankAccountColumns = `bank_account_id, account_number, customer_id, investor_id, balance, held_balance, created_at, updated_at`

func scanBankAccount(row rowScanner) (*model.BankAccount, error) {
	account := &model.BankAccount{}
	var investor sql.NullString
	err := row.Scan(&account.BankAccountID, &account.AccountNumber, &account.CustomerID, &investor,
		&account.Balance, &account.HeldBalance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.InvestorID = investor.String
	return account, nil
}

// CreateBankAccount registers a customer bank account fed from onboarding.
func (d Datasource) CreateBankAccount(ctx context.Context, account *model.BankAccount) error {
	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.bank_accounts (bank_account_id, account_number, customer_id, investor_id, balance, held_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.BankAccountID, account.AccountNumber, account.CustomerID, nullString(account.InvestorID),
		account.Balance.String(), account.HeldBalance.String(), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "bank account")
	}
	return nil
}

func (d Datasource) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+bankAccountColumns+` FROM tally.bank_accounts WHERE bank_account_id = $1`, id)
	account, err := scanBankAccount(row)
	if err != nil {
		return nil, mapReadError(err, "bank account", id)
	}
	return account, nil
}

func (d Datasource) LockBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+bankAccountColumns+` FROM tally.bank_accounts WHERE bank_account_id = $1`+d.lockClause(), id)
	account, err := scanBankAccount(row)
	if err != nil {
		return nil, mapReadError(err, "bank account", id)
	}
	return account, nil
}

// UpdateBankAccountBalances persists balance and held balance. The table's
// check constraints reject a negative spendable amount as a last line.
func (d Datasource) UpdateBankAccountBalances(ctx context.Context, account *model.BankAccount) error {
	result, err := d.q().ExecContext(ctx, `
		UPDATE tally.bank_accounts SET balance = $2, held_balance = $3, updated_at = $4 WHERE bank_account_id = $1`,
		account.BankAccountID, account.Balance.String(), account.HeldBalance.String(), account.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "bank account")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NotFound("bank account with ID '%s' not found", account.BankAccountID)
	}
	return nil
}
