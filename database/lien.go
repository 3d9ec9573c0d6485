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

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const lienColumns = `lien_id, bank_account_id, amount, purpose, reference_id, reason, status, start_date, expires_at, released_at`

func scanLien(row rowScanner) (*model.AccountLien, error) {
	lien := &model.AccountLien{}
	var expiresAt, releasedAt sql.NullTime
	err := row.Scan(&lien.LienID, &lien.BankAccountID, &lien.Amount, &lien.Purpose, &lien.ReferenceID,
		&lien.Reason, &lien.Status, &lien.StartDate, &expiresAt, &releasedAt)
	if err != nil {
		return nil, err
	}
	lien.ExpiresAt = timePtr(expiresAt)
	lien.ReleasedAt = timePtr(releasedAt)
	return lien, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func (d Datasource) CreateLien(ctx context.Context, lien *model.AccountLien) error {
	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.account_liens (lien_id, bank_account_id, amount, purpose, reference_id, reason, status, start_date, expires_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lien.LienID, lien.BankAccountID, lien.Amount.String(), lien.Purpose, lien.ReferenceID, lien.Reason,
		lien.Status, lien.StartDate, nullTime(lien.ExpiresAt), nullTime(lien.ReleasedAt),
	)
	if err != nil {
		return mapWriteError(err, "lien")
	}
	return nil
}

func (d Datasource) GetLien(ctx context.Context, id string) (*model.AccountLien, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+lienColumns+` FROM tally.account_liens WHERE lien_id = $1`, id)
	lien, err := scanLien(row)
	if err != nil {
		return nil, mapReadError(err, "lien", id)
	}
	return lien, nil
}

func (d Datasource) LockLien(ctx context.Context, id string) (*model.AccountLien, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+lienColumns+` FROM tally.account_liens WHERE lien_id = $1`+d.lockClause(), id)
	lien, err := scanLien(row)
	if err != nil {
		return nil, mapReadError(err, "lien", id)
	}
	return lien, nil
}

func (d Datasource) UpdateLien(ctx context.Context, lien *model.AccountLien) error {
	result, err := d.q().ExecContext(ctx, `
		UPDATE tally.account_liens SET status = $2, reason = $3, released_at = $4 WHERE lien_id = $1`,
		lien.LienID, lien.Status, lien.Reason, nullTime(lien.ReleasedAt),
	)
	if err != nil {
		return mapWriteError(err, "lien")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NotFound("lien with ID '%s' not found", lien.LienID)
	}
	return nil
}

func (d Datasource) GetActiveLiens(ctx context.Context, bankAccountID string) ([]model.AccountLien, error) {
	rows, err := d.q().QueryContext(ctx, `
		SELECT `+lienColumns+` FROM tally.account_liens WHERE bank_account_id = $1 AND status = $2 ORDER BY start_date`,
		bankAccountID, model.LienActive)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve liens", err)
	}
	defer closeRows(rows)

	liens := []model.AccountLien{}
	for rows.Next() {
		lien, err := scanLien(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan lien", err)
		}
		liens = append(liens, *lien)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over liens", err)
	}
	return liens, nil
}
