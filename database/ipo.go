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

const ipoColumns = `application_id, bank_account_id, customer_id, symbol, price, quantity, amount, allotted_quantity,
	lien_id, maker_id, status, created_at, settled_at`

func scanIPOApplication(row rowScanner) (*model.IPOApplication, error) {
	a := &model.IPOApplication{}
	var lienID sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(&a.ApplicationID, &a.BankAccountID, &a.CustomerID, &a.Symbol, &a.Price, &a.Quantity, &a.Amount,
		&a.AllottedQuantity, &lienID, &a.MakerID, &a.Status, &a.CreatedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	a.LienID = lienID.String
	a.SettledAt = timePtr(settledAt)
	return a, nil
}

func (d Datasource) CreateIPOApplication(ctx context.Context, a *model.IPOApplication) error {
	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.ipo_applications (application_id, bank_account_id, customer_id, symbol, price, quantity, amount,
			allotted_quantity, lien_id, maker_id, status, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ApplicationID, a.BankAccountID, a.CustomerID, a.Symbol, a.Price.String(), a.Quantity, a.Amount.String(),
		a.AllottedQuantity, nullString(a.LienID), a.MakerID, a.Status, a.CreatedAt, nullTime(a.SettledAt),
	)
	if err != nil {
		return mapWriteError(err, "IPO application")
	}
	return nil
}

func (d Datasource) GetIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ipoColumns+` FROM tally.ipo_applications WHERE application_id = $1`, id)
	a, err := scanIPOApplication(row)
	if err != nil {
		return nil, mapReadError(err, "IPO application", id)
	}
	return a, nil
}

func (d Datasource) LockIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+ipoColumns+` FROM tally.ipo_applications WHERE application_id = $1`+d.lockClause(), id)
	a, err := scanIPOApplication(row)
	if err != nil {
		return nil, mapReadError(err, "IPO application", id)
	}
	return a, nil
}

func (d Datasource) UpdateIPOApplication(ctx context.Context, a *model.IPOApplication) error {
	result, err := d.q().ExecContext(ctx, `
		UPDATE tally.ipo_applications SET allotted_quantity = $2, lien_id = $3, status = $4, settled_at = $5
		WHERE application_id = $1`,
		a.ApplicationID, a.AllottedQuantity, nullString(a.LienID), a.Status, nullTime(a.SettledAt),
	)
	if err != nil {
		return mapWriteError(err, "IPO application")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NotFound("IPO application with ID '%s' not found", a.ApplicationID)
	}
	return nil
}
