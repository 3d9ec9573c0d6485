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

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

const holdingColumns = `holding_id, customer_id, symbol, instrument_class, quantity, total_cost, average_cost, status, created_at, updated_at`

func scanHolding(row rowScanner) (*model.Holding, error) {
	h := &model.Holding{}
	err := row.Scan(&h.HoldingID, &h.CustomerID, &h.Symbol, &h.InstrumentClass, &h.Quantity, &h.TotalCost,
		&h.AverageCost, &h.Status, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (d Datasource) LockHolding(ctx context.Context, customerID, symbol string) (*model.Holding, error) {
	row := d.q().QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM tally.holdings WHERE customer_id = $1 AND symbol = $2`+d.lockClause(),
		customerID, symbol)
	h, err := scanHolding(row)
	if err != nil {
		return nil, mapReadError(err, "holding", customerID+"/"+symbol)
	}
	return h, nil
}

// SaveHolding upserts on (customer_id, symbol).
func (d Datasource) SaveHolding(ctx context.Context, h *model.Holding) error {
	_, err := d.q().ExecContext(ctx, `
		INSERT INTO tally.holdings (holding_id, customer_id, symbol, instrument_class, quantity, total_cost, average_cost, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT holdings_customer_symbol_key DO UPDATE
		SET quantity = EXCLUDED.quantity, total_cost = EXCLUDED.total_cost, average_cost = EXCLUDED.average_cost,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		h.HoldingID, h.CustomerID, h.Symbol, h.InstrumentClass, h.Quantity, h.TotalCost.String(),
		h.AverageCost.String(), h.Status, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "holding")
	}
	return nil
}

func (d Datasource) GetHoldings(ctx context.Context, customerID string) ([]model.Holding, error) {
	rows, err := d.q().QueryContext(ctx, `SELECT `+holdingColumns+` FROM tally.holdings WHERE customer_id = $1 ORDER BY symbol`, customerID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve holdings", err)
	}
	defer closeRows(rows)

	holdings := []model.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan holding", err)
		}
		holdings = append(holdings, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over holdings", err)
	}
	return holdings, nil
}
