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

package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

type InstrumentClass string

const (
	InstrumentEquity     InstrumentClass = "EQUITY"
	InstrumentBond       InstrumentClass = "BOND"
	InstrumentMutualFund InstrumentClass = "MUTUAL_FUND"
)

func (c InstrumentClass) Valid() bool {
	return c == InstrumentEquity || c == InstrumentBond || c == InstrumentMutualFund
}

const (
	HoldingActive = "ACTIVE"
	HoldingSold   = "SOLD"
)

// Holding is a customer's position in one instrument, carried at weighted-average cost.
type Holding struct {
	HoldingID       string          `json:"holding_id"`
	CustomerID      string          `json:"customer_id"`
	Symbol          string          `json:"symbol"`
	InstrumentClass InstrumentClass `json:"instrument_class"`
	Quantity        int64           `json:"quantity"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	AverageCost     decimal.Decimal `json:"average_cost"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewHolding(customerID, symbol string, class InstrumentClass) (*Holding, error) {
	if customerID == "" || strings.TrimSpace(symbol) == "" {
		return nil, apierror.Validation("holding requires a customer and a symbol")
	}
	if class == "" {
		class = InstrumentEquity
	}
	if !class.Valid() {
		return nil, apierror.Validation("unknown instrument class %q", class)
	}
	now := time.Now().UTC()
	return &Holding{
		HoldingID:       GenerateUUIDWithSuffix("hold"),
		CustomerID:      customerID,
		Symbol:          strings.ToUpper(strings.TrimSpace(symbol)),
		InstrumentClass: class,
		TotalCost:       decimal.Zero,
		AverageCost:     decimal.Zero,
		Status:          HoldingActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Add books quantity units bought for cost and re-averages the position.
func (h *Holding) Add(quantity int64, cost decimal.Decimal) error {
	if quantity <= 0 {
		return apierror.Validation("quantity must be positive, got %d", quantity)
	}
	if cost.IsNegative() {
		return apierror.Validation("cost cannot be negative")
	}
	h.Quantity += quantity
	h.TotalCost = h.TotalCost.Add(cost)
	h.AverageCost = RoundMoney(h.TotalCost.Div(decimal.NewFromInt(h.Quantity)))
	h.Status = HoldingActive
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// Remove takes quantity units out of the position and returns their cost basis.
func (h *Holding) Remove(quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, apierror.Validation("quantity must be positive, got %d", quantity)
	}
	if quantity > h.Quantity {
		return decimal.Zero, apierror.Validation("cannot sell %d units of %s, holding has %d", quantity, h.Symbol, h.Quantity)
	}
	basis := RoundMoney(h.AverageCost.Mul(decimal.NewFromInt(quantity)))
	h.Quantity -= quantity
	if h.Quantity == 0 {
		h.TotalCost = decimal.Zero
		h.Status = HoldingSold
	} else {
		h.TotalCost = h.TotalCost.Sub(basis)
	}
	h.UpdatedAt = time.Now().UTC()
	return basis, nil
}

// TradeFees are the charges settled with a trade.
type TradeFees struct {
	Commission    decimal.Decimal `json:"commission"`
	RegulatorFee  decimal.Decimal `json:"regulator_fee"`
	CustodyCharge decimal.Decimal `json:"custody_charge"`
}

func (f TradeFees) Total() decimal.Decimal {
	return f.Commission.Add(f.RegulatorFee).Add(f.CustodyCharge)
}

const (
	InvestorIndividual = "INDIVIDUAL"
	InvestorEntity     = "ENTITY"
)

// TradePayload carries the parameters of BUY_SHARES and SELL_SHARES. Fees are
// computed when the maker creates the request and settled as recorded.
type TradePayload struct {
	Symbol          string          `json:"symbol"`
	InstrumentClass InstrumentClass `json:"instrument_class"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	HoldingDays     int             `json:"holding_days,omitempty"`
	InvestorKind    string          `json:"investor_kind,omitempty"`
	Fees            *TradeFees      `json:"fees,omitempty"`
}

func (t TradePayload) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return apierror.Validation("symbol is required")
	}
	if t.Quantity <= 0 {
		return apierror.Validation("quantity must be positive, got %d", t.Quantity)
	}
	if !t.Price.IsPositive() {
		return apierror.Validation("price must be positive, got %s", t.Price.String())
	}
	if t.InstrumentClass != "" && !t.InstrumentClass.Valid() {
		return apierror.Validation("unknown instrument class %q", t.InstrumentClass)
	}
	if t.HoldingDays < 0 {
		return apierror.Validation("holding days cannot be negative")
	}
	return nil
}

// Gross is price times quantity.
func (t TradePayload) Gross() decimal.Decimal {
	return RoundMoney(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
}
