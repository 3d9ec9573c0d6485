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

type IPOStatus string

const (
	IPOApplied     IPOStatus = "APPLIED"
	IPOAllotted    IPOStatus = "ALLOTTED"
	IPONotAllotted IPOStatus = "NOT_ALLOTTED"
)

type IPOApplication struct {
	ApplicationID    string          `json:"application_id"`
	BankAccountID    string          `json:"bank_account_id"`
	CustomerID       string          `json:"customer_id"`
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int64           `json:"quantity"`
	Amount           decimal.Decimal `json:"amount"`
	AllottedQuantity int64           `json:"allotted_quantity"`
	LienID           string          `json:"lien_id,omitempty"`
	MakerID          string          `json:"maker_id"`
	Status           IPOStatus       `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	SettledAt        *time.Time      `json:"settled_at,omitempty"`
}

func NewIPOApplication(bankAccountID, customerID, symbol string, price decimal.Decimal, quantity int64, makerID string) (*IPOApplication, error) {
	switch {
	case bankAccountID == "":
		return nil, apierror.Validation("bank account is required")
	case strings.TrimSpace(symbol) == "":
		return nil, apierror.Validation("symbol is required")
	case !price.IsPositive():
		return nil, apierror.Validation("price must be positive, got %s", price.String())
	case quantity <= 0:
		return nil, apierror.Validation("quantity must be positive, got %d", quantity)
	case makerID == "":
		return nil, apierror.Validation("maker is required")
	}
	return &IPOApplication{
		ApplicationID: GenerateUUIDWithSuffix("ipo"),
		BankAccountID: bankAccountID,
		CustomerID:    customerID,
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Price:         price,
		Quantity:      quantity,
		Amount:        RoundMoney(price.Mul(decimal.NewFromInt(quantity))),
		MakerID:       makerID,
		Status:        IPOApplied,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// LienReference is the reference recorded on the application's hold.
func (a *IPOApplication) LienReference() string {
	return "IPO-APP-" + a.ApplicationID
}

// Allot settles the application for quantity units and returns the amount
// kept and the amount refunded. Zero marks it NOT_ALLOTTED.
func (a *IPOApplication) Allot(quantity int64, at time.Time) (allotted, refund decimal.Decimal, err error) {
	if a.Status != IPOApplied {
		return decimal.Zero, decimal.Zero, apierror.StateConflict("application %s is already %s", a.ApplicationID, a.Status)
	}
	if quantity < 0 || quantity > a.Quantity {
		return decimal.Zero, decimal.Zero, apierror.Validation("allotted quantity %d must be between 0 and %d", quantity, a.Quantity)
	}
	allotted = RoundMoney(a.Price.Mul(decimal.NewFromInt(quantity)))
	refund = a.Amount.Sub(allotted)

	a.AllottedQuantity = quantity
	a.SettledAt = &at
	if quantity == 0 {
		a.Status = IPONotAllotted
	} else {
		a.Status = IPOAllotted
	}
	return allotted, refund, nil
}
