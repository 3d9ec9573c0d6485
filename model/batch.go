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
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

// BulkDepositItem is one credit of a bulk deposit. With a bank account the
// bank is credited too; customer and investor are filled in from it.
type BulkDepositItem struct {
	BankAccountID string          `json:"bank_account_id,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	InvestorID    string          `json:"investor_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Remarks       string          `json:"remarks,omitempty"`
}

// BulkDepositPayload is the body of a BULK_DEPOSIT: many deposits a checker
// approves or rejects as one.
type BulkDepositPayload struct {
	Items []BulkDepositItem `json:"items"`
}

// Total validates every item and returns the sum the batch will move.
func (b BulkDepositPayload) Total() (decimal.Decimal, error) {
	if len(b.Items) == 0 {
		return decimal.Zero, apierror.Validation("bulk deposit has no items")
	}
	total := decimal.Zero
	for i, item := range b.Items {
		switch {
		case !item.Amount.IsPositive():
			return decimal.Zero, apierror.Validation("item %d: amount must be positive, got %s", i+1, item.Amount.String())
		case !item.Amount.Equal(RoundMoney(item.Amount)):
			return decimal.Zero, apierror.Validation("item %d: amount %s has more than %d decimal places", i+1, item.Amount.String(), MoneyScale)
		case item.CustomerID == "" && item.BankAccountID == "":
			return decimal.Zero, apierror.Validation("item %d: customer or bank account is required", i+1)
		}
		total = total.Add(item.Amount)
	}
	return total, nil
}

// AllotmentBatchPayload is the body of an IPO_ALLOTMENT_BATCH: the allotment
// drafts of one issue, settled together on approval.
type AllotmentBatchPayload struct {
	Symbol     string             `json:"symbol"`
	Allotments []AllotmentPayload `json:"allotments"`
}

// Validate checks the drafts are present and name each application once.
func (b AllotmentBatchPayload) Validate() error {
	if len(b.Allotments) == 0 {
		return apierror.Validation("allotment batch has no drafts")
	}
	seen := make(map[string]bool, len(b.Allotments))
	for _, draft := range b.Allotments {
		if draft.ApplicationID == "" {
			return apierror.Validation("every draft needs an application")
		}
		if seen[draft.ApplicationID] {
			return apierror.Validation("application %s appears twice in the batch", draft.ApplicationID)
		}
		seen[draft.ApplicationID] = true
	}
	return nil
}
