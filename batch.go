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

package tally

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

// CreateBulkDeposit files many deposits as one BULK_DEPOSIT. A checker
// approves or rejects the whole batch; approval settles every item in a
// single unit of work or none of them.
func (t *Tally) CreateBulkDeposit(ctx context.Context, items []model.BulkDepositItem, makerID, remarks string) (*model.PendingTransaction, error) {
	payload, err := json.Marshal(model.BulkDepositPayload{Items: items})
	if err != nil {
		return nil, err
	}
	return t.CreatePendingTransaction(ctx, PendingRequest{
		Type:        model.PendingBulkDeposit,
		MakerID:     makerID,
		Description: remarks,
		Payload:     payload,
	})
}

// SubmitAllotments files the allotment drafts of one issue as an
// IPO_ALLOTMENT_BATCH. Nothing settles until a checker approves it.
func (t *Tally) SubmitAllotments(ctx context.Context, symbol string, drafts []model.AllotmentPayload, makerID string) (*model.PendingTransaction, error) {
	payload, err := json.Marshal(model.AllotmentBatchPayload{Symbol: symbol, Allotments: drafts})
	if err != nil {
		return nil, err
	}
	return t.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingIPOAllotmentBatch,
		MakerID: makerID,
		Payload: payload,
	})
}

// prepareBulkDeposit validates the items, fills in customer and investor from
// each bank account and sizes the request at the batch total.
func (u *unit) prepareBulkDeposit(ctx context.Context, req *PendingRequest) error {
	var payload model.BulkDepositPayload
	if err := decodeRequestPayload(req.Payload, &payload); err != nil {
		return err
	}
	total, err := payload.Total()
	if err != nil {
		return err
	}
	for i := range payload.Items {
		item := &payload.Items[i]
		target := model.PendingTarget{BankAccountID: item.BankAccountID, CustomerID: item.CustomerID, InvestorID: item.InvestorID}
		if err := u.resolveTarget(ctx, &target); err != nil {
			return err
		}
		item.CustomerID, item.InvestorID = target.CustomerID, target.InvestorID
	}

	resolved, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req.Payload = resolved
	req.Amount = total
	req.Target = model.PendingTarget{}
	if req.Description == "" {
		req.Description = fmt.Sprintf("Bulk deposit of %d items", len(payload.Items))
	}
	return nil
}

// prepareAllotmentBatch checks every draft against its application and sizes
// the request at the amount the applications hold.
func (u *unit) prepareAllotmentBatch(ctx context.Context, req *PendingRequest) error {
	var payload model.AllotmentBatchPayload
	if err := decodeRequestPayload(req.Payload, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	payload.Symbol = strings.ToUpper(strings.TrimSpace(payload.Symbol))

	total := decimal.Zero
	for _, draft := range payload.Allotments {
		app, err := u.checkAllotment(ctx, draft)
		if err != nil {
			return err
		}
		if payload.Symbol == "" {
			payload.Symbol = app.Symbol
		}
		if app.Symbol != payload.Symbol {
			return apierror.Validation("application %s is for %s, not %s", app.ApplicationID, app.Symbol, payload.Symbol)
		}
		total = total.Add(app.Amount)
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req.Payload = normalized
	req.Amount = total
	req.Target = model.PendingTarget{}
	if req.Description == "" {
		req.Description = fmt.Sprintf("IPO allotment %s, %d applications", payload.Symbol, len(payload.Allotments))
	}
	return nil
}

// bulkDeposit posts one deposit per item. Every account the batch touches is
// locked in one call, and each funding source must cover its share of the
// batch before anything moves.
func (s *settlement) bulkDeposit(ctx context.Context) error {
	var payload model.BulkDepositPayload
	if err := s.pending.DecodePayload(&payload); err != nil {
		return err
	}

	type credit struct {
		fundingID  string
		customerID string
		item       model.BulkDepositItem
	}
	credits := make([]credit, 0, len(payload.Items))
	ids := make([]string, 0, 2*len(payload.Items))
	for _, item := range payload.Items {
		fundingID, err := s.fundingSourceID(ctx, item.InvestorID)
		if err != nil {
			return err
		}
		customerID, err := s.customerAccountID(ctx, item.CustomerID)
		if err != nil {
			return err
		}
		credits = append(credits, credit{fundingID: fundingID, customerID: customerID, item: item})
		ids = append(ids, fundingID, customerID)
	}
	accounts, err := s.lockBalances(ctx, ids...)
	if err != nil {
		return err
	}

	needed := make(map[string]decimal.Decimal)
	for _, c := range credits {
		needed[c.fundingID] = needed[c.fundingID].Add(c.item.Amount)
	}
	for _, c := range credits {
		if err := requireBalance(accounts[c.fundingID], needed[c.fundingID]); err != nil {
			return err
		}
	}

	for _, c := range credits {
		posting := model.Posting{
			DebitAccountID:  c.fundingID,
			CreditAccountID: c.customerID,
			Amount:          c.item.Amount,
			Type:            model.TypeDeposit,
			Particulars:     bulkParticulars(s.pending.PendingID, c.item.Remarks),
		}
		if c.item.BankAccountID != "" {
			if err := s.creditBank(ctx, c.item.BankAccountID, c.item.Amount); err != nil {
				return err
			}
			posting.BankAccountID = c.item.BankAccountID
			posting.BankEffect = model.BankEffectCredit
		}
		if err := s.leg(ctx, posting); err != nil {
			return err
		}
	}
	return nil
}

func bulkParticulars(pendingID, remarks string) string {
	if remarks == "" {
		return "Bulk deposit " + pendingID
	}
	return fmt.Sprintf("Bulk deposit %s: %s", pendingID, remarks)
}

// allotmentBatch settles every draft of the batch. All rows are locked in
// ascending id order before the first application settles, ledger accounts
// ahead of bank accounts as in a single allotment.
func (s *settlement) allotmentBatch(ctx context.Context) error {
	var payload model.AllotmentBatchPayload
	if err := s.pending.DecodePayload(&payload); err != nil {
		return err
	}
	drafts := append([]model.AllotmentPayload(nil), payload.Allotments...)
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].ApplicationID < drafts[j].ApplicationID })

	apps := make([]*model.IPOApplication, len(drafts))
	for i, draft := range drafts {
		app, err := s.ds.LockIPOApplication(ctx, draft.ApplicationID)
		if err != nil {
			return err
		}
		apps[i] = app
	}

	holdID, err := s.systemAccountID(ctx, model.IPOFundHold)
	if err != nil {
		return err
	}
	capitalID, err := s.systemAccountID(ctx, model.CoreCapital)
	if err != nil {
		return err
	}
	ids := []string{holdID, capitalID}
	banks := make([]string, 0, len(apps))
	for _, app := range apps {
		customerID, err := s.customerAccountID(ctx, app.CustomerID)
		if err != nil {
			return err
		}
		ids = append(ids, customerID)
		banks = append(banks, app.BankAccountID)
	}
	if _, err := s.lockBalances(ctx, ids...); err != nil {
		return err
	}
	sort.Strings(banks)
	for i, id := range banks {
		if i > 0 && banks[i-1] == id {
			continue
		}
		if _, err := s.ds.LockBankAccount(ctx, id); err != nil {
			return err
		}
	}

	for i, app := range apps {
		if err := s.allotApplication(ctx, app, drafts[i].AllottedQuantity); err != nil {
			return err
		}
	}
	return nil
}
