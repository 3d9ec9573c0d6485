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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

var ipoTracer = otel.Tracer("tally.ipo")

// IPORequest is a customer's application for newly issued shares.
type IPORequest struct {
	BankAccountID string
	Symbol        string
	Price         decimal.Decimal
	Quantity      int64
	MakerID       string
}

// ApplyIPO holds price × quantity on the applicant's bank account and moves
// the same amount from the customer ledger into IPO Fund Hold, where it waits
// for allotment.
func (t *Tally) ApplyIPO(ctx context.Context, req IPORequest) (*model.IPOApplication, error) {
	ctx, span := ipoTracer.Start(ctx, "ApplyIPO")
	defer span.End()

	var application *model.IPOApplication
	err := t.inUnit(ctx, func(ctx context.Context, u *unit) error {
		bank, err := u.ds.GetBankAccount(ctx, req.BankAccountID)
		if err != nil {
			return err
		}
		app, err := model.NewIPOApplication(bank.BankAccountID, bank.CustomerID, req.Symbol, req.Price, req.Quantity, req.MakerID)
		if err != nil {
			return err
		}
		app.CreatedAt = u.now

		customerID, err := u.customerAccountID(ctx, bank.CustomerID)
		if err != nil {
			return err
		}
		holdID, err := u.systemAccountID(ctx, model.IPOFundHold)
		if err != nil {
			return err
		}
		if _, err := u.lockBalances(ctx, customerID, holdID); err != nil {
			return err
		}

		lien, err := u.placeHold(ctx, bank.BankAccountID, app.Amount, model.LienPurposeIPOApplication, app.LienReference(), nil)
		if err != nil {
			return err
		}
		app.LienID = lien.LienID

		if _, err := u.post(ctx, model.Posting{
			DebitAccountID:  customerID,
			CreditAccountID: holdID,
			Amount:          app.Amount,
			Type:            model.TypeTransfer,
			Particulars:     fmt.Sprintf("IPO application %s for %d %s", app.ApplicationID, app.Quantity, app.Symbol),
			MakerID:         req.MakerID,
		}); err != nil {
			return err
		}
		if err := u.ds.CreateIPOApplication(ctx, app); err != nil {
			return err
		}
		application = app
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to apply for IPO", err)
	}

	logrus.WithFields(logrus.Fields{
		"application": application.ApplicationID,
		"symbol":      application.Symbol,
		"amount":      application.Amount.String(),
	}).Info("IPO application recorded")
	return application, nil
}

func (t *Tally) GetIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	return t.datasource.GetIPOApplication(ctx, id)
}

// AllotIPO asks for an application to be settled with quantity units. Zero
// means nothing was allotted and the whole amount is refunded.
func (t *Tally) AllotIPO(ctx context.Context, applicationID string, quantity int64, makerID string) (*model.PendingTransaction, error) {
	payload, err := json.Marshal(model.AllotmentPayload{ApplicationID: applicationID, AllottedQuantity: quantity})
	if err != nil {
		return nil, err
	}
	return t.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingIPOAllotment,
		MakerID: makerID,
		Payload: payload,
	})
}

func (u *unit) allotmentApplication(ctx context.Context, raw json.RawMessage) (*model.AllotmentPayload, *model.IPOApplication, error) {
	var payload model.AllotmentPayload
	if err := decodeRequestPayload(raw, &payload); err != nil {
		return nil, nil, err
	}
	app, err := u.checkAllotment(ctx, payload)
	if err != nil {
		return nil, nil, err
	}
	return &payload, app, nil
}

// checkAllotment loads the application a draft settles and checks it can
// still be allotted that many units.
func (u *unit) checkAllotment(ctx context.Context, draft model.AllotmentPayload) (*model.IPOApplication, error) {
	if draft.ApplicationID == "" {
		return nil, apierror.Validation("application is required")
	}
	app, err := u.ds.GetIPOApplication(ctx, draft.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != model.IPOApplied {
		return nil, apierror.StateConflict("application %s is already %s", app.ApplicationID, app.Status)
	}
	if draft.AllottedQuantity < 0 || draft.AllottedQuantity > app.Quantity {
		return nil, apierror.Validation("allotted quantity %d must be between 0 and %d", draft.AllottedQuantity, app.Quantity)
	}
	return app, nil
}

// prepareAllotment sizes the request at the application amount and targets
// the applicant.
func (u *unit) prepareAllotment(ctx context.Context, req *PendingRequest) error {
	_, app, err := u.allotmentApplication(ctx, req.Payload)
	if err != nil {
		return err
	}
	req.Amount = app.Amount
	req.Target = model.PendingTarget{BankAccountID: app.BankAccountID, CustomerID: app.CustomerID}
	if req.Description == "" {
		req.Description = fmt.Sprintf("IPO allotment %s %s", app.Symbol, app.ApplicationID)
	}
	return nil
}

// attachApplicationLien points the request at the hold placed when the
// customer applied. No new hold is needed.
func (u *unit) attachApplicationLien(ctx context.Context, p *model.PendingTransaction) error {
	_, app, err := u.allotmentApplication(ctx, p.Payload)
	if err != nil {
		return err
	}
	p.LienID = app.LienID
	return nil
}

// allotment releases the whole application hold, debits the bank for the
// allotted amount only and refunds the rest from IPO Fund Hold to the
// customer ledger. The unallotted part never left the bank balance, so
// releasing the hold is the refund on the bank side.
func (s *settlement) allotment(ctx context.Context) error {
	var payload model.AllotmentPayload
	if err := s.pending.DecodePayload(&payload); err != nil {
		return err
	}
	app, err := s.ds.LockIPOApplication(ctx, payload.ApplicationID)
	if err != nil {
		return err
	}
	return s.allotApplication(ctx, app, payload.AllottedQuantity)
}

// allotApplication settles one locked application for quantity units.
func (s *settlement) allotApplication(ctx context.Context, app *model.IPOApplication, quantity int64) error {
	allotted, refund, err := app.Allot(quantity, s.now)
	if err != nil {
		return err
	}

	holdID, err := s.systemAccountID(ctx, model.IPOFundHold)
	if err != nil {
		return err
	}
	capitalID, err := s.systemAccountID(ctx, model.CoreCapital)
	if err != nil {
		return err
	}
	customerID, err := s.customerAccountID(ctx, app.CustomerID)
	if err != nil {
		return err
	}
	if _, err := s.lockBalances(ctx, holdID, capitalID, customerID); err != nil {
		return err
	}

	if _, _, err := s.releaseHold(ctx, app.LienID, model.LienReleased, "IPO settled "+app.ApplicationID); err != nil {
		return err
	}

	if allotted.IsPositive() {
		if err := s.debitBank(ctx, app.BankAccountID, allotted); err != nil {
			return err
		}
		if err := s.leg(ctx, model.Posting{
			DebitAccountID:  holdID,
			CreditAccountID: capitalID,
			Amount:          allotted,
			Type:            model.TypeAllotment,
			Particulars:     fmt.Sprintf("Allotted %d %s", app.AllottedQuantity, app.Symbol),
			BankAccountID:   app.BankAccountID,
			BankEffect:      model.BankEffectDebit,
		}); err != nil {
			return err
		}
		if err := s.addToHolding(ctx, app.CustomerID, app.Symbol, model.InstrumentEquity, app.AllottedQuantity, allotted); err != nil {
			return err
		}
	}

	if err := s.leg(ctx, model.Posting{
		DebitAccountID:  holdID,
		CreditAccountID: customerID,
		Amount:          refund,
		Type:            model.TypeRefund,
		Particulars:     fmt.Sprintf("IPO refund %s", app.ApplicationID),
	}); err != nil {
		return err
	}
	return s.ds.UpdateIPOApplication(ctx, app)
}
