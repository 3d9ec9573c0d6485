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
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

// priceTrade validates a trade payload and records its fees on it. A buy is
// sized at gross plus fees, which is what the hold covers; a sell is sized at
// the gross proceeds.
func (u *unit) priceTrade(req *PendingRequest) error {
	var trade model.TradePayload
	if err := decodeRequestPayload(req.Payload, &trade); err != nil {
		return err
	}
	if err := trade.Validate(); err != nil {
		return err
	}
	trade.Symbol = strings.ToUpper(strings.TrimSpace(trade.Symbol))
	if trade.InstrumentClass == "" {
		trade.InstrumentClass = model.InstrumentEquity
	}
	if trade.InvestorKind == "" {
		trade.InvestorKind = model.InvestorIndividual
	}

	gross := trade.Gross()
	fees := u.fees.TradeFees(gross, trade.InstrumentClass)
	trade.Fees = &fees

	req.Amount = gross
	if req.Type == model.PendingBuyShares {
		req.Amount = gross.Add(fees.Total())
	}
	payload, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	req.Payload = payload
	if req.Description == "" {
		verb := "Buy"
		if req.Type == model.PendingSellShares {
			verb = "Sell"
		}
		req.Description = fmt.Sprintf("%s %d %s @ %s", verb, trade.Quantity, trade.Symbol, trade.Price.StringFixed(model.MoneyScale))
	}
	return nil
}

func (s *settlement) trade() (model.TradePayload, model.TradeFees, error) {
	var trade model.TradePayload
	if err := s.pending.DecodePayload(&trade); err != nil {
		return trade, model.TradeFees{}, err
	}
	if err := trade.Validate(); err != nil {
		return trade, model.TradeFees{}, err
	}
	if trade.Fees == nil {
		return trade, s.fees.TradeFees(trade.Gross(), trade.InstrumentClass), nil
	}
	return trade, *trade.Fees, nil
}

// checkSellable fails when the customer does not hold enough units.
func (u *unit) checkSellable(ctx context.Context, p *model.PendingTransaction) error {
	var trade model.TradePayload
	if err := p.DecodePayload(&trade); err != nil {
		return err
	}
	holding, err := u.ds.LockHolding(ctx, p.CustomerID, trade.Symbol)
	if apierror.Is(err, apierror.ErrNotFound) {
		return apierror.InsufficientBalance("customer %s holds no %s", p.CustomerID, trade.Symbol)
	}
	if err != nil {
		return err
	}
	if holding.Quantity < trade.Quantity {
		return apierror.InsufficientBalance("customer %s holds %d %s, %d requested", p.CustomerID, holding.Quantity, trade.Symbol, trade.Quantity)
	}
	return nil
}

// addToHolding books units bought at cost, opening the position on first use.
func (u *unit) addToHolding(ctx context.Context, customerID, symbol string, class model.InstrumentClass, quantity int64, cost decimal.Decimal) error {
	holding, err := u.ds.LockHolding(ctx, customerID, symbol)
	if apierror.Is(err, apierror.ErrNotFound) {
		holding, err = model.NewHolding(customerID, symbol, class)
	}
	if err != nil {
		return err
	}
	if err := holding.Add(quantity, cost); err != nil {
		return err
	}
	holding.UpdatedAt = u.now
	return u.ds.SaveHolding(ctx, holding)
}

// buy settles a purchase through the share settlement account: the customer
// pays gross plus fees, the broker is paid its fees and the gross is moved
// to Invested. The position is carried at cost including fees.
func (s *settlement) buy(ctx context.Context) error {
	trade, fees, err := s.trade()
	if err != nil {
		return err
	}
	gross := trade.Gross()
	total := gross.Add(fees.Total())
	p := s.pending

	customerID, err := s.customerAccountID(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	suspenseID, err := s.systemAccountID(ctx, model.ShareSettlement)
	if err != nil {
		return err
	}
	brokerID, err := s.systemAccountID(ctx, model.BrokerPayable)
	if err != nil {
		return err
	}
	investedID, err := s.systemAccountID(ctx, model.Invested)
	if err != nil {
		return err
	}
	if _, err := s.lockBalances(ctx, customerID, suspenseID, brokerID, investedID); err != nil {
		return err
	}

	if err := s.releaseLien(ctx); err != nil {
		return err
	}
	if err := s.debitBank(ctx, p.BankAccountID, total); err != nil {
		return err
	}

	legs := []model.Posting{
		{DebitAccountID: customerID, CreditAccountID: suspenseID, Amount: total, Type: model.TypeSettlement,
			BankAccountID: p.BankAccountID, BankEffect: model.BankEffectDebit},
		{DebitAccountID: suspenseID, CreditAccountID: brokerID, Amount: fees.Total(), Type: model.TypeFee,
			Particulars: fmt.Sprintf("Trade fees %s", trade.Symbol)},
		{DebitAccountID: suspenseID, CreditAccountID: investedID, Amount: gross, Type: model.TypeSettlement},
	}
	for _, posting := range legs {
		if err := s.leg(ctx, posting); err != nil {
			return err
		}
	}
	return s.addToHolding(ctx, p.CustomerID, trade.Symbol, trade.InstrumentClass, trade.Quantity, total)
}

// SaleProceeds splits what a sale brings in.
type SaleProceeds struct {
	Gross         decimal.Decimal
	Fees          decimal.Decimal
	Tax           decimal.Decimal
	Principal     decimal.Decimal
	FundingShare  decimal.Decimal
	CustomerShare decimal.Decimal
}

// splitSale applies the profit-split rule. The funding source first recovers
// the cost basis, capped at the net proceeds, then takes share of whatever
// gain is left; the customer gets the rest.
func splitSale(gross, fees, basis, tax, share decimal.Decimal) (SaleProceeds, error) {
	net := gross.Sub(fees).Sub(tax)
	if net.IsNegative() {
		return SaleProceeds{}, apierror.Validation("sale proceeds %s do not cover fees %s and tax %s", gross.String(), fees.String(), tax.String())
	}
	principal := minDecimal(basis, net)
	remaining := net.Sub(principal)
	funding := model.RoundMoney(remaining.Mul(share))
	return SaleProceeds{
		Gross:         gross,
		Fees:          fees,
		Tax:           tax,
		Principal:     principal,
		FundingShare:  funding,
		CustomerShare: remaining.Sub(funding),
	}, nil
}

// sell settles a sale through the share settlement account. Proceeds come in
// from Office Cash and leave as fees, tax, principal and profit share to the
// funding source, and the customer's share to the customer ledger and bank.
func (s *settlement) sell(ctx context.Context) error {
	trade, fees, err := s.trade()
	if err != nil {
		return err
	}
	p := s.pending

	holding, err := s.ds.LockHolding(ctx, p.CustomerID, trade.Symbol)
	if apierror.Is(err, apierror.ErrNotFound) {
		return apierror.InsufficientBalance("customer %s holds no %s", p.CustomerID, trade.Symbol)
	}
	if err != nil {
		return err
	}
	basis, err := holding.Remove(trade.Quantity)
	if err != nil {
		return err
	}
	holding.UpdatedAt = s.now

	gross := trade.Gross()
	gain := gross.Sub(fees.Total()).Sub(basis)
	tax := s.fees.CapitalGainsTax(gain, trade.HoldingDays, trade.InvestorKind)
	proceeds, err := splitSale(gross, fees.Total(), basis, tax, s.settlement.ProfitShare())
	if err != nil {
		return err
	}

	officeID, err := s.systemAccountID(ctx, model.OfficeCash)
	if err != nil {
		return err
	}
	suspenseID, err := s.systemAccountID(ctx, model.ShareSettlement)
	if err != nil {
		return err
	}
	brokerID, err := s.systemAccountID(ctx, model.BrokerPayable)
	if err != nil {
		return err
	}
	taxID, err := s.systemAccountID(ctx, model.TaxPayable)
	if err != nil {
		return err
	}
	fundingID, err := s.fundingSourceID(ctx, p.InvestorID)
	if err != nil {
		return err
	}
	customerID, err := s.customerAccountID(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	if _, err := s.lockBalances(ctx, officeID, suspenseID, brokerID, taxID, fundingID, customerID); err != nil {
		return err
	}

	legs := []model.Posting{
		{DebitAccountID: officeID, CreditAccountID: suspenseID, Amount: proceeds.Gross, Type: model.TypeSettlement},
		{DebitAccountID: suspenseID, CreditAccountID: brokerID, Amount: proceeds.Fees, Type: model.TypeFee,
			Particulars: fmt.Sprintf("Trade fees %s", trade.Symbol)},
		{DebitAccountID: suspenseID, CreditAccountID: taxID, Amount: proceeds.Tax, Type: model.TypeFee,
			Particulars: fmt.Sprintf("Capital gains tax %s", trade.Symbol)},
		{DebitAccountID: suspenseID, CreditAccountID: fundingID, Amount: proceeds.Principal, Type: model.TypeTransfer,
			Particulars: fmt.Sprintf("Principal recovery %s", trade.Symbol)},
		{DebitAccountID: suspenseID, CreditAccountID: fundingID, Amount: proceeds.FundingShare, Type: model.TypeTransfer,
			Particulars: fmt.Sprintf("Profit share %s", trade.Symbol)},
	}
	for _, posting := range legs {
		if err := s.leg(ctx, posting); err != nil {
			return err
		}
	}

	if proceeds.CustomerShare.IsPositive() {
		if err := s.creditBank(ctx, p.BankAccountID, proceeds.CustomerShare); err != nil {
			return err
		}
		if err := s.leg(ctx, model.Posting{
			DebitAccountID:  suspenseID,
			CreditAccountID: customerID,
			Amount:          proceeds.CustomerShare,
			Type:            model.TypeSettlement,
			BankAccountID:   p.BankAccountID,
			BankEffect:      model.BankEffectCredit,
		}); err != nil {
			return err
		}
	}
	return s.ds.SaveHolding(ctx, holding)
}
