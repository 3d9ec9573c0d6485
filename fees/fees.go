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

// Package fees holds the trade charge and capital gains tax schedule. Every
// function is pure: no ledger access and no side effects.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/model"
)

// Calculator prices a trade and taxes its gain.
type Calculator interface {
	TradeFees(amount decimal.Decimal, class model.InstrumentClass) model.TradeFees
	CapitalGainsTax(gain decimal.Decimal, holdingDays int, investorKind string) decimal.Decimal
}

type tier struct {
	upTo decimal.Decimal // inclusive; zero means unbounded
	rate decimal.Decimal // fraction of the amount
	flat decimal.Decimal // used instead of rate when non-zero
}

// Schedule is the default broker schedule.
type Schedule struct {
	commission    map[model.InstrumentClass][]tier
	regulatorRate map[model.InstrumentClass]decimal.Decimal
	minCommission decimal.Decimal
	custodyCharge decimal.Decimal
	cgtShortTerm  decimal.Decimal
	cgtLongTerm   decimal.Decimal
	cgtEntity     decimal.Decimal
	longTermDays  int
}

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s).Div(decimal.NewFromInt(100))
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func NewSchedule() *Schedule {
	return &Schedule{
		commission: map[model.InstrumentClass][]tier{
			model.InstrumentEquity: {
				{upTo: amt("2500"), flat: amt("10")},
				{upTo: amt("50000"), rate: pct("0.36")},
				{upTo: amt("500000"), rate: pct("0.33")},
				{upTo: amt("2000000"), rate: pct("0.31")},
				{upTo: amt("10000000"), rate: pct("0.27")},
				{rate: pct("0.24")},
			},
			model.InstrumentBond: {
				{upTo: amt("500000"), rate: pct("0.10")},
				{upTo: amt("5000000"), rate: pct("0.05")},
				{rate: pct("0.02")},
			},
			model.InstrumentMutualFund: {
				{upTo: amt("500000"), rate: pct("0.15")},
				{upTo: amt("5000000"), rate: pct("0.12")},
				{rate: pct("0.10")},
			},
		},
		regulatorRate: map[model.InstrumentClass]decimal.Decimal{
			model.InstrumentEquity:     pct("0.015"),
			model.InstrumentBond:       pct("0.010"),
			model.InstrumentMutualFund: pct("0.005"),
		},
		minCommission: amt("10"),
		custodyCharge: amt("25"),
		cgtShortTerm:  pct("7.5"),
		cgtLongTerm:   pct("5"),
		cgtEntity:     pct("10"),
		longTermDays:  365,
	}
}

func classOrDefault(class model.InstrumentClass) model.InstrumentClass {
	if class == "" {
		return model.InstrumentEquity
	}
	return class
}

// Commission is the broker commission on amount, never below the minimum.
func (s *Schedule) Commission(amount decimal.Decimal, class model.InstrumentClass) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	tiers := s.commission[classOrDefault(class)]
	commission := decimal.Zero
	for _, t := range tiers {
		if t.upTo.IsZero() || amount.LessThanOrEqual(t.upTo) {
			if t.flat.IsPositive() {
				commission = t.flat
			} else {
				commission = amount.Mul(t.rate)
			}
			break
		}
	}
	if commission.LessThan(s.minCommission) {
		commission = s.minCommission
	}
	return model.RoundMoney(commission)
}

func (s *Schedule) RegulatorFee(amount decimal.Decimal, class model.InstrumentClass) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return model.RoundMoney(amount.Mul(s.regulatorRate[classOrDefault(class)]))
}

func (s *Schedule) CustodyCharge() decimal.Decimal {
	return s.custodyCharge
}

func (s *Schedule) TradeFees(amount decimal.Decimal, class model.InstrumentClass) model.TradeFees {
	return model.TradeFees{
		Commission:    s.Commission(amount, class),
		RegulatorFee:  s.RegulatorFee(amount, class),
		CustodyCharge: s.CustodyCharge(),
	}
}

// CapitalGainsTax is zero for a non-positive gain. Entities pay a flat rate;
// individuals pay the long-term rate from longTermDays onwards.
func (s *Schedule) CapitalGainsTax(gain decimal.Decimal, holdingDays int, investorKind string) decimal.Decimal {
	if !gain.IsPositive() {
		return decimal.Zero
	}
	rate := s.cgtShortTerm
	switch {
	case investorKind == model.InvestorEntity:
		rate = s.cgtEntity
	case holdingDays >= s.longTermDays:
		rate = s.cgtLongTerm
	}
	return model.RoundMoney(gain.Mul(rate))
}
