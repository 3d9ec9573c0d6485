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

package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/tally/model"
)

func TestCommissionTiers(t *testing.T) {
	s := NewSchedule()
	tests := []struct {
		amount string
		class  model.InstrumentClass
		want   string
	}{
		{"1000", model.InstrumentEquity, "10"},
		{"2500", model.InstrumentEquity, "10"},
		{"2600", model.InstrumentEquity, "10"},
		{"10000", model.InstrumentEquity, "36"},
		{"100000", model.InstrumentEquity, "330"},
		{"1000000", model.InstrumentEquity, "3100"},
		{"5000000", model.InstrumentEquity, "13500"},
		{"20000000", model.InstrumentEquity, "48000"},
		{"100000", "", "330"},
		{"100000", model.InstrumentBond, "100"},
		{"1000000", model.InstrumentBond, "500"},
		{"10000000", model.InstrumentBond, "2000"},
		{"100000", model.InstrumentMutualFund, "150"},
		{"1000000", model.InstrumentMutualFund, "1200"},
		{"1000", model.InstrumentBond, "10"},
	}
	for _, tt := range tests {
		t.Run(string(tt.class)+"_"+tt.amount, func(t *testing.T) {
			got := s.Commission(decimal.RequireFromString(tt.amount), tt.class)
			assert.Equal(t, tt.want, got.String())
		})
	}
	assert.True(t, s.Commission(decimal.Zero, model.InstrumentEquity).IsZero())
}

func TestTradeFees(t *testing.T) {
	s := NewSchedule()
	fees := s.TradeFees(decimal.RequireFromString("50000"), model.InstrumentEquity)
	assert.Equal(t, "180", fees.Commission.String())
	assert.Equal(t, "7.5", fees.RegulatorFee.String())
	assert.Equal(t, "25", fees.CustodyCharge.String())
	assert.Equal(t, "212.5", fees.Total().String())

	assert.Equal(t, "2.5", s.RegulatorFee(decimal.RequireFromString("50000"), model.InstrumentMutualFund).String())
	assert.Equal(t, "0.02", s.RegulatorFee(decimal.RequireFromString("111"), model.InstrumentEquity).String())
}

func TestCapitalGainsTax(t *testing.T) {
	s := NewSchedule()
	gain := decimal.RequireFromString("1000")
	assert.Equal(t, "75", s.CapitalGainsTax(gain, 30, model.InvestorIndividual).String())
	assert.Equal(t, "50", s.CapitalGainsTax(gain, 365, model.InvestorIndividual).String())
	assert.Equal(t, "100", s.CapitalGainsTax(gain, 30, model.InvestorEntity).String())
	assert.True(t, s.CapitalGainsTax(decimal.RequireFromString("-5"), 30, "").IsZero())
	assert.True(t, s.CapitalGainsTax(decimal.Zero, 30, "").IsZero())
}
