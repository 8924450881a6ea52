package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalGainEntry is one disposal allocation classified for tax.
type CapitalGainEntry struct {
	InvestmentID   string          `json:"investmentId"`
	InvestmentName string          `json:"investmentName"`
	Class          AssetClass      `json:"class"`
	SellDate       time.Time       `json:"sellDate"`
	AcquiredAt     time.Time       `json:"acquiredAt"`
	HoldingDays    int             `json:"holdingDays"`
	Units          decimal.Decimal `json:"units"`
	CostBasis      decimal.Decimal `json:"costBasis"`
	Proceeds       decimal.Decimal `json:"proceeds"`
	Gain           decimal.Decimal `json:"gain"`
	LongTerm       bool            `json:"longTerm"`
}

// TaxBucket sums gains and tax for one (regime, term) combination.
type TaxBucket struct {
	Gain    decimal.Decimal `json:"gain"`
	Taxable decimal.Decimal `json:"taxable"`
	Tax     decimal.Decimal `json:"tax"`
}

// TaxSummary is the capital-gains report for one financial year.
type TaxSummary struct {
	FYStart    time.Time          `json:"fyStart"`
	FYEnd      time.Time          `json:"fyEnd"`
	EquitySTCG TaxBucket          `json:"equityStcg"`
	EquityLTCG TaxBucket          `json:"equityLtcg"`
	DebtSTCG   TaxBucket          `json:"debtStcg"`
	DebtLTCG   TaxBucket          `json:"debtLtcg"`
	TotalTax   decimal.Decimal    `json:"totalTax"`
	Entries    []CapitalGainEntry `json:"entries"`
}
