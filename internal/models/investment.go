package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass tags an investment with the instrument family that decides how
// it is valued, taxed and aggregated.
type AssetClass string

const (
	ClassFD             AssetClass = "fd"
	ClassRD             AssetClass = "rd"
	ClassMutualFund     AssetClass = "mutual_fund"
	ClassStock          AssetClass = "stock"
	ClassGold           AssetClass = "gold"
	ClassLoan           AssetClass = "loan"
	ClassPPF            AssetClass = "ppf"
	ClassNPS            AssetClass = "nps"
	ClassRealEstate     AssetClass = "real_estate"
	ClassInsurance      AssetClass = "insurance"
	ClassPlannedExpense AssetClass = "planned_expense"
)

// AllAssetClasses lists every supported class; dispatch switches should cover
// each of these so a new class shows up as a visible gap.
var AllAssetClasses = []AssetClass{
	ClassFD, ClassRD, ClassMutualFund, ClassStock, ClassGold, ClassLoan,
	ClassPPF, ClassNPS, ClassRealEstate, ClassInsurance, ClassPlannedExpense,
}

func (c AssetClass) Valid() bool {
	for _, k := range AllAssetClasses {
		if c == k {
			return true
		}
	}
	return false
}

// IsDeposit reports whether the class matures like a fixed-income deposit.
func (c AssetClass) IsDeposit() bool {
	return c == ClassFD || c == ClassRD || c == ClassPPF || c == ClassNPS || c == ClassInsurance
}

// IsMarketLinked reports whether valuation requires a market price.
func (c AssetClass) IsMarketLinked() bool {
	return c == ClassMutualFund || c == ClassStock
}

// IsLiability reports whether the class represents money owed rather than held.
func (c AssetClass) IsLiability() bool { return c == ClassLoan }

// IsEquityLike decides the capital-gains regime (365-day long-term threshold).
// Debt-like classes use the 3-year threshold instead.
func (c AssetClass) IsEquityLike() bool { return c == ClassStock }

// CompoundingFrequency enumerates how often deposit interest compounds.
type CompoundingFrequency string

const (
	CompoundMonthly    CompoundingFrequency = "monthly"
	CompoundQuarterly  CompoundingFrequency = "quarterly"
	CompoundHalfYearly CompoundingFrequency = "half_yearly"
	CompoundYearly     CompoundingFrequency = "yearly"
)

// PeriodsPerYear maps the frequency to compounding periods; unknown values
// fall back to yearly rather than producing a zero divisor.
func (f CompoundingFrequency) PeriodsPerYear() int {
	switch f {
	case CompoundMonthly:
		return 12
	case CompoundQuarterly:
		return 4
	case CompoundHalfYearly:
		return 2
	default:
		return 1
	}
}

// GoldPurity is the karat grade of a physical gold holding.
type GoldPurity string

const (
	Gold24K GoldPurity = "24k"
	Gold22K GoldPurity = "22k"
	Gold18K GoldPurity = "18k"
)

// Factor converts a 24K market price into the price of this purity.
func (p GoldPurity) Factor() decimal.Decimal {
	switch p {
	case Gold22K:
		return decimal.NewFromInt(22).Div(decimal.NewFromInt(24))
	case Gold18K:
		return decimal.NewFromInt(18).Div(decimal.NewFromInt(24))
	default:
		return decimal.NewFromInt(1)
	}
}

// Investment is one holding in the portfolio. Exactly one Detail variant is
// populated, matching Class.
type Investment struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Class     AssetClass `json:"class"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	Detail    Detail     `json:"detail"`
}

// Detail is the tagged per-class payload. Consumers must branch on Class; the
// variant pointers for other classes are nil.
type Detail struct {
	Class AssetClass `json:"class"`

	Deposit   *DepositDetail   `json:"deposit,omitempty"`
	Recurring *RecurringDetail `json:"recurring,omitempty"`
	Fund      *FundDetail      `json:"fund,omitempty"`
	Stock     *StockDetail     `json:"stock,omitempty"`
	Gold      *GoldDetail      `json:"gold,omitempty"`
	Loan      *LoanDetail      `json:"loan,omitempty"`
	Pension   *PensionDetail   `json:"pension,omitempty"`
	Asset     *AssetDetail     `json:"asset,omitempty"`
	Insurance *InsuranceDetail `json:"insurance,omitempty"`
	Planned   *PlannedDetail   `json:"planned,omitempty"`
}

// DepositDetail backs fixed deposits.
type DepositDetail struct {
	Principal    decimal.Decimal      `json:"principal"`
	AnnualRate   decimal.Decimal      `json:"annualRate"` // fractional, 0.08 for 8%
	Compounding  CompoundingFrequency `json:"compounding"`
	StartDate    time.Time            `json:"startDate"`
	MaturityDate time.Time            `json:"maturityDate"`
}

// RecurringDetail backs recurring deposits: one installment per calendar month.
type RecurringDetail struct {
	MonthlyInstallment decimal.Decimal      `json:"monthlyInstallment"`
	AnnualRate         decimal.Decimal      `json:"annualRate"`
	Compounding        CompoundingFrequency `json:"compounding"`
	StartDate          time.Time            `json:"startDate"`
	MaturityDate       time.Time            `json:"maturityDate"`
}

// FundDetail backs mutual funds. SchemeCode is the preferred price symbol;
// ISIN is the legacy identifier used as a fallback.
type FundDetail struct {
	ISIN       string    `json:"isin"`
	SchemeCode string    `json:"schemeCode"`
	FolioNo    string    `json:"folioNo,omitempty"`
	StartDate  time.Time `json:"startDate"`
}

// StockDetail backs listed equities.
type StockDetail struct {
	Ticker    string    `json:"ticker"`
	Exchange  string    `json:"exchange"`
	StartDate time.Time `json:"startDate"`
}

// GoldDetail backs physical gold.
type GoldDetail struct {
	WeightGrams      decimal.Decimal `json:"weightGrams"`
	Purity           GoldPurity      `json:"purity"`
	PricePerGramPaid decimal.Decimal `json:"pricePerGramPaid"`
	PurchaseDate     time.Time       `json:"purchaseDate"`
}

// LoanDetail backs loans; valuation is the outstanding balance.
type LoanDetail struct {
	Principal  decimal.Decimal `json:"principal"`
	AnnualRate decimal.Decimal `json:"annualRate"`
	EMI        decimal.Decimal `json:"emi"`
	StartDate  time.Time       `json:"startDate"`
}

// PensionDetail backs PPF and NPS: total deposits compounded annually from
// the first contribution.
type PensionDetail struct {
	TotalDeposits     decimal.Decimal `json:"totalDeposits"`
	AnnualRate        decimal.Decimal `json:"annualRate"`
	FirstContribution time.Time       `json:"firstContribution"`
}

// AssetDetail backs appreciating physical assets such as real estate.
type AssetDetail struct {
	PurchasePrice    decimal.Decimal `json:"purchasePrice"`
	AppreciationRate decimal.Decimal `json:"appreciationRate"`
	PurchaseDate     time.Time       `json:"purchaseDate"`
}

// InsuranceDetail backs endowment-style policies, valued as premiums paid
// compounded to date and frozen at maturity.
type InsuranceDetail struct {
	TotalPremiumsPaid decimal.Decimal `json:"totalPremiumsPaid"`
	AnnualRate        decimal.Decimal `json:"annualRate"`
	StartDate         time.Time       `json:"startDate"`
	MaturityDate      time.Time       `json:"maturityDate"`
}

// PlannedDetail backs planned expenses: money earmarked for a known outflow.
type PlannedDetail struct {
	Amount     decimal.Decimal `json:"amount"`
	TargetDate time.Time       `json:"targetDate"`
}

// StartDate resolves the real inception date of the holding, which drives
// historical snapshot eligibility. The record-creation timestamp is only a
// last resort: investments are frequently entered long after they began.
func (i Investment) StartDate() time.Time {
	d := i.Detail
	switch i.Class {
	case ClassFD:
		if d.Deposit != nil && !d.Deposit.StartDate.IsZero() {
			return d.Deposit.StartDate
		}
	case ClassRD:
		if d.Recurring != nil && !d.Recurring.StartDate.IsZero() {
			return d.Recurring.StartDate
		}
	case ClassMutualFund:
		if d.Fund != nil && !d.Fund.StartDate.IsZero() {
			return d.Fund.StartDate
		}
	case ClassStock:
		if d.Stock != nil && !d.Stock.StartDate.IsZero() {
			return d.Stock.StartDate
		}
	case ClassGold:
		if d.Gold != nil && !d.Gold.PurchaseDate.IsZero() {
			return d.Gold.PurchaseDate
		}
	case ClassLoan:
		if d.Loan != nil && !d.Loan.StartDate.IsZero() {
			return d.Loan.StartDate
		}
	case ClassPPF, ClassNPS:
		if d.Pension != nil && !d.Pension.FirstContribution.IsZero() {
			return d.Pension.FirstContribution
		}
	case ClassRealEstate:
		if d.Asset != nil && !d.Asset.PurchaseDate.IsZero() {
			return d.Asset.PurchaseDate
		}
	case ClassInsurance:
		if d.Insurance != nil && !d.Insurance.StartDate.IsZero() {
			return d.Insurance.StartDate
		}
	case ClassPlannedExpense:
		// planned expenses exist from the moment they are recorded
	}
	return i.CreatedAt
}

// PriceSymbol returns the symbols to try for market valuation, in preference
// order. Funds prefer the scheme code over the legacy ISIN.
func (i Investment) PriceSymbols() []string {
	switch i.Class {
	case ClassMutualFund:
		if i.Detail.Fund == nil {
			return nil
		}
		syms := []string{}
		if i.Detail.Fund.SchemeCode != "" {
			syms = append(syms, i.Detail.Fund.SchemeCode)
		}
		if i.Detail.Fund.ISIN != "" {
			syms = append(syms, i.Detail.Fund.ISIN)
		}
		return syms
	case ClassStock:
		if i.Detail.Stock == nil || i.Detail.Stock.Ticker == "" {
			return nil
		}
		return []string{i.Detail.Stock.Ticker}
	case ClassGold:
		return []string{GoldSymbol}
	}
	return nil
}

// GoldSymbol is the price-cache symbol for 24K gold per gram.
const GoldSymbol = "GOLD_24K_INR_GRAM"
