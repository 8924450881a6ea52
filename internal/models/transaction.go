package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a cash or unit movement against an investment.
type TransactionType string

const (
	TxBuy        TransactionType = "buy"
	TxSell       TransactionType = "sell"
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxDividend   TransactionType = "dividend"
	TxInterest   TransactionType = "interest"
	TxSIP        TransactionType = "sip"
	TxEMI        TransactionType = "emi"
	TxPremium    TransactionType = "premium"
	TxBonus      TransactionType = "bonus"
	TxSplit      TransactionType = "split"
	TxMaturity   TransactionType = "maturity"
)

// Transaction is one ledger line for an investment. Units and UnitPrice are
// zero for pure cash movements.
type Transaction struct {
	ID           string          `json:"id"`
	InvestmentID string          `json:"investmentId"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Units        decimal.Decimal `json:"units,omitempty"`
	UnitPrice    decimal.Decimal `json:"unitPrice,omitempty"`
	Fees         decimal.Decimal `json:"fees,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// IsInflow reports whether the transaction puts money into the holding.
func (t TransactionType) IsInflow() bool {
	switch t {
	case TxBuy, TxDeposit, TxSIP, TxEMI, TxPremium:
		return true
	}
	return false
}

// IsOutflow reports whether the transaction takes money out of the holding.
func (t TransactionType) IsOutflow() bool {
	switch t {
	case TxSell, TxWithdrawal, TxMaturity:
		return true
	}
	return false
}

// IsAcquisition reports whether the transaction can open a cost-basis lot.
// Only purchases that carry a unit count and price qualify; bonus and split
// adjust unit balances without establishing a priced lot.
func (tx Transaction) IsAcquisition() bool {
	if tx.Type != TxBuy && tx.Type != TxSIP {
		return false
	}
	return tx.Units.IsPositive() && tx.UnitPrice.IsPositive()
}

// UnitDelta is the signed effect of the transaction on units held.
func (tx Transaction) UnitDelta() decimal.Decimal {
	switch tx.Type {
	case TxBuy, TxSIP, TxBonus, TxSplit:
		return tx.Units
	case TxSell:
		return tx.Units.Neg()
	}
	return decimal.Zero
}

// Lot is a discrete acquisition batch. Immutable except UnitsRemaining,
// which only FIFO disposal may decrement.
type Lot struct {
	ID             string          `json:"id"`
	InvestmentID   string          `json:"investmentId"`
	TransactionID  string          `json:"transactionId"`
	UnitsBought    decimal.Decimal `json:"unitsBought"`
	UnitsRemaining decimal.Decimal `json:"unitsRemaining"`
	CostPerUnit    decimal.Decimal `json:"costPerUnit"`
	AcquiredAt     time.Time       `json:"acquiredAt"`
}

// SellAllocation links one sell transaction to one lot it consumed. Written
// once at disposal time and never mutated; it is the cost-basis audit trail.
type SellAllocation struct {
	ID            string          `json:"id"`
	SellTxID      string          `json:"sellTxId"`
	LotID         string          `json:"lotId"`
	InvestmentID  string          `json:"investmentId"`
	UnitsSold     decimal.Decimal `json:"unitsSold"`
	CostPerUnit   decimal.Decimal `json:"costPerUnit"`
	LotAcquiredAt time.Time       `json:"lotAcquiredAt"`
	SoldAt        time.Time       `json:"soldAt"`
}

// Override is a user-asserted value for an investment. From its date forward
// it supersedes formula and market valuation until a newer override appears.
type Override struct {
	ID           string          `json:"id"`
	InvestmentID string          `json:"investmentId"`
	Value        decimal.Decimal `json:"value"`
	AsOf         time.Time       `json:"asOf"`
	CreatedAt    time.Time       `json:"createdAt"`
}
