// Package finance is the back office's financial data service. It is a
// stand-in for a real processor account: writes resolve after an artificial
// delay and fail at a configured rate.
package finance

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("finance record not found")
	ErrSimulatedFailure  = errors.New("simulated processor failure")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrInvalidSettings   = errors.New("invalid payout settings")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
)

type TransactionType string

const (
	TypeCardPurchase TransactionType = "card_purchase"
	TypePayout       TransactionType = "payout"
	TypeRefund       TransactionType = "refund"
)

type TransactionStatus string

const (
	StatusCompleted  TransactionStatus = "completed"
	StatusProcessing TransactionStatus = "processing"
	StatusFailed     TransactionStatus = "failed"
)

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PaymentDetails struct {
	Method string `json:"method"`
	Last4  string `json:"last4,omitempty"`
}

type OrderRef struct {
	ID       string `json:"id"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type Destination struct {
	BankAccountID string `json:"bankAccountId"`
	BankName      string `json:"bankName"`
	Last4         string `json:"last4"`
}

type Transaction struct {
	ID          string            `json:"id"`
	Date        time.Time         `json:"date"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Net         decimal.Decimal   `json:"net"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description,omitempty"`
	Customer    *Customer         `json:"customer,omitempty"`
	Payment     *PaymentDetails   `json:"payment,omitempty"`
	Order       *OrderRef         `json:"order,omitempty"`
	Destination *Destination      `json:"destination,omitempty"`
}

type BankAccount struct {
	ID            string `json:"id"`
	BankName      string `json:"bankName"`
	AccountHolder string `json:"accountHolder"`
	Last4         string `json:"last4"`
	Currency      string `json:"currency"`
	IsDefault     bool   `json:"isDefault"`
	Verified      bool   `json:"verified"`
}

type PaymentProcessor struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Connected  bool            `json:"connected"`
	FeePercent decimal.Decimal `json:"feePercent"`
	FeeFixed   decimal.Decimal `json:"feeFixed"`
	IsDefault  bool            `json:"isDefault"`
}

type PayoutSchedule string

const (
	ScheduleDaily   PayoutSchedule = "daily"
	ScheduleWeekly  PayoutSchedule = "weekly"
	ScheduleMonthly PayoutSchedule = "monthly"
	ScheduleManual  PayoutSchedule = "manual"
)

type PayoutSettings struct {
	Schedule             PayoutSchedule  `json:"schedule"`
	MinimumAmount        decimal.Decimal `json:"minimumAmount"`
	DefaultBankAccountID string          `json:"defaultBankAccountId"`
	AutoPayout           bool            `json:"autoPayout"`
}

type FinancialMetrics struct {
	GrossVolume       decimal.Decimal `json:"grossVolume"`
	Fees              decimal.Decimal `json:"fees"`
	NetVolume         decimal.Decimal `json:"netVolume"`
	Refunds           decimal.Decimal `json:"refunds"`
	CompletedPayouts  decimal.Decimal `json:"completedPayouts"`
	PendingPayouts    decimal.Decimal `json:"pendingPayouts"`
	AvailableBalance  decimal.Decimal `json:"availableBalance"`
	TransactionCount  int             `json:"transactionCount"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
}

// DateRange is half open: From is included, To is not. A zero bound is
// unbounded.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type TransactionFilter struct {
	Types    []TransactionType   `json:"types,omitempty"`
	Statuses []TransactionStatus `json:"statuses,omitempty"`
	Search   string              `json:"search,omitempty"`
}

func (f TransactionFilter) Match(t Transaction) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(t.ID + " " + t.Description)
		if t.Customer != nil {
			hay += " " + strings.ToLower(t.Customer.Name+" "+t.Customer.Email)
		}
		return strings.Contains(hay, q)
	}
	return true
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int64         `json:"page"`
	Limit        int64         `json:"limit"`
	LastPage     int64         `json:"lastPage"`
}

type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	Description   string          `json:"description"`
	CardLast4     string          `json:"cardLast4"`
}

type PayoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID string          `json:"bankAccountId"`
}

// Purchase is a paid card order reported by the order flow.
type Purchase struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	Product       string
	Quantity      int
	Amount        decimal.Decimal
	CardLast4     string
	At            time.Time
}

var (
	cardFeePercent = decimal.RequireFromString("0.029")
	cardFeeFixed   = decimal.RequireFromString("0.30")
)

// CardFee is the processing fee on a card charge: 2.9% + 0.30, in cents.
func CardFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(cardFeePercent).Add(cardFeeFixed).Round(2)
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
