package finance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	// ListTransactions returns one page of matching transactions, newest
	// first, and the number of matches.
	ListTransactions(ctx context.Context, r DateRange, f TransactionFilter, limit, page int64) ([]Transaction, int64, error)
	// TransactionsInRange returns every transaction in r, including failed
	// ones.
	TransactionsInRange(ctx context.Context, r DateRange) ([]Transaction, error)
	AddTransaction(ctx context.Context, t Transaction) error

	ListBankAccounts(ctx context.Context) ([]BankAccount, error)
	SetDefaultBankAccount(ctx context.Context, id string) error
	ListPaymentProcessors(ctx context.Context) ([]PaymentProcessor, error)

	GetPayoutSettings(ctx context.Context) (PayoutSettings, error)
	SavePayoutSettings(ctx context.Context, s PayoutSettings) error
}

// Seed is the canned data a fresh back office starts with.
type Seed struct {
	Transactions   []Transaction
	BankAccounts   []BankAccount
	Processors     []PaymentProcessor
	PayoutSettings PayoutSettings
}

func purchase(id string, at time.Time, amount string, status TransactionStatus, name, email, product string, qty int) Transaction {
	amt := decimal.RequireFromString(amount)
	fee := CardFee(amt)
	return Transaction{
		ID:          id,
		Date:        at,
		Amount:      amt,
		Fee:         fee,
		Net:         amt.Sub(fee),
		Type:        TypeCardPurchase,
		Status:      status,
		Description: "NFC card order",
		Customer:    &Customer{Name: name, Email: email},
		Payment:     &PaymentDetails{Method: "card", Last4: "4242"},
		Order:       &OrderRef{ID: "ord_" + id[len(id)-3:], Product: product, Quantity: qty},
	}
}

// DefaultSeed builds demo data dated relative to now.
func DefaultSeed(now time.Time) Seed {
	day := 24 * time.Hour
	primary := Destination{BankAccountID: "ba_primary", BankName: "First National Bank", Last4: "6789"}

	return Seed{
		Transactions: []Transaction{
			purchase("txn_seed_001", now.Add(-1*day), "91.00", StatusCompleted, "Sarah Johnson", "sarah@example.com", "basic", 3),
			purchase("txn_seed_002", now.Add(-2*day), "118.00", StatusCompleted, "Michael Chen", "michael@example.com", "premium", 2),
			{
				ID: "po_seed_003", Date: now.Add(-3 * day), Amount: decimal.RequireFromString("150.00"),
				Fee: decimal.Zero, Net: decimal.RequireFromString("150.00"),
				Type: TypePayout, Status: StatusCompleted, Description: "Weekly payout", Destination: &primary,
			},
			purchase("txn_seed_004", now.Add(-4*day), "32.00", StatusCompleted, "Emily Davis", "emily@example.com", "basic", 1),
			{
				ID: "re_seed_005", Date: now.Add(-5 * day), Amount: decimal.RequireFromString("32.00"),
				Fee: decimal.Zero, Net: decimal.RequireFromString("32.00"),
				Type: TypeRefund, Status: StatusCompleted, Description: "Refund for txn_seed_004",
				Customer: &Customer{Name: "Emily Davis", Email: "emily@example.com"},
			},
			purchase("txn_seed_006", now.Add(-6*day), "59.00", StatusFailed, "James Wilson", "james@example.com", "basic", 2),
			{
				ID: "po_seed_007", Date: now.Add(-12 * time.Hour), Amount: decimal.RequireFromString("50.00"),
				Fee: decimal.Zero, Net: decimal.RequireFromString("50.00"),
				Type: TypePayout, Status: StatusProcessing, Description: "Manual payout", Destination: &primary,
			},
			purchase("txn_seed_008", now.Add(-8*day), "285.00", StatusCompleted, "Olivia Martinez", "olivia@example.com", "premium", 5),
		},
		BankAccounts: []BankAccount{
			{ID: "ba_primary", BankName: "First National Bank", AccountHolder: "NFC Cards LLC", Last4: "6789", Currency: "USD", IsDefault: true, Verified: true},
			{ID: "ba_savings", BankName: "Chase", AccountHolder: "NFC Cards LLC", Last4: "4321", Currency: "USD", Verified: true},
		},
		Processors: []PaymentProcessor{
			{ID: "stripe", Name: "Stripe", Connected: true, FeePercent: decimal.RequireFromString("2.9"), FeeFixed: decimal.RequireFromString("0.30"), IsDefault: true},
			{ID: "paypal", Name: "PayPal", Connected: true, FeePercent: decimal.RequireFromString("3.49"), FeeFixed: decimal.RequireFromString("0.49")},
			{ID: "square", Name: "Square", Connected: false, FeePercent: decimal.RequireFromString("2.6"), FeeFixed: decimal.RequireFromString("0.10")},
		},
		PayoutSettings: PayoutSettings{
			Schedule:             ScheduleWeekly,
			MinimumAmount:        decimal.RequireFromString("25.00"),
			DefaultBankAccountID: "ba_primary",
			AutoPayout:           true,
		},
	}
}

type InMemoryRepository struct {
	mu         sync.RWMutex
	txs        []Transaction
	accounts   []BankAccount
	processors []PaymentProcessor
	settings   PayoutSettings
}

func NewInMemoryRepository(seed Seed) *InMemoryRepository {
	r := &InMemoryRepository{
		txs:        make([]Transaction, len(seed.Transactions)),
		accounts:   make([]BankAccount, len(seed.BankAccounts)),
		processors: make([]PaymentProcessor, len(seed.Processors)),
		settings:   seed.PayoutSettings,
	}
	copy(r.txs, seed.Transactions)
	copy(r.accounts, seed.BankAccounts)
	copy(r.processors, seed.Processors)
	return r
}

func (r *InMemoryRepository) ListTransactions(_ context.Context, dr DateRange, f TransactionFilter, limit, page int64) ([]Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Transaction, 0)
	for _, t := range r.txs {
		if dr.Contains(t.Date) && f.Match(t) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	total := int64(len(matched))
	offset := (page - 1) * limit
	if offset >= total {
		return []Transaction{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *InMemoryRepository) TransactionsInRange(_ context.Context, dr DateRange) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Transaction, 0, len(r.txs))
	for _, t := range r.txs {
		if dr.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) AddTransaction(_ context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txs = append(r.txs, t)
	return nil
}

func (r *InMemoryRepository) ListBankAccounts(_ context.Context) ([]BankAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BankAccount, len(r.accounts))
	copy(out, r.accounts)
	return out, nil
}

func (r *InMemoryRepository) SetDefaultBankAccount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, a := range r.accounts {
		if a.ID == id {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	for i := range r.accounts {
		r.accounts[i].IsDefault = r.accounts[i].ID == id
	}
	r.settings.DefaultBankAccountID = id
	return nil
}

func (r *InMemoryRepository) ListPaymentProcessors(_ context.Context) ([]PaymentProcessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PaymentProcessor, len(r.processors))
	copy(out, r.processors)
	return out, nil
}

func (r *InMemoryRepository) GetPayoutSettings(_ context.Context) (PayoutSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings, nil
}

func (r *InMemoryRepository) SavePayoutSettings(_ context.Context, s PayoutSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
	return nil
}
