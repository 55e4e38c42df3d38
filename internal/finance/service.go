package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/nfc-card-backend/internal/cache"
)

const (
	cacheService     = "finance"
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type Options struct {
	// Latency is how long every write takes before it resolves.
	Latency time.Duration
	// FailureRate is the share of writes that fail with
	// ErrSimulatedFailure, in [0, 1].
	FailureRate float64
	// Source drives the failure draws. Nil seeds from the clock.
	Source rand.Source
}

type Service struct {
	repo        Repository
	cache       cache.Cache
	latency     time.Duration
	failureRate float64
	mu          sync.Mutex
	rnd         *rand.Rand
	// payoutMu is held from the balance check until the payout is stored.
	payoutMu sync.Mutex
	now      func() time.Time
}

// NewService builds the service. c may be nil, in which case reads are not
// cached.
func NewService(repo Repository, c cache.Cache, opts Options) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	src := opts.Source
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	rate := opts.FailureRate
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &Service{
		repo:        repo,
		cache:       c,
		latency:     opts.Latency,
		failureRate: rate,
		rnd:         rand.New(src),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// readThrough serves key from the cache, falling back to load. Cache errors
// are logged and otherwise ignored.
func readThrough[T any](ctx context.Context, c cache.Cache, key string, load func() (T, error)) (T, error) {
	if b, err := c.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		slog.WarnContext(ctx, "finance cache set failed", "key", key, "error", err)
	}
	return v, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeleteByPrefix(ctx, cacheService+":"); err != nil {
		slog.WarnContext(ctx, "finance cache invalidation failed", "error", err)
	}
}

// simulate waits out the configured latency and then draws the outcome of
// a write. It runs before anything is changed.
func (s *Service) simulate(ctx context.Context, op string) error {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	draw := s.rnd.Float64()
	s.mu.Unlock()

	if draw < s.failureRate {
		slog.WarnContext(ctx, "simulated finance failure", "operation", op)
		return fmt.Errorf("%s: %w", op, ErrSimulatedFailure)
	}
	return nil
}

func rangeKey(r DateRange) []string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return []string{format(r.From), format(r.To)}
}

func (s *Service) GetTransactions(ctx context.Context, r DateRange, page, limit int64, f TransactionFilter) (TransactionPage, error) {
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page < 1 {
		page = 1
	}

	types := make([]string, 0, len(f.Types))
	for _, t := range f.Types {
		types = append(types, string(t))
	}
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	parts := append(rangeKey(r),
		strconv.FormatInt(page, 10), strconv.FormatInt(limit, 10),
		strings.Join(types, ","), strings.Join(statuses, ","), strings.ToLower(f.Search))
	key := cache.Key(cacheService, "transactions", parts...)

	return readThrough(ctx, s.cache, key, func() (TransactionPage, error) {
		txs, total, err := s.repo.ListTransactions(ctx, r, f, limit, page)
		if err != nil {
			return TransactionPage{}, err
		}
		lastPage := (total + limit - 1) / limit
		if lastPage < 1 {
			lastPage = 1
		}
		return TransactionPage{Transactions: txs, Total: total, Page: page, Limit: limit, LastPage: lastPage}, nil
	})
}

func (s *Service) GetBankAccounts(ctx context.Context) ([]BankAccount, error) {
	return readThrough(ctx, s.cache, cache.Key(cacheService, "bank-accounts"), func() ([]BankAccount, error) {
		return s.repo.ListBankAccounts(ctx)
	})
}

func (s *Service) GetPaymentProcessors(ctx context.Context) ([]PaymentProcessor, error) {
	return readThrough(ctx, s.cache, cache.Key(cacheService, "processors"), func() ([]PaymentProcessor, error) {
		return s.repo.ListPaymentProcessors(ctx)
	})
}

func (s *Service) GetPayoutSettings(ctx context.Context) (PayoutSettings, error) {
	return readThrough(ctx, s.cache, cache.Key(cacheService, "payout-settings"), func() (PayoutSettings, error) {
		return s.repo.GetPayoutSettings(ctx)
	})
}

// GetFinancialMetrics summarizes r. The available balance always covers the
// whole history.
func (s *Service) GetFinancialMetrics(ctx context.Context, r DateRange) (FinancialMetrics, error) {
	key := cache.Key(cacheService, "metrics", rangeKey(r)...)
	return readThrough(ctx, s.cache, key, func() (FinancialMetrics, error) {
		inRange, err := s.repo.TransactionsInRange(ctx, r)
		if err != nil {
			return FinancialMetrics{}, err
		}
		balance, err := s.availableBalance(ctx)
		if err != nil {
			return FinancialMetrics{}, err
		}
		return ComputeMetrics(inRange, balance), nil
	})
}

func (s *Service) availableBalance(ctx context.Context) (decimal.Decimal, error) {
	all, err := s.repo.TransactionsInRange(ctx, DateRange{})
	if err != nil {
		return decimal.Zero, err
	}
	return AvailableBalance(all), nil
}

// ProcessPayment takes a one-off card payment.
func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (Transaction, error) {
	if !req.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if err := s.simulate(ctx, "process payment"); err != nil {
		return Transaction{}, err
	}

	amount := req.Amount.Round(2)
	fee := CardFee(amount)
	t := Transaction{
		ID:          newID("txn_"),
		Date:        s.now(),
		Amount:      amount,
		Fee:         fee,
		Net:         amount.Sub(fee),
		Type:        TypeCardPurchase,
		Status:      StatusCompleted,
		Description: req.Description,
		Payment:     &PaymentDetails{Method: "card", Last4: req.CardLast4},
	}
	if req.CustomerName != "" || req.CustomerEmail != "" {
		t.Customer = &Customer{Name: req.CustomerName, Email: req.CustomerEmail}
	}
	if err := s.repo.AddTransaction(ctx, t); err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	return t, nil
}

// InitiatePayoutToBank starts a payout of part of the available balance.
// The payout stays in processing until the bank settles it.
func (s *Service) InitiatePayoutToBank(ctx context.Context, req PayoutRequest) (Transaction, error) {
	if !req.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	accounts, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return Transaction{}, err
	}
	var dest *BankAccount
	for i := range accounts {
		if accounts[i].ID == req.BankAccountID {
			dest = &accounts[i]
		}
	}
	if dest == nil {
		return Transaction{}, fmt.Errorf("bank account %q: %w", req.BankAccountID, ErrNotFound)
	}

	s.payoutMu.Lock()
	defer s.payoutMu.Unlock()

	balance, err := s.availableBalance(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if req.Amount.GreaterThan(balance) {
		return Transaction{}, fmt.Errorf("payout %s exceeds %s: %w", req.Amount.StringFixed(2), balance.StringFixed(2), ErrInsufficientFunds)
	}
	if err := s.simulate(ctx, "initiate payout"); err != nil {
		return Transaction{}, err
	}

	amount := req.Amount.Round(2)
	t := Transaction{
		ID:          newID("po_"),
		Date:        s.now(),
		Amount:      amount,
		Fee:         decimal.Zero,
		Net:         amount,
		Type:        TypePayout,
		Status:      StatusProcessing,
		Description: "Payout to " + dest.BankName,
		Destination: &Destination{BankAccountID: dest.ID, BankName: dest.BankName, Last4: dest.Last4},
	}
	if err := s.repo.AddTransaction(ctx, t); err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	slog.InfoContext(ctx, "payout initiated", "payout_id", t.ID, "amount", amount.StringFixed(2), "bank_account_id", dest.ID)
	return t, nil
}

func (s *Service) UpdatePayoutSettings(ctx context.Context, ps PayoutSettings) (PayoutSettings, error) {
	switch ps.Schedule {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleManual:
	default:
		return PayoutSettings{}, fmt.Errorf("schedule %q: %w", ps.Schedule, ErrInvalidSettings)
	}
	if ps.MinimumAmount.IsNegative() {
		return PayoutSettings{}, fmt.Errorf("negative minimum amount: %w", ErrInvalidSettings)
	}
	accounts, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return PayoutSettings{}, err
	}
	known := false
	for _, a := range accounts {
		if a.ID == ps.DefaultBankAccountID {
			known = true
		}
	}
	if !known {
		return PayoutSettings{}, fmt.Errorf("bank account %q: %w", ps.DefaultBankAccountID, ErrInvalidSettings)
	}
	if err := s.simulate(ctx, "update payout settings"); err != nil {
		return PayoutSettings{}, err
	}

	ps.MinimumAmount = ps.MinimumAmount.Round(2)
	if err := s.repo.SavePayoutSettings(ctx, ps); err != nil {
		return PayoutSettings{}, err
	}
	if err := s.repo.SetDefaultBankAccount(ctx, ps.DefaultBankAccountID); err != nil {
		return PayoutSettings{}, err
	}
	s.invalidate(ctx)
	return ps, nil
}

func (s *Service) SetDefaultBankAccount(ctx context.Context, id string) error {
	accounts, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, a := range accounts {
		if a.ID == id {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("bank account %q: %w", id, ErrNotFound)
	}
	if err := s.simulate(ctx, "set default bank account"); err != nil {
		return err
	}
	if err := s.repo.SetDefaultBankAccount(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RecordPurchase posts a paid card order to the ledger. It skips the
// simulated latency and failures; the charge has already happened.
func (s *Service) RecordPurchase(ctx context.Context, p Purchase) (Transaction, error) {
	if !p.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	at := p.At
	if at.IsZero() {
		at = s.now()
	}
	fee := CardFee(p.Amount)
	t := Transaction{
		ID:          p.OrderID,
		Date:        at,
		Amount:      p.Amount,
		Fee:         fee,
		Net:         p.Amount.Sub(fee),
		Type:        TypeCardPurchase,
		Status:      StatusCompleted,
		Description: "NFC card order",
		Customer:    &Customer{Name: p.CustomerName, Email: p.CustomerEmail},
		Payment:     &PaymentDetails{Method: "card", Last4: p.CardLast4},
		Order:       &OrderRef{ID: p.OrderID, Product: p.Product, Quantity: p.Quantity},
	}
	if err := s.repo.AddTransaction(ctx, t); err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	return t, nil
}
