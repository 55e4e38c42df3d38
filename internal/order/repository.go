package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/nfc-card-backend/internal/pricing"
)

const StatusPaid = "paid"

type ShippingContact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Confirmation is what remains of a draft once it is paid for. Card details
// other than the last four digits are never kept.
type Confirmation struct {
	TransactionID  string                 `json:"transactionId"`
	AccountID      string                 `json:"accountId"`
	DraftID        string                 `json:"draftId"`
	CardType       pricing.CardType       `json:"cardType"`
	CardColor      CardColor              `json:"cardColor"`
	CardStyle      CardStyle              `json:"cardStyle"`
	Quantity       int                    `json:"quantity"`
	ShippingMethod pricing.ShippingMethod `json:"shippingMethod"`
	ShipTo         ShippingContact        `json:"shipTo"`
	CardLast4      string                 `json:"cardLast4"`
	Subtotal       decimal.Decimal        `json:"subtotal"`
	Shipping       decimal.Decimal        `json:"shipping"`
	Tax            decimal.Decimal        `json:"tax"`
	Total          decimal.Decimal        `json:"total"`
	Status         string                 `json:"status"`
	CreatedAt      time.Time              `json:"createdAt"`
}

func newConfirmation(d Draft, txID string, totals pricing.Totals, at time.Time) Confirmation {
	f := d.State.Form
	return Confirmation{
		TransactionID:  txID,
		AccountID:      d.OwnerID,
		DraftID:        d.ID,
		CardType:       f.CardType,
		CardColor:      f.CardColor,
		CardStyle:      f.CardStyle,
		Quantity:       f.Quantity,
		ShippingMethod: f.ShippingMethod,
		ShipTo: ShippingContact{
			Name:    f.Name,
			Email:   f.Email,
			Address: f.Address,
			City:    f.City,
			State:   f.State,
			ZipCode: f.ZipCode,
			Country: f.Country,
		},
		CardLast4: f.CardLast4(),
		Subtotal:  totals.Subtotal,
		Shipping:  totals.Shipping,
		Tax:       totals.Tax,
		Total:     totals.Total,
		Status:    StatusPaid,
		CreatedAt: at,
	}
}

// Repository stores confirmations of paid orders.
type Repository interface {
	Save(ctx context.Context, c Confirmation) error
	// ListByAccount returns one page of an account's confirmations, newest
	// first, plus the total number the account has.
	ListByAccount(ctx context.Context, accountID string, limit, page int64) ([]Confirmation, int64, error)
	GetByTransactionID(ctx context.Context, txID string) (Confirmation, error)
	// GetByDraftID finds the confirmation written for a draft, if any.
	GetByDraftID(ctx context.Context, draftID string) (Confirmation, error)
}

type InMemoryRepository struct {
	mu    sync.RWMutex
	items []Confirmation
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(_ context.Context, c Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, c)
	return nil
}

func (r *InMemoryRepository) ListByAccount(_ context.Context, accountID string, limit, page int64) ([]Confirmation, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mine := make([]Confirmation, 0)
	for _, c := range r.items {
		if c.AccountID == accountID {
			mine = append(mine, c)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	total := int64(len(mine))
	offset := (page - 1) * limit
	if offset >= total {
		return []Confirmation{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *InMemoryRepository) GetByTransactionID(_ context.Context, txID string) (Confirmation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.items {
		if c.TransactionID == txID {
			return c, nil
		}
	}
	return Confirmation{}, ErrOrderNotFound
}

func (r *InMemoryRepository) GetByDraftID(_ context.Context, draftID string) (Confirmation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.items {
		if c.DraftID == draftID {
			return c, nil
		}
	}
	return Confirmation{}, ErrOrderNotFound
}
