package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wichananm65/nfc-card-backend/internal/payment"
	"github.com/wichananm65/nfc-card-backend/internal/pricing"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	defaultPageLimit     = 10
	maxPageLimit         = 100
)

// PurchaseRecorder is told about every paid order, e.g. to post it to the
// finance ledger.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, c Confirmation) error
}

type PurchaseRecorderFunc func(ctx context.Context, c Confirmation) error

func (f PurchaseRecorderFunc) RecordPurchase(ctx context.Context, c Confirmation) error {
	return f(ctx, c)
}

// SubmitResult is the outcome of one submission. A declined or timed out
// charge is a result, not an error: Success is false and Error says why.
type SubmitResult struct {
	Success       bool           `json:"success"`
	TransactionID string         `json:"transactionId,omitempty"`
	Error         string         `json:"error,omitempty"`
	Totals        pricing.Totals `json:"-"`
}

// Service runs the order flow on top of a draft store.
type Service struct {
	drafts  DraftStore
	orders  Repository
	gateway payment.Gateway
	ledger  PurchaseRecorder
	timeout time.Duration
	now     func() time.Time
}

// NewService wires the flow. ledger may be nil; a non-positive timeout falls
// back to the default.
func NewService(drafts DraftStore, orders Repository, gw payment.Gateway, ledger PurchaseRecorder, submitTimeout time.Duration) *Service {
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	return &Service{
		drafts:  drafts,
		orders:  orders,
		gateway: gw,
		ledger:  ledger,
		timeout: submitTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateDraft(ctx context.Context, ownerID string) (Draft, error) {
	now := s.now()
	d := Draft{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		State:     NewState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.drafts.Create(ctx, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, ownerID, id string) (Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.OwnerID != ownerID {
		return Draft{}, ErrNotFound
	}
	if !d.State.Processing {
		return d, nil
	}
	if _, err := s.orders.GetByDraftID(ctx, id); err != nil {
		return d, nil
	}
	if settled, err := s.mutate(ctx, ownerID, id, func(st State) (State, error) { return st, nil }); err == nil {
		return settled, nil
	}
	return d, nil
}

func (s *Service) DiscardDraft(ctx context.Context, ownerID, id string) error {
	d, err := s.GetDraft(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if d.State.Processing {
		return ErrSubmissionInProgress
	}
	return s.drafts.Delete(ctx, id)
}

// UpdateField sets one field on the draft.
func (s *Service) UpdateField(ctx context.Context, ownerID, id string, field Field, value string) (Draft, error) {
	return s.UpdateFields(ctx, ownerID, id, map[Field]string{field: value})
}

// UpdateFields sets several fields at once. Either every value is accepted or
// the draft is left as it was.
func (s *Service) UpdateFields(ctx context.Context, ownerID, id string, values map[Field]string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(st State) (State, error) {
		if err := st.CanEdit(); err != nil {
			return st, err
		}
		f := st.Form
		for field, value := range values {
			next, err := f.With(field, value)
			if err != nil {
				return st, err
			}
			f = next
		}
		for field, value := range values {
			st = Apply(st, FieldUpdated{Field: field, Value: value})
		}
		return st, nil
	})
}

func (s *Service) NextStep(ctx context.Context, ownerID, id string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(st State) (State, error) {
		if err := st.CanEdit(); err != nil {
			return st, err
		}
		return Apply(st, StepAdvanced{}), nil
	})
}

func (s *Service) PrevStep(ctx context.Context, ownerID, id string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(st State) (State, error) {
		if err := st.CanEdit(); err != nil {
			return st, err
		}
		return Apply(st, StepRetreated{}), nil
	})
}

// Totals prices the draft as it is right now.
func (s *Service) Totals(ctx context.Context, ownerID, id string) (pricing.Totals, error) {
	d, err := s.GetDraft(ctx, ownerID, id)
	if err != nil {
		return pricing.Totals{}, err
	}
	return d.State.Form.Totals()
}

// Submit charges the draft. Only one submission of a draft can be in flight;
// a concurrent call gets ErrSubmissionInProgress. Incomplete drafts return a
// *ValidationError and are not charged.
func (s *Service) Submit(ctx context.Context, ownerID, id string) (SubmitResult, error) {
	var invalid *ValidationError
	d, err := s.mutate(ctx, ownerID, id, func(st State) (State, error) {
		invalid = nil
		if err := st.CanSubmit(); err != nil {
			return st, err
		}
		if ve := Validate(st.Form); ve != nil {
			invalid = ve
			return Apply(st, SubmitFailed{Reason: ErrIncomplete.Error()}), nil
		}
		return Apply(st, SubmitStarted{}), nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if invalid != nil {
		return SubmitResult{}, invalid
	}

	totals, err := d.State.Form.Totals()
	if err != nil {
		return s.fail(ctx, ownerID, id, err.Error())
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.gateway.Charge(chargeCtx, payment.ChargeRequest{
		Reference:  d.ID,
		Amount:     totals.Total,
		Currency:   pricing.Currency,
		Email:      d.State.Form.Email,
		CardNumber: d.State.Form.CardNumber,
		CardExpiry: d.State.Form.CardExpiry,
		CardCVC:    d.State.Form.CardCVC,
		NameOnCard: d.State.Form.NameOnCard,
	})
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "order charge failed", "draft_id", id, "error", err)
		return s.fail(ctx, ownerID, id, failureMessage(err))
	}
	if res.TransactionID == "" {
		return s.fail(ctx, ownerID, id, "payment gateway returned no transaction id")
	}

	// The charge went through; finish even if the caller has gone away.
	// The confirmation is written first; settle uses it to complete a draft
	// left in processing.
	finishCtx := context.WithoutCancel(ctx)
	conf := newConfirmation(d, res.TransactionID, totals, s.now())
	if err := s.orders.Save(finishCtx, conf); err != nil {
		slog.ErrorContext(ctx, "could not save order confirmation", "transaction_id", conf.TransactionID, "error", err)
	}

	if _, err := s.mutate(finishCtx, ownerID, id, func(st State) (State, error) {
		return Apply(st, SubmitSucceeded{TransactionID: res.TransactionID}), nil
	}); err != nil {
		slog.ErrorContext(ctx, "could not mark draft complete", "draft_id", id, "transaction_id", res.TransactionID, "error", err)
	}

	if s.ledger != nil {
		if err := s.ledger.RecordPurchase(finishCtx, conf); err != nil {
			slog.WarnContext(ctx, "could not record purchase", "transaction_id", conf.TransactionID, "error", err)
		}
	}

	slog.InfoContext(ctx, "order completed", "draft_id", id, "transaction_id", res.TransactionID, "total", totals.Total.StringFixed(2))
	return SubmitResult{Success: true, TransactionID: res.TransactionID, Totals: totals}, nil
}

func (s *Service) fail(ctx context.Context, ownerID, id, reason string) (SubmitResult, error) {
	_, err := s.mutate(context.WithoutCancel(ctx), ownerID, id, func(st State) (State, error) {
		return Apply(st, SubmitFailed{Reason: reason}), nil
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("record failed submission of %s: %w", id, err)
	}
	return SubmitResult{Success: false, Error: reason}, nil
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "payment timed out, please try again"
	case errors.Is(err, payment.ErrDeclined):
		return "payment was declined"
	default:
		return "payment failed: " + err.Error()
	}
}

func (s *Service) mutate(ctx context.Context, ownerID, id string, fn func(State) (State, error)) (Draft, error) {
	return s.drafts.Update(ctx, id, func(d Draft) (Draft, error) {
		if d.OwnerID != ownerID {
			return d, ErrNotFound
		}
		st, err := fn(s.settle(ctx, d))
		if err != nil {
			return d, err
		}
		d.State = st
		d.UpdatedAt = s.now()
		return d, nil
	})
}

// settle completes a draft stuck in processing whose charge is already
// confirmed, e.g. after the store failed while the submission finished.
func (s *Service) settle(ctx context.Context, d Draft) State {
	if !d.State.Processing {
		return d.State
	}
	c, err := s.orders.GetByDraftID(ctx, d.ID)
	if err != nil {
		return d.State
	}
	return Apply(d.State, SubmitSucceeded{TransactionID: c.TransactionID})
}

// OrderPage is one page of an account's paid orders.
type OrderPage struct {
	Orders   []Confirmation
	Total    int64
	Page     int64
	Limit    int64
	LastPage int64
}

// ListOrders pages through the account's paid orders.
func (s *Service) ListOrders(ctx context.Context, accountID string, limit, page int64) (OrderPage, error) {
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page < 1 {
		page = 1
	}
	items, total, err := s.orders.ListByAccount(ctx, accountID, limit, page)
	if err != nil {
		return OrderPage{}, err
	}
	lastPage := (total + limit - 1) / limit
	if lastPage < 1 {
		lastPage = 1
	}
	return OrderPage{Orders: items, Total: total, Page: page, Limit: limit, LastPage: lastPage}, nil
}

func (s *Service) GetOrder(ctx context.Context, accountID, txID string) (Confirmation, error) {
	c, err := s.orders.GetByTransactionID(ctx, txID)
	if err != nil {
		return Confirmation{}, err
	}
	if c.AccountID != accountID {
		return Confirmation{}, ErrOrderNotFound
	}
	return c, nil
}
