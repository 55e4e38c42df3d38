package order

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/wichananm65/nfc-card-backend/internal/payment"
)

const owner = "acct_1"

type recordingLedger struct {
	mu   sync.Mutex
	seen []Confirmation
	err  error
}

func (l *recordingLedger) RecordPurchase(_ context.Context, c Confirmation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, c)
	return l.err
}

type failingRepository struct {
	*InMemoryRepository
}

func (failingRepository) Save(context.Context, Confirmation) error {
	return errors.New("db down")
}

// completionFailingStore refuses the first write that would complete a draft.
type completionFailingStore struct {
	*InMemoryDraftStore
	failed bool
}

func (st *completionFailingStore) Update(ctx context.Context, id string, fn func(Draft) (Draft, error)) (Draft, error) {
	if !st.failed {
		cur, err := st.InMemoryDraftStore.Get(ctx, id)
		if err != nil {
			return Draft{}, err
		}
		if next, err := fn(cur); err == nil && next.State.Complete {
			st.failed = true
			return cur, errors.New("store unavailable")
		}
	}
	return st.InMemoryDraftStore.Update(ctx, id, fn)
}

// blockingGateway holds every charge until release is closed.
type blockingGateway struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Charge(ctx context.Context, _ payment.ChargeRequest) (payment.ChargeResult, error) {
	close(g.started)
	select {
	case <-g.release:
		return payment.ChargeResult{TransactionID: "txn_blocked", Status: payment.StatusSucceeded}, nil
	case <-ctx.Done():
		return payment.ChargeResult{}, ctx.Err()
	}
}

type OrderFlowSuite struct {
	suite.Suite
	ctx    context.Context
	drafts *InMemoryDraftStore
	orders *InMemoryRepository
	ledger *recordingLedger
}

func TestOrderFlowSuite(t *testing.T) {
	suite.Run(t, new(OrderFlowSuite))
}

func (s *OrderFlowSuite) SetupTest() {
	s.ctx = context.Background()
	s.drafts = NewInMemoryDraftStore()
	s.orders = NewInMemoryRepository()
	s.ledger = &recordingLedger{}
}

func (s *OrderFlowSuite) service(gw payment.Gateway) *Service {
	return NewService(s.drafts, s.orders, gw, s.ledger, time.Second)
}

// readyDraft creates a draft for basic x3 with priority shipping, filled in
// and parked on the payment step.
func (s *OrderFlowSuite) readyDraft(svc *Service) Draft {
	d, err := svc.CreateDraft(s.ctx, owner)
	s.Require().NoError(err)

	f := completeForm(s.T())
	values := map[Field]string{
		FieldQuantity:       "3",
		FieldShippingMethod: "priority",
		FieldName:           f.Name,
		FieldEmail:          f.Email,
		FieldAddress:        f.Address,
		FieldCity:           f.City,
		FieldState:          f.State,
		FieldZipCode:        f.ZipCode,
		FieldCardNumber:     f.CardNumber,
		FieldCardExpiry:     f.CardExpiry,
		FieldCardCVC:        f.CardCVC,
		FieldNameOnCard:     f.NameOnCard,
	}
	_, err = svc.UpdateFields(s.ctx, owner, d.ID, values)
	s.Require().NoError(err)
	_, err = svc.NextStep(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	d, err = svc.NextStep(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Require().Equal(StepPayment, d.State.Step)
	return d
}

func (s *OrderFlowSuite) TestSubmitSuccess() {
	ctrl := gomock.NewController(s.T())
	gw := payment.NewMockGateway(ctrl)
	gw.EXPECT().Charge(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
			s.True(req.Amount.Equal(decimal.RequireFromString("91.00")), "charged %s", req.Amount)
			s.Equal("USD", req.Currency)
			return payment.ChargeResult{TransactionID: "txn_abc", Status: payment.StatusSucceeded}, nil
		}).Times(1)

	svc := s.service(gw)
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("txn_abc", res.TransactionID)

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(got.State.Complete)
	s.False(got.State.Processing)
	s.Equal("txn_abc", got.State.TransactionID)

	conf, err := svc.GetOrder(s.ctx, owner, "txn_abc")
	s.Require().NoError(err)
	s.Equal("4242", conf.CardLast4)
	s.Equal(3, conf.Quantity)
	s.Equal("91.00", conf.Total.StringFixed(2))
	s.Equal(StatusPaid, conf.Status)
	s.Len(s.ledger.seen, 1)

	stored, err := s.drafts.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("************4242", stored.State.Form.CardNumber)
	s.Empty(stored.State.Form.CardCVC)

	_, err = svc.Submit(s.ctx, owner, d.ID)
	s.ErrorIs(err, ErrAlreadyCompleted)
	_, err = svc.UpdateField(s.ctx, owner, d.ID, FieldQuantity, "5")
	s.ErrorIs(err, ErrAlreadyCompleted)
}

func (s *OrderFlowSuite) TestDeclineLeavesDraftIntact() {
	svc := s.service(&payment.FixedGateway{Err: payment.ErrDeclined})
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("payment was declined", res.Error)

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Equal(d.State.Form, got.State.Form)
	s.Equal(StepPayment, got.State.Step)
	s.False(got.State.Processing)
	s.False(got.State.Complete)
	s.Equal("payment was declined", got.State.Error)
	s.Empty(s.ledger.seen)

	p, err := svc.ListOrders(s.ctx, owner, 10, 1)
	s.Require().NoError(err)
	s.Zero(p.Total)
}

func (s *OrderFlowSuite) TestResubmitAfterFailure() {
	ctrl := gomock.NewController(s.T())
	gw := payment.NewMockGateway(ctrl)
	gomock.InOrder(
		gw.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.ChargeResult{Status: payment.StatusFailed}, payment.ErrDeclined),
		gw.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.ChargeResult{TransactionID: "txn_2", Status: payment.StatusSucceeded}, nil),
	)
	svc := s.service(gw)
	d := s.readyDraft(svc)

	first, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.False(first.Success)

	second, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(second.Success)
	s.Equal("txn_2", second.TransactionID)
}

func (s *OrderFlowSuite) TestSubmitOutsidePaymentStep() {
	svc := s.service(&payment.FixedGateway{TransactionID: "txn_x"})
	d, err := svc.CreateDraft(s.ctx, owner)
	s.Require().NoError(err)

	_, err = svc.Submit(s.ctx, owner, d.ID)
	s.ErrorIs(err, ErrNotOnFinalStep)
}

func (s *OrderFlowSuite) TestSubmitIncompleteDraft() {
	gw := &payment.FixedGateway{TransactionID: "txn_x"}
	svc := s.service(gw)
	d, err := svc.CreateDraft(s.ctx, owner)
	s.Require().NoError(err)
	_, _ = svc.NextStep(s.ctx, owner, d.ID)
	d, _ = svc.NextStep(s.ctx, owner, d.ID)

	_, err = svc.Submit(s.ctx, owner, d.ID)
	var ve *ValidationError
	s.Require().ErrorAs(err, &ve)
	s.Contains(ve.Fields, "cardNumber")
	s.Empty(gw.Requests())

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Equal(d.State.Form, got.State.Form)
	s.False(got.State.Processing)
	s.Equal(ErrIncomplete.Error(), got.State.Error)
}

func (s *OrderFlowSuite) TestConcurrentSubmitIsGated() {
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	svc := s.service(gw)
	d := s.readyDraft(svc)

	done := make(chan SubmitResult, 1)
	go func() {
		res, err := svc.Submit(s.ctx, owner, d.ID)
		s.NoError(err)
		done <- res
	}()
	<-gw.started

	_, err := svc.Submit(s.ctx, owner, d.ID)
	s.ErrorIs(err, ErrSubmissionInProgress)
	_, err = svc.UpdateField(s.ctx, owner, d.ID, FieldName, "Someone Else")
	s.ErrorIs(err, ErrSubmissionInProgress)
	s.ErrorIs(svc.DiscardDraft(s.ctx, owner, d.ID), ErrSubmissionInProgress)

	close(gw.release)
	res := <-done
	s.True(res.Success)
	s.Equal("txn_blocked", res.TransactionID)
}

func (s *OrderFlowSuite) TestSubmitTimesOut() {
	gw := payment.NewSimulatedGateway(1, time.Second, rand.NewSource(1))
	svc := NewService(s.drafts, s.orders, gw, nil, 20*time.Millisecond)
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.False(res.Success)
	s.Contains(res.Error, "timed out")

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.False(got.State.Processing)
	s.Equal(StepPayment, got.State.Step)
}

func (s *OrderFlowSuite) TestConfirmationSaveFailureKeepsSuccess() {
	svc := NewService(s.drafts, failingRepository{NewInMemoryRepository()}, &payment.FixedGateway{TransactionID: "txn_ok"}, s.ledger, time.Second)
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(res.Success)
	s.Len(s.ledger.seen, 1)
}

func (s *OrderFlowSuite) TestDraftSettlesWhenCompletionWriteFails() {
	store := &completionFailingStore{InMemoryDraftStore: s.drafts}
	svc := NewService(store, s.orders, &payment.FixedGateway{TransactionID: "txn_ok"}, s.ledger, time.Second)
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("txn_ok", res.TransactionID)
	s.True(store.failed)
	s.Len(s.ledger.seen, 1)

	stuck, err := s.drafts.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.True(stuck.State.Processing)

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(got.State.Complete)
	s.False(got.State.Processing)
	s.Equal("txn_ok", got.State.TransactionID)

	_, err = svc.Submit(s.ctx, owner, d.ID)
	s.ErrorIs(err, ErrAlreadyCompleted)
	s.NoError(svc.DiscardDraft(s.ctx, owner, d.ID))
}

func (s *OrderFlowSuite) TestLedgerFailureKeepsSuccess() {
	s.ledger.err = errors.New("finance unavailable")
	svc := s.service(&payment.FixedGateway{TransactionID: "txn_ok"})
	d := s.readyDraft(svc)

	res, err := svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.True(res.Success)
}

func (s *OrderFlowSuite) TestDraftsAreOwned() {
	svc := s.service(&payment.FixedGateway{TransactionID: "txn_ok"})
	d := s.readyDraft(svc)

	_, err := svc.GetDraft(s.ctx, "acct_other", d.ID)
	s.ErrorIs(err, ErrNotFound)
	_, err = svc.UpdateField(s.ctx, "acct_other", d.ID, FieldQuantity, "2")
	s.ErrorIs(err, ErrNotFound)
	_, err = svc.Submit(s.ctx, "acct_other", d.ID)
	s.ErrorIs(err, ErrNotFound)

	_, err = svc.Submit(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	_, err = svc.GetOrder(s.ctx, "acct_other", "txn_ok")
	s.ErrorIs(err, ErrOrderNotFound)
}

func (s *OrderFlowSuite) TestUpdateFieldsIsAllOrNothing() {
	svc := s.service(&payment.FixedGateway{})
	d, err := svc.CreateDraft(s.ctx, owner)
	s.Require().NoError(err)

	_, err = svc.UpdateFields(s.ctx, owner, d.ID, map[Field]string{
		FieldName:     "Ana",
		FieldCardType: "diamond",
	})
	s.ErrorIs(err, ErrInvalidField)

	got, err := svc.GetDraft(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Empty(got.State.Form.Name)
}

func (s *OrderFlowSuite) TestTotalsFollowDraft() {
	svc := s.service(&payment.FixedGateway{})
	d, err := svc.CreateDraft(s.ctx, owner)
	s.Require().NoError(err)

	t, err := svc.Totals(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Equal("32.00", t.Total.StringFixed(2))

	_, err = svc.UpdateFields(s.ctx, owner, d.ID, map[Field]string{FieldCardType: "premium", FieldQuantity: "2", FieldShippingMethod: "express"})
	s.Require().NoError(err)
	t, err = svc.Totals(s.ctx, owner, d.ID)
	s.Require().NoError(err)
	s.Equal("100.00", t.Subtotal.StringFixed(2))
	s.Equal("123.00", t.Total.StringFixed(2))
}

func (s *OrderFlowSuite) TestListOrdersPaginates() {
	svc := s.service(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.orders.Save(s.ctx, Confirmation{
			TransactionID: "txn_" + string(rune('a'+i)),
			AccountID:     owner,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}
	s.Require().NoError(s.orders.Save(s.ctx, Confirmation{TransactionID: "txn_z", AccountID: "acct_other", CreatedAt: base}))

	p, err := svc.ListOrders(s.ctx, owner, 2, 1)
	s.Require().NoError(err)
	s.EqualValues(3, p.Total)
	s.EqualValues(2, p.LastPage)
	s.Require().Len(p.Orders, 2)
	s.Equal("txn_c", p.Orders[0].TransactionID)

	p, err = svc.ListOrders(s.ctx, owner, 2, 2)
	s.Require().NoError(err)
	s.EqualValues(2, p.Page)
	s.Require().Len(p.Orders, 1)
	s.Equal("txn_a", p.Orders[0].TransactionID)

	p, err = svc.ListOrders(s.ctx, owner, 0, 0)
	s.Require().NoError(err)
	s.EqualValues(1, p.Page)
	s.EqualValues(10, p.Limit)
	s.EqualValues(1, p.LastPage)
	s.Len(p.Orders, 3)
}
