// Package payment is the boundary between the order flow and whatever
// actually charges the card. Production wiring uses SimulatedGateway until a
// real processor is integrated; tests use FixedGateway or the gomock mock.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=payment

var (
	ErrDeclined = errors.New("payment declined")
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type ChargeRequest struct {
	Reference  string
	Amount     decimal.Decimal
	Currency   string
	Email      string
	CardNumber string
	CardExpiry string
	CardCVC    string
	NameOnCard string
}

type ChargeResult struct {
	TransactionID string
	Status        string
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// NewTransactionID returns an opaque id in the txn_<hex> form.
func NewTransactionID() string {
	return "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
