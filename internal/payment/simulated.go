package payment

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// SimulatedGateway stands in for a card processor: it waits for an
// artificial network delay and then succeeds with a fixed probability.
type SimulatedGateway struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	successRate float64
	delay       time.Duration
}

// NewSimulatedGateway clamps successRate into [0,1]. A nil src seeds from the
// clock.
func NewSimulatedGateway(successRate float64, delay time.Duration, src rand.Source) *SimulatedGateway {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &SimulatedGateway{
		rnd:         rand.New(src),
		successRate: successRate,
		delay:       delay,
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}

	g.mu.Lock()
	draw := g.rnd.Float64()
	g.mu.Unlock()

	if draw >= g.successRate {
		slog.InfoContext(ctx, "simulated charge declined", "reference", req.Reference, "amount", req.Amount.StringFixed(2))
		return ChargeResult{Status: StatusFailed}, ErrDeclined
	}

	id := NewTransactionID()
	slog.InfoContext(ctx, "simulated charge succeeded", "reference", req.Reference, "transaction_id", id)
	return ChargeResult{TransactionID: id, Status: StatusSucceeded}, nil
}
