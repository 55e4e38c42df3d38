package payment

import (
	"context"
	"sync"
)

// FixedGateway always answers the same way. With Err set every charge fails
// with it; otherwise every charge succeeds with TransactionID (or a fresh id
// when empty).
type FixedGateway struct {
	TransactionID string
	Err           error

	mu       sync.Mutex
	requests []ChargeRequest
}

func (g *FixedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if g.Err != nil {
		return ChargeResult{Status: StatusFailed}, g.Err
	}
	id := g.TransactionID
	if id == "" {
		id = NewTransactionID()
	}
	return ChargeResult{TransactionID: id, Status: StatusSucceeded}, nil
}

// Requests returns a copy of every charge seen so far.
func (g *FixedGateway) Requests() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ChargeRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
