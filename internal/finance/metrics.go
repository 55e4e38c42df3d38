package finance

import "github.com/shopspring/decimal"

// ComputeMetrics summarizes the transactions of a period. Failed
// transactions are ignored.
func ComputeMetrics(txs []Transaction, balance decimal.Decimal) FinancialMetrics {
	m := FinancialMetrics{
		GrossVolume:       decimal.Zero,
		Fees:              decimal.Zero,
		NetVolume:         decimal.Zero,
		Refunds:           decimal.Zero,
		CompletedPayouts:  decimal.Zero,
		PendingPayouts:    decimal.Zero,
		AvailableBalance:  balance,
		AverageOrderValue: decimal.Zero,
	}
	for _, t := range txs {
		if t.Status == StatusFailed {
			continue
		}
		switch t.Type {
		case TypeCardPurchase:
			if t.Status != StatusCompleted {
				continue
			}
			m.GrossVolume = m.GrossVolume.Add(t.Amount)
			m.Fees = m.Fees.Add(t.Fee)
			m.TransactionCount++
		case TypeRefund:
			if t.Status == StatusCompleted {
				m.Refunds = m.Refunds.Add(t.Amount)
			}
		case TypePayout:
			if t.Status == StatusCompleted {
				m.CompletedPayouts = m.CompletedPayouts.Add(t.Amount)
			} else {
				m.PendingPayouts = m.PendingPayouts.Add(t.Amount)
			}
		}
	}
	m.NetVolume = m.GrossVolume.Sub(m.Fees).Sub(m.Refunds)
	if m.TransactionCount > 0 {
		m.AverageOrderValue = m.GrossVolume.Div(decimal.NewFromInt(int64(m.TransactionCount))).Round(2)
	}
	return m
}

// AvailableBalance is what can still be paid out: net card revenue minus
// refunds and every payout that has not failed.
func AvailableBalance(txs []Transaction) decimal.Decimal {
	bal := decimal.Zero
	for _, t := range txs {
		if t.Status == StatusFailed {
			continue
		}
		switch t.Type {
		case TypeCardPurchase:
			if t.Status == StatusCompleted {
				bal = bal.Add(t.Net)
			}
		case TypeRefund:
			if t.Status == StatusCompleted {
				bal = bal.Sub(t.Amount)
			}
		case TypePayout:
			bal = bal.Sub(t.Amount)
		}
	}
	return bal
}
