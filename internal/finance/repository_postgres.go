package finance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Schema creates the finance tables. Statements are run one by one at
// startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS finance_transactions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		fee NUMERIC(12,2) NOT NULL,
		net NUMERIC(12,2) NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		customer JSONB,
		payment JSONB,
		order_ref JSONB,
		destination JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS finance_transactions_created_idx ON finance_transactions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS finance_bank_accounts (
		id TEXT PRIMARY KEY,
		bank_name TEXT NOT NULL,
		account_holder TEXT NOT NULL,
		last4 TEXT NOT NULL,
		currency TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		verified BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS finance_processors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		connected BOOLEAN NOT NULL,
		fee_percent NUMERIC(6,3) NOT NULL,
		fee_fixed NUMERIC(12,2) NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS finance_payout_settings (
		id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		schedule TEXT NOT NULL,
		minimum_amount NUMERIC(12,2) NOT NULL,
		default_bank_account_id TEXT NOT NULL,
		auto_payout BOOLEAN NOT NULL
	)`,
}

const (
	transactionColumns = `id, created_at, amount, fee, net, type, status, description, customer, payment, order_ref, destination`

	// $1/$2 bound the range, $3/$4 are type and status arrays (empty means
	// any), $5 is the search text.
	transactionFilter = `
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		AND ($2::timestamptz IS NULL OR created_at < $2)
		AND (cardinality($3::text[]) = 0 OR type = ANY($3::text[]))
		AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))
		AND ($5 = '' OR id ILIKE '%' || $5 || '%' OR description ILIKE '%' || $5 || '%'
			OR customer->>'name' ILIKE '%' || $5 || '%' OR customer->>'email' ILIKE '%' || $5 || '%')`

	listTransactionsQuery = `SELECT ` + transactionColumns + ` FROM finance_transactions` + transactionFilter + `
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7`
	countTransactionsQuery = `SELECT COUNT(*) FROM finance_transactions` + transactionFilter
	rangeTransactionsQuery = `SELECT ` + transactionColumns + ` FROM finance_transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC`
	insertTransactionQuery = `INSERT INTO finance_transactions (` + transactionColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	listBankAccountsQuery  = `SELECT id, bank_name, account_holder, last4, currency, is_default, verified FROM finance_bank_accounts ORDER BY id`
	insertBankAccountQuery = `INSERT INTO finance_bank_accounts (id, bank_name, account_holder, last4, currency, is_default, verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	setDefaultBankAccountQuery = `UPDATE finance_bank_accounts SET is_default = (id = $1)
		WHERE EXISTS (SELECT 1 FROM finance_bank_accounts WHERE id = $1)`
	setDefaultInSettingsQuery = `UPDATE finance_payout_settings SET default_bank_account_id = $1 WHERE id = 1`

	listProcessorsQuery  = `SELECT id, name, connected, fee_percent, fee_fixed, is_default FROM finance_processors ORDER BY id`
	insertProcessorQuery = `INSERT INTO finance_processors (id, name, connected, fee_percent, fee_fixed, is_default)
		VALUES ($1,$2,$3,$4,$5,$6)`

	getPayoutSettingsQuery    = `SELECT schedule, minimum_amount, default_bank_account_id, auto_payout FROM finance_payout_settings WHERE id = 1`
	upsertPayoutSettingsQuery = `INSERT INTO finance_payout_settings (id, schedule, minimum_amount, default_bank_account_id, auto_payout)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET schedule = EXCLUDED.schedule, minimum_amount = EXCLUDED.minimum_amount,
			default_bank_account_id = EXCLUDED.default_bank_account_id, auto_payout = EXCLUDED.auto_payout`
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func rangeArgs(r DateRange) (sql.NullTime, sql.NullTime) {
	return sql.NullTime{Time: r.From, Valid: !r.From.IsZero()}, sql.NullTime{Time: r.To, Valid: !r.To.IsZero()}
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, dr DateRange, f TransactionFilter, limit, page int64) ([]Transaction, int64, error) {
	from, to := rangeArgs(dr)
	types := make([]string, 0, len(f.Types))
	for _, t := range f.Types {
		types = append(types, string(t))
	}
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}

	search := escapeLike(strings.TrimSpace(f.Search))

	var total int64
	if err := r.db.QueryRowContext(ctx, countTransactionsQuery, from, to, pq.Array(types), pq.Array(statuses), search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listTransactionsQuery, from, to, pq.Array(types), pq.Array(statuses), search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *PostgresRepository) TransactionsInRange(ctx context.Context, dr DateRange) ([]Transaction, error) {
	from, to := rangeArgs(dr)
	rows, err := r.db.QueryContext(ctx, rangeTransactionsQuery, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(s rowScanner) (Transaction, error) {
	var t Transaction
	var customer, payment, order, dest []byte
	if err := s.Scan(&t.ID, &t.Date, &t.Amount, &t.Fee, &t.Net, &t.Type, &t.Status, &t.Description,
		&customer, &payment, &order, &dest); err != nil {
		return Transaction{}, err
	}
	if err := unmarshalOptional(customer, &t.Customer); err != nil {
		return Transaction{}, err
	}
	if err := unmarshalOptional(payment, &t.Payment); err != nil {
		return Transaction{}, err
	}
	if err := unmarshalOptional(order, &t.Order); err != nil {
		return Transaction{}, err
	}
	if err := unmarshalOptional(dest, &t.Destination); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func unmarshalOptional[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode transaction detail: %w", err)
	}
	*dst = v
	return nil
}

func marshalOptional[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *PostgresRepository) AddTransaction(ctx context.Context, t Transaction) error {
	customer, err := marshalOptional(t.Customer)
	if err != nil {
		return err
	}
	payment, err := marshalOptional(t.Payment)
	if err != nil {
		return err
	}
	order, err := marshalOptional(t.Order)
	if err != nil {
		return err
	}
	dest, err := marshalOptional(t.Destination)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertTransactionQuery,
		t.ID, t.Date, t.Amount, t.Fee, t.Net, string(t.Type), string(t.Status), t.Description,
		customer, payment, order, dest)
	return err
}

func (r *PostgresRepository) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.db.QueryContext(ctx, listBankAccountsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BankAccount, 0)
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.ID, &a.BankName, &a.AccountHolder, &a.Last4, &a.Currency, &a.IsDefault, &a.Verified); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetDefaultBankAccount(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, setDefaultBankAccountQuery, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, setDefaultInSettingsQuery, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepository) ListPaymentProcessors(ctx context.Context) ([]PaymentProcessor, error) {
	rows, err := r.db.QueryContext(ctx, listProcessorsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PaymentProcessor, 0)
	for rows.Next() {
		var p PaymentProcessor
		if err := rows.Scan(&p.ID, &p.Name, &p.Connected, &p.FeePercent, &p.FeeFixed, &p.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetPayoutSettings(ctx context.Context) (PayoutSettings, error) {
	var s PayoutSettings
	err := r.db.QueryRowContext(ctx, getPayoutSettingsQuery).Scan(&s.Schedule, &s.MinimumAmount, &s.DefaultBankAccountID, &s.AutoPayout)
	if errors.Is(err, sql.ErrNoRows) {
		return PayoutSettings{}, ErrNotFound
	}
	return s, err
}

func (r *PostgresRepository) SavePayoutSettings(ctx context.Context, s PayoutSettings) error {
	_, err := r.db.ExecContext(ctx, upsertPayoutSettingsQuery, string(s.Schedule), s.MinimumAmount, s.DefaultBankAccountID, s.AutoPayout)
	return err
}

// SeedIfEmpty loads seed into a database that has no bank accounts yet.
func (r *PostgresRepository) SeedIfEmpty(ctx context.Context, seed Seed) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM finance_bank_accounts`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, a := range seed.BankAccounts {
		if _, err := r.db.ExecContext(ctx, insertBankAccountQuery, a.ID, a.BankName, a.AccountHolder, a.Last4, a.Currency, a.IsDefault, a.Verified); err != nil {
			return err
		}
	}
	for _, p := range seed.Processors {
		if _, err := r.db.ExecContext(ctx, insertProcessorQuery, p.ID, p.Name, p.Connected, p.FeePercent, p.FeeFixed, p.IsDefault); err != nil {
			return err
		}
	}
	for _, t := range seed.Transactions {
		if err := r.AddTransaction(ctx, t); err != nil {
			return err
		}
	}
	return r.SavePayoutSettings(ctx, seed.PayoutSettings)
}
