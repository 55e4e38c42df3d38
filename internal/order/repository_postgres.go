package order

import (
	"context"
	"database/sql"
	"errors"
)

// Schema creates the confirmation table. Statements are run one by one at
// startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS card_orders (
		transaction_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		draft_id TEXT NOT NULL,
		card_type TEXT NOT NULL,
		card_color TEXT NOT NULL,
		card_style TEXT NOT NULL,
		quantity INT NOT NULL,
		shipping_method TEXT NOT NULL,
		ship_name TEXT NOT NULL,
		ship_email TEXT NOT NULL,
		ship_address TEXT NOT NULL,
		ship_city TEXT NOT NULL,
		ship_state TEXT NOT NULL,
		ship_zip TEXT NOT NULL,
		ship_country TEXT NOT NULL,
		card_last4 TEXT NOT NULL,
		subtotal NUMERIC(12,2) NOT NULL,
		shipping NUMERIC(12,2) NOT NULL,
		tax NUMERIC(12,2) NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS card_orders_account_idx ON card_orders (account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS card_orders_draft_idx ON card_orders (draft_id)`,
}

const (
	confirmationColumns = `transaction_id, account_id, draft_id, card_type, card_color, card_style, quantity, shipping_method,
		ship_name, ship_email, ship_address, ship_city, ship_state, ship_zip, ship_country,
		card_last4, subtotal, shipping, tax, total, status, created_at`

	insertConfirmationQuery = `INSERT INTO card_orders (` + confirmationColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	listConfirmationsQuery = `SELECT ` + confirmationColumns + `
		FROM card_orders
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	countConfirmationsQuery = `SELECT COUNT(*) FROM card_orders WHERE account_id = $1`
	getConfirmationQuery    = `SELECT ` + confirmationColumns + `
		FROM card_orders
		WHERE transaction_id = $1`
	getConfirmationByDraftQuery = `SELECT ` + confirmationColumns + `
		FROM card_orders
		WHERE draft_id = $1
		LIMIT 1`
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

func (r *PostgresRepository) Save(ctx context.Context, c Confirmation) error {
	_, err := r.db.ExecContext(ctx, insertConfirmationQuery,
		c.TransactionID, c.AccountID, c.DraftID, string(c.CardType), string(c.CardColor), string(c.CardStyle),
		c.Quantity, string(c.ShippingMethod),
		c.ShipTo.Name, c.ShipTo.Email, c.ShipTo.Address, c.ShipTo.City, c.ShipTo.State, c.ShipTo.ZipCode, c.ShipTo.Country,
		c.CardLast4, c.Subtotal, c.Shipping, c.Tax, c.Total, c.Status, c.CreatedAt)
	return err
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, page int64) ([]Confirmation, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, countConfirmationsQuery, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listConfirmationsQuery, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Confirmation, 0)
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresRepository) GetByTransactionID(ctx context.Context, txID string) (Confirmation, error) {
	c, err := scanConfirmation(r.db.QueryRowContext(ctx, getConfirmationQuery, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return Confirmation{}, ErrOrderNotFound
	}
	return c, err
}

func (r *PostgresRepository) GetByDraftID(ctx context.Context, draftID string) (Confirmation, error) {
	c, err := scanConfirmation(r.db.QueryRowContext(ctx, getConfirmationByDraftQuery, draftID))
	if errors.Is(err, sql.ErrNoRows) {
		return Confirmation{}, ErrOrderNotFound
	}
	return c, err
}

func scanConfirmation(s rowScanner) (Confirmation, error) {
	var c Confirmation
	err := s.Scan(
		&c.TransactionID, &c.AccountID, &c.DraftID, &c.CardType, &c.CardColor, &c.CardStyle, &c.Quantity, &c.ShippingMethod,
		&c.ShipTo.Name, &c.ShipTo.Email, &c.ShipTo.Address, &c.ShipTo.City, &c.ShipTo.State, &c.ShipTo.ZipCode, &c.ShipTo.Country,
		&c.CardLast4, &c.Subtotal, &c.Shipping, &c.Tax, &c.Total, &c.Status, &c.CreatedAt,
	)
	return c, err
}
