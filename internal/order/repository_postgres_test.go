package order

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

var confirmationCols = []string{
	"transaction_id", "account_id", "draft_id", "card_type", "card_color", "card_style", "quantity", "shipping_method",
	"ship_name", "ship_email", "ship_address", "ship_city", "ship_state", "ship_zip", "ship_country",
	"card_last4", "subtotal", "shipping", "tax", "total", "status", "created_at",
}

func confirmationRow(rows *sqlmock.Rows, txID string, at time.Time) *sqlmock.Rows {
	return rows.AddRow(txID, owner, "d1", "basic", "black", "standard", 3, "priority",
		"Ana Lima", "ana@example.com", "1 Market St", "San Francisco", "CA", "94105", "US",
		"4242", "75.00", "10.00", "6.00", "91.00", StatusPaid, at)
}

func TestPostgresRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	c := Confirmation{
		TransactionID: "txn_1", AccountID: owner, DraftID: "d1",
		CardType: "basic", CardColor: ColorBlack, CardStyle: StyleStandard, Quantity: 3, ShippingMethod: "priority",
		CardLast4: "4242",
		Subtotal:  decimal.RequireFromString("75"), Shipping: decimal.RequireFromString("10"),
		Tax: decimal.RequireFromString("6"), Total: decimal.RequireFromString("91"),
		Status: StatusPaid, CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO card_orders").
		WithArgs("txn_1", owner, "d1", "basic", "black", "standard", 3, "priority",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"4242", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), StatusPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_ListByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT").WithArgs(owner).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	rows := confirmationRow(sqlmock.NewRows(confirmationCols), "txn_2", now)
	rows = confirmationRow(rows, "txn_1", now.Add(-time.Hour))
	mock.ExpectQuery("FROM card_orders").WithArgs(owner, int64(10), int64(10)).WillReturnRows(rows)

	items, total, err := repo.ListByAccount(context.Background(), owner, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 12 || len(items) != 2 {
		t.Fatalf("expected 2 of 12, got %d of %d", len(items), total)
	}
	if items[0].TransactionID != "txn_2" || !items[0].Total.Equal(decimal.RequireFromString("91")) {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[0].ShipTo.City != "San Francisco" {
		t.Errorf("shipping contact not scanned: %+v", items[0].ShipTo)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_GetByTransactionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("FROM card_orders").WithArgs("txn_1").
		WillReturnRows(confirmationRow(sqlmock.NewRows(confirmationCols), "txn_1", time.Now().UTC()))
	c, err := repo.GetByTransactionID(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CardLast4 != "4242" || c.Quantity != 3 {
		t.Errorf("unexpected confirmation %+v", c)
	}

	mock.ExpectQuery("FROM card_orders").WithArgs("txn_missing").
		WillReturnRows(sqlmock.NewRows(confirmationCols))
	if _, err := repo.GetByTransactionID(context.Background(), "txn_missing"); err != ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_GetByDraftID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("WHERE draft_id").WithArgs("d1").
		WillReturnRows(confirmationRow(sqlmock.NewRows(confirmationCols), "txn_1", time.Now().UTC()))
	c, err := repo.GetByDraftID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TransactionID != "txn_1" || c.DraftID != "d1" {
		t.Errorf("unexpected confirmation %+v", c)
	}

	mock.ExpectQuery("WHERE draft_id").WithArgs("d_missing").
		WillReturnRows(sqlmock.NewRows(confirmationCols))
	if _, err := repo.GetByDraftID(context.Background(), "d_missing"); err != ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
