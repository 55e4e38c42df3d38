package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Currency is the single currency the storefront sells in.
const Currency = "USD"

var (
	ErrUnknownCardType       = errors.New("unknown card type")
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
)

// CardType is the product tier of an NFC card.
type CardType string

const (
	CardBasic   CardType = "basic"
	CardPremium CardType = "premium"
)

// ShippingMethod selects the delivery speed of an order.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingPriority ShippingMethod = "priority"
	ShippingExpress  ShippingMethod = "express"
)

// TaxRate is applied to the subtotal only; shipping is not taxed.
var TaxRate = decimal.RequireFromString("0.08")

var unitPrices = map[CardType]decimal.Decimal{
	CardBasic:   decimal.RequireFromString("25.00"),
	CardPremium: decimal.RequireFromString("50.00"),
}

var shippingCosts = map[ShippingMethod]decimal.Decimal{
	ShippingStandard: decimal.RequireFromString("5.00"),
	ShippingPriority: decimal.RequireFromString("10.00"),
	ShippingExpress:  decimal.RequireFromString("15.00"),
}

// Totals is the derived price breakdown of a draft order.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

func (t CardType) Valid() bool {
	_, ok := unitPrices[t]
	return ok
}

func (m ShippingMethod) Valid() bool {
	_, ok := shippingCosts[m]
	return ok
}

func UnitPrice(t CardType) (decimal.Decimal, error) {
	p, ok := unitPrices[t]
	if !ok {
		return decimal.Zero, ErrUnknownCardType
	}
	return p, nil
}

func ShippingCost(m ShippingMethod) (decimal.Decimal, error) {
	c, ok := shippingCosts[m]
	if !ok {
		return decimal.Zero, ErrUnknownShippingMethod
	}
	return c, nil
}

// Tax returns TaxRate × subtotal rounded half away from zero to cents.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(TaxRate).Round(2)
}

// Compute derives the full breakdown. It is pure: the same inputs always
// produce the same Totals.
func Compute(t CardType, quantity int, m ShippingMethod) (Totals, error) {
	unit, err := UnitPrice(t)
	if err != nil {
		return Totals{}, err
	}
	shipping, err := ShippingCost(m)
	if err != nil {
		return Totals{}, err
	}

	subtotal := unit.Mul(decimal.NewFromInt(int64(quantity)))
	tax := Tax(subtotal)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}, nil
}

// TierPrice and ShippingOption are the catalog rows served to clients so the
// storefront never hardcodes its own copy of the prices.
type TierPrice struct {
	CardType  CardType `json:"cardType"`
	UnitPrice string   `json:"unitPrice"`
}

type ShippingOption struct {
	Method ShippingMethod `json:"method"`
	Cost   string         `json:"cost"`
}

type CatalogView struct {
	Currency string           `json:"currency"`
	TaxRate  string           `json:"taxRate"`
	Tiers    []TierPrice      `json:"tiers"`
	Shipping []ShippingOption `json:"shipping"`
}

func Catalog() CatalogView {
	return CatalogView{
		Currency: Currency,
		TaxRate:  TaxRate.String(),
		Tiers: []TierPrice{
			{CardType: CardBasic, UnitPrice: unitPrices[CardBasic].StringFixed(2)},
			{CardType: CardPremium, UnitPrice: unitPrices[CardPremium].StringFixed(2)},
		},
		Shipping: []ShippingOption{
			{Method: ShippingStandard, Cost: shippingCosts[ShippingStandard].StringFixed(2)},
			{Method: ShippingPriority, Cost: shippingCosts[ShippingPriority].StringFixed(2)},
			{Method: ShippingExpress, Cost: shippingCosts[ShippingExpress].StringFixed(2)},
		},
	}
}
