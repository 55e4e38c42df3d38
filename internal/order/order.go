package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wichananm65/nfc-card-backend/internal/pricing"
)

var (
	ErrNotFound             = errors.New("draft not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidField         = errors.New("invalid field")
	ErrNotOnFinalStep       = errors.New("order can only be submitted from the payment step")
	ErrSubmissionInProgress = errors.New("order submission already in progress")
	ErrAlreadyCompleted     = errors.New("order already completed")
	ErrIncomplete           = errors.New("order is missing required information")
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

type CardColor string

const (
	ColorBlack    CardColor = "black"
	ColorGradient CardColor = "gradient"
)

type CardStyle string

const (
	StyleStandard   CardStyle = "standard"
	StyleMinimalist CardStyle = "minimalist"
)

// Field names match the JSON keys the storefront sends.
type Field string

const (
	FieldCardType       Field = "cardType"
	FieldCardColor      Field = "cardColor"
	FieldCardStyle      Field = "cardStyle"
	FieldQuantity       Field = "quantity"
	FieldName           Field = "name"
	FieldEmail          Field = "email"
	FieldAddress        Field = "address"
	FieldCity           Field = "city"
	FieldState          Field = "state"
	FieldZipCode        Field = "zipCode"
	FieldCountry        Field = "country"
	FieldShippingMethod Field = "shippingMethod"
	FieldCardNumber     Field = "cardNumber"
	FieldCardExpiry     Field = "cardExpiry"
	FieldCardCVC        Field = "cardCvc"
	FieldNameOnCard     Field = "nameOnCard"
)

// Form is the draft of a card purchase. It holds only value fields, so
// copying a Form copies the whole draft.
type Form struct {
	CardType  pricing.CardType `json:"cardType" validate:"oneof=basic premium"`
	CardColor CardColor        `json:"cardColor" validate:"oneof=black gradient"`
	CardStyle CardStyle        `json:"cardStyle" validate:"oneof=standard minimalist"`
	Quantity  int              `json:"quantity" validate:"min=1,max=10"`

	Name           string                 `json:"name" validate:"required"`
	Email          string                 `json:"email" validate:"required,email"`
	Address        string                 `json:"address" validate:"required"`
	City           string                 `json:"city" validate:"required"`
	State          string                 `json:"state" validate:"required"`
	ZipCode        string                 `json:"zipCode" validate:"required"`
	Country        string                 `json:"country" validate:"required"`
	ShippingMethod pricing.ShippingMethod `json:"shippingMethod" validate:"oneof=standard priority express"`

	CardNumber string `json:"cardNumber" validate:"required,credit_card"`
	CardExpiry string `json:"cardExpiry" validate:"required,datetime=01/06"`
	CardCVC    string `json:"cardCvc" validate:"required,number,min=3,max=4"`
	NameOnCard string `json:"nameOnCard" validate:"required"`
}

// DefaultForm is the draft a new order page starts from.
func DefaultForm() Form {
	return Form{
		CardType:       pricing.CardBasic,
		CardColor:      ColorBlack,
		CardStyle:      StyleStandard,
		Quantity:       MinQuantity,
		Country:        "US",
		ShippingMethod: pricing.ShippingStandard,
	}
}

// ClampQuantity pulls q into [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// With returns a copy of f with one field set. Only the shape of the value is
// checked: enums must be members of their set and quantity must be an
// integer. An out-of-range quantity is clamped, not rejected.
func (f Form) With(field Field, value string) (Form, error) {
	switch field {
	case FieldCardType:
		ct := pricing.CardType(value)
		if !ct.Valid() {
			return f, fmt.Errorf("%w: cardType %q", ErrInvalidField, value)
		}
		f.CardType = ct
	case FieldCardColor:
		c := CardColor(value)
		if c != ColorBlack && c != ColorGradient {
			return f, fmt.Errorf("%w: cardColor %q", ErrInvalidField, value)
		}
		f.CardColor = c
	case FieldCardStyle:
		s := CardStyle(value)
		if s != StyleStandard && s != StyleMinimalist {
			return f, fmt.Errorf("%w: cardStyle %q", ErrInvalidField, value)
		}
		f.CardStyle = s
	case FieldQuantity:
		q, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return f, fmt.Errorf("%w: quantity %q is not a whole number", ErrInvalidField, value)
		}
		f.Quantity = ClampQuantity(q)
	case FieldShippingMethod:
		m := pricing.ShippingMethod(value)
		if !m.Valid() {
			return f, fmt.Errorf("%w: shippingMethod %q", ErrInvalidField, value)
		}
		f.ShippingMethod = m
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	case FieldAddress:
		f.Address = value
	case FieldCity:
		f.City = value
	case FieldState:
		f.State = value
	case FieldZipCode:
		f.ZipCode = value
	case FieldCountry:
		f.Country = value
	case FieldCardNumber:
		f.CardNumber = value
	case FieldCardExpiry:
		f.CardExpiry = value
	case FieldCardCVC:
		f.CardCVC = value
	case FieldNameOnCard:
		f.NameOnCard = value
	default:
		return f, fmt.Errorf("%w: unknown field %q", ErrInvalidField, field)
	}
	return f, nil
}

// Totals derives the price breakdown from the current draft. Nothing is
// cached; callers get a fresh computation on every read.
func (f Form) Totals() (pricing.Totals, error) {
	return pricing.Compute(f.CardType, f.Quantity, f.ShippingMethod)
}

// CardLast4 returns the last four digits of the card number, ignoring
// separators.
func (f Form) CardLast4() string {
	d := digitsOnly(f.CardNumber)
	if len(d) < 4 {
		return d
	}
	return d[len(d)-4:]
}

// Redacted hides the card number and CVC for responses.
func (f Form) Redacted() Form {
	if d := digitsOnly(f.CardNumber); len(d) > 4 {
		f.CardNumber = strings.Repeat("*", len(d)-4) + d[len(d)-4:]
	}
	if f.CardCVC != "" {
		f.CardCVC = "***"
	}
	return f
}

// withoutSecrets keeps only the masked card number and drops the CVC. A
// completed draft never charges again, so it has no use for either.
func (f Form) withoutSecrets() Form {
	f = f.Redacted()
	f.CardCVC = ""
	return f
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
