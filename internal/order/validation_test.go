package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func completeForm(t *testing.T) Form {
	t.Helper()
	f := DefaultForm()
	values := []struct {
		field Field
		value string
	}{
		{FieldName, "Ana Lima"},
		{FieldEmail, "ana@example.com"},
		{FieldAddress, "1 Market St"},
		{FieldCity, "San Francisco"},
		{FieldState, "CA"},
		{FieldZipCode, "94105"},
		{FieldCardNumber, "4242 4242 4242 4242"},
		{FieldCardExpiry, "12/30"},
		{FieldCardCVC, "123"},
		{FieldNameOnCard, "ANA LIMA"},
	}
	for _, v := range values {
		var err error
		f, err = f.With(v.field, v.value)
		require.NoError(t, err)
	}
	return f
}

func TestValidate_CompleteForm(t *testing.T) {
	require.Nil(t, Validate(completeForm(t)))
}

func TestValidate_EmptyFormListsRequiredFields(t *testing.T) {
	ve := Validate(DefaultForm())
	require.NotNil(t, ve)
	for _, k := range []string{"name", "email", "address", "city", "state", "zipCode", "cardNumber", "cardExpiry", "cardCvc", "nameOnCard"} {
		require.Contains(t, ve.Fields, k)
	}
	require.NotContains(t, ve.Fields, "country")
	require.True(t, errors.Is(ve, ErrIncomplete))
}

func TestValidate_Formats(t *testing.T) {
	cases := []struct {
		field Field
		value string
		key   string
	}{
		{FieldEmail, "not-an-email", "email"},
		{FieldCardNumber, "4242 4242 4242 4241", "cardNumber"},
		{FieldCardExpiry, "13/30", "cardExpiry"},
		{FieldCardExpiry, "2030-12", "cardExpiry"},
		{FieldCardCVC, "12", "cardCvc"},
		{FieldCardCVC, "12a", "cardCvc"},
		{FieldCardCVC, "12345", "cardCvc"},
	}
	for _, tc := range cases {
		f, err := completeForm(t).With(tc.field, tc.value)
		require.NoError(t, err)
		ve := Validate(f)
		require.NotNil(t, ve, "%s=%q", tc.field, tc.value)
		require.Contains(t, ve.Fields, tc.key)
		require.Len(t, ve.Fields, 1)
	}
}
