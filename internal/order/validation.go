package order

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists the fields that block submission, keyed by their
// JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return ErrIncomplete.Error()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrIncomplete
}

// Validate checks that the draft can be sent to the gateway. It returns nil
// when every required shipping and payment field is present and well formed.
func Validate(f Form) *ValidationError {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	out := map[string]string{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["_"] = err.Error()
		return &ValidationError{Fields: out}
	}
	for _, fe := range ve {
		out[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
	}
	return &ValidationError{Fields: out}
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "credit_card":
		return "enter a valid card number"
	case "datetime":
		return "use the MM/YY format"
	case "number":
		return "digits only"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of: " + param
	default:
		return "invalid value"
	}
}
