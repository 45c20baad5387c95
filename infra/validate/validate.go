package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")

	msisdnPattern = regexp.MustCompile(`^(?:\+?254|0)?([17]\d{8})$`)
)

// New returns a validator that understands decimal.Decimal fields and the
// msisdn tag for Kenyan mobile numbers.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		_, err := NormalizeMSISDN(fl.Field().String())
		return err == nil
	})

	return v
}

// NormalizeMSISDN converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and similar
// forms to 2547XXXXXXXX.
func NormalizeMSISDN(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	m := msisdnPattern.FindStringSubmatch(p)
	if m == nil {
		return "", ErrInvalidPhone
	}
	return "254" + m[1], nil
}

// Messages flattens validator errors to field -> message
func Messages(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "email":
			out[fe.Field()] = "must be a valid email"
		case "msisdn":
			out[fe.Field()] = "must be a valid mobile number"
		case "gt":
			out[fe.Field()] = fmt.Sprintf("must be greater than %s", fe.Param())
		case "min", "gte":
			out[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max", "lte", "lt":
			out[fe.Field()] = fmt.Sprintf("must be at most %s", fe.Param())
		case "oneof":
			out[fe.Field()] = fmt.Sprintf("must be one of [%s]", fe.Param())
		default:
			out[fe.Field()] = "is invalid"
		}
	}
	return out
}
