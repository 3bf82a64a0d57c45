package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Moroccan mobile numbers: 06/07/05 prefixes or the +212 country code.
var moroccanMobile = regexp.MustCompile(`^(?:\+212|0)[5-7][0-9]{8}$`)

// NormalizePhone strips whitespace so "06 12 34 56 78" validates the same
// as "0612345678".
func NormalizePhone(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
}

// IsValidMobile reports whether phone is an acceptable regional mobile number.
func IsValidMobile(phone string) bool {
	return moroccanMobile.MatchString(NormalizePhone(phone))
}

// Register installs custom rules on a validator engine. Gin's binding
// engine is passed here at startup so request structs can use
// `binding:"phone_ma"`.
func Register(v *validator.Validate) error {
	return v.RegisterValidation("phone_ma", func(fl validator.FieldLevel) bool {
		return IsValidMobile(fl.Field().String())
	})
}
