package dto

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
	countryRe  = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

var paymentMethods = map[string]bool{
	"CARD":          true,
	"BANK_TRANSFER": true,
	"WALLET":        true,
	"OTHER":         true,
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("currency_code", validateCurrencyCode)
		_ = v.RegisterValidation("country_code", validateCountryCode)
		_ = v.RegisterValidation("payment_method", validatePaymentMethod)
	}
}

// validateCurrencyCode requires an uppercase ISO-4217 style code.
func validateCurrencyCode(fl validator.FieldLevel) bool {
	return currencyRe.MatchString(fl.Field().String())
}

// validateCountryCode requires a two-letter ISO-3166 style code.
func validateCountryCode(fl validator.FieldLevel) bool {
	return countryRe.MatchString(fl.Field().String())
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return paymentMethods[fl.Field().String()]
}
