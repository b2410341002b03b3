package validator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const walletTag = "wallet"

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns the shared validator with the custom tags registered.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation(walletTag, func(fl validator.FieldLevel) bool {
			return IsWalletAddress(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return Get().Struct(s)
}

// IsWalletAddress reports whether s is 0x followed by exactly 40 hex digits.
func IsWalletAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func FormatValidationError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}

func getFieldErrorMessage(fe validator.FieldError) string {
	field := getFieldName(fe.Field())

	switch fe.Tag() {
	case walletTag:
		return "Invalid wallet address format"
	case "required":
		if fe.Field() == "WalletAddress" || fe.Field() == "Address" {
			return "Invalid wallet address format"
		}
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func getFieldName(field string) string {
	fieldNames := map[string]string{
		"WalletAddress": "Wallet address",
		"Address":       "Wallet address",
		"Limit":         "Limit",
	}

	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}
