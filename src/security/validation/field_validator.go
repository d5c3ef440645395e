// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxDescriptionLength  = 1024
	MaxReferenceLength    = 512
	MaxNameLength         = 255
	MaxRegistrationLength = 16
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateISODate checks a YYYY-MM-DD calendar date.
func ValidateISODate(s, fieldName string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("%w: %s (%q) is not a valid ISO date", ErrValidationFailed, fieldName, s)
	}
	return nil
}

// ValidateYear bounds a report year to something a club ledger can contain.
func ValidateYear(year int, fieldName string) error {
	if year < 1900 || year > 2200 {
		return fmt.Errorf("%w: %s %d is out of range", ErrValidationFailed, fieldName, year)
	}
	return nil
}

// ValidateAmountString parses a decimal amount, optionally rejecting
// non-positive values.
func ValidateAmountString(s, fieldName string, allowNonPositive bool) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	val, err := decimal.NewFromString(strings.ReplaceAll(trimmed, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s (%q) is not a valid amount", ErrValidationFailed, fieldName, s)
	}
	if !allowNonPositive && val.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", ErrValidationFailed, fieldName)
	}
	return val, nil
}
