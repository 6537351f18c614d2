package dto

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/nyaruka/phonenumbers"
)

const passwordSymbols = "@$!%*?&"

func strongPassword(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return errors.New("must contain a lowercase letter, an uppercase letter, a digit and one of " + passwordSymbols)
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses number in defaultRegion unless it carries a country
// code and returns it in E.164 form.
func NormalizePhone(number, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(number), strings.ToUpper(defaultRegion))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperr.BadRequest("whatsapp_number: must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Invalid turns a validation failure into a BadRequest.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return apperr.BadRequest(err.Error())
}

// parseBound accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseBound(field, value string, upper bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, apperr.BadRequest(field + ": must be an ISO date")
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
