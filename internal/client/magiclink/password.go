package magiclink

import (
	"unicode"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

const MinPasswordLength = 8

// ValidatePassword enforces the first-access password policy: at least
// MinPasswordLength characters with an upper-case letter, a lower-case
// letter and a digit.
func ValidatePassword(pw string) error {
	var upper, lower, digit bool
	n := 0
	for _, r := range pw {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	errs := &common.ValidationError{}
	if n < MinPasswordLength {
		errs.Add("password", "must have at least 8 characters")
	}
	if !upper {
		errs.Add("password", "must contain an upper-case letter")
	}
	if !lower {
		errs.Add("password", "must contain a lower-case letter")
	}
	if !digit {
		errs.Add("password", "must contain a digit")
	}
	return errs.OrNil()
}
