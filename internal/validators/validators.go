// Package validators holds the per-field format rules of the customer form and
// the dispatcher that applies them to a single field.
package validators

import (
	"regexp"
	"unicode/utf8"
)

const (
	panLength      = 10
	maxFullNameLen = 140
	maxEmailLen    = 255
)

var (
	panPattern      = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	postcodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidatePAN reports whether pan is five uppercase letters, four digits and
// an uppercase letter.
func ValidatePAN(pan string) bool {
	return len(pan) == panLength && panPattern.MatchString(pan)
}

// ValidateFullName reports whether the name has between 1 and 140 characters.
// Whitespace is not trimmed here.
func ValidateFullName(fullName string) bool {
	n := utf8.RuneCountInString(fullName)
	return n > 0 && n <= maxFullNameLen
}

func ValidateEmail(email string) bool {
	return utf8.RuneCountInString(email) <= maxEmailLen && emailPattern.MatchString(email)
}

func ValidateMobile(mobile string) bool {
	return mobilePattern.MatchString(mobile)
}

func ValidatePostcode(postcode string) bool {
	return postcodePattern.MatchString(postcode)
}

func ValidateAddressLine1(addressLine1 string) bool {
	return addressLine1 != ""
}
