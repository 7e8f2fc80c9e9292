// internal/models/customer.go
package models

import (
	"encoding/json"
	"fmt"
)

// MaxAddresses is the upper bound on addresses per customer.
const MaxAddresses = 10

type Address struct {
	ID           string `json:"id"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	Postcode     string `json:"postcode"`
	State        string `json:"state"`
	City         string `json:"city"`
}

type Customer struct {
	ID        string    `json:"id"`
	PAN       string    `json:"pan"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	Addresses []Address `json:"addresses"`
}

// Clone returns a deep copy so callers never share the address slice.
func (c Customer) Clone() Customer {
	out := c
	out.Addresses = make([]Address, len(c.Addresses))
	copy(out.Addresses, c.Addresses)
	return out
}

// Place is the city and state resolved for a postcode.
type Place struct {
	City  string `json:"city"`
	State string `json:"state"`
}

// Validity is the outcome of a PAN verification: unknown until a lookup settles.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// MarshalJSON renders unknown as null.
func (v Validity) MarshalJSON() ([]byte, error) {
	switch v {
	case ValidityValid:
		return []byte("true"), nil
	case ValidityInvalid:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Validity) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("validity must be null or boolean: %w", err)
	}
	switch {
	case b == nil:
		*v = ValidityUnknown
	case *b:
		*v = ValidityValid
	default:
		*v = ValidityInvalid
	}
	return nil
}

// PANVerification is the result of the most recent PAN lookup.
type PANVerification struct {
	IsValid  Validity `json:"isValid"`
	FullName string   `json:"fullName"`
	Message  string   `json:"message"`
}
