package validators

import (
	"strconv"
	"strings"

	"customer-manager/internal/common/errors"
)

// FieldKind names one input of the customer form.
type FieldKind string

const (
	KindPAN          FieldKind = "pan"
	KindFullName     FieldKind = "fullName"
	KindEmail        FieldKind = "email"
	KindMobile       FieldKind = "mobile"
	KindAddressLine1 FieldKind = "addressLine1"
	KindAddressLine2 FieldKind = "addressLine2"
	KindPostcode     FieldKind = "postcode"
	KindCity         FieldKind = "city"
	KindState        FieldKind = "state"
)

// IsAddress reports whether the kind belongs to an address and therefore
// carries a position.
func (k FieldKind) IsAddress() bool {
	switch k {
	case KindAddressLine1, KindAddressLine2, KindPostcode, KindCity, KindState:
		return true
	default:
		return false
	}
}

func (k FieldKind) valid() bool {
	switch k {
	case KindPAN, KindFullName, KindEmail, KindMobile:
		return true
	default:
		return k.IsAddress()
	}
}

// Field identifies a form input. Position is the zero-based address index and
// is meaningful only for address kinds.
type Field struct {
	Kind     FieldKind
	Position int
}

// CustomerField returns the field for a top-level customer input.
func CustomerField(kind FieldKind) Field {
	return Field{Kind: kind}
}

// AddressField returns the field for an address input at position.
func AddressField(kind FieldKind, position int) Field {
	return Field{Kind: kind, Position: position}
}

// Key renders the error-mapping key, e.g. "email" or "postcode-2".
func (f Field) Key() string {
	if f.Kind.IsAddress() {
		return string(f.Kind) + "-" + strconv.Itoa(f.Position)
	}
	return string(f.Kind)
}

func (f Field) String() string {
	return f.Key()
}

// ParseField converts an error-mapping key back into a Field.
func ParseField(key string) (Field, error) {
	name, pos, hasPos := strings.Cut(key, "-")
	kind := FieldKind(name)
	if !kind.valid() || kind.IsAddress() != hasPos {
		return Field{}, errors.NewInvalidFieldError(key)
	}
	if !hasPos {
		return CustomerField(kind), nil
	}

	position, err := strconv.Atoi(pos)
	if err != nil || position < 0 || strconv.Itoa(position) != pos {
		return Field{}, errors.NewInvalidFieldError(key)
	}
	return AddressField(kind, position), nil
}

type rule struct {
	validate func(string) bool
	message  string
}

func ruleFor(kind FieldKind) (rule, bool) {
	switch kind {
	case KindPAN:
		return rule{ValidatePAN, "Invalid PAN number."}, true
	case KindFullName:
		return rule{ValidateFullName, "Full Name should be less than 140 characters."}, true
	case KindEmail:
		return rule{ValidateEmail, "Invalid email format."}, true
	case KindMobile:
		return rule{ValidateMobile, "Invalid mobile number."}, true
	case KindPostcode:
		return rule{ValidatePostcode, "Invalid postcode."}, true
	case KindAddressLine1:
		return rule{ValidateAddressLine1, "Address Line 1 is required."}, true
	default:
		return rule{}, false
	}
}

// Errors maps field keys to messages. An empty message means the field was
// checked and passed.
type Errors map[string]string

// Clone returns a copy of the mapping.
func (e Errors) Clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// HasFailures reports whether any entry carries a message.
func (e Errors) HasFailures() bool {
	for _, msg := range e {
		if msg != "" {
			return true
		}
	}
	return false
}

// Check validates value against the rule for field and records the outcome
// under field.Key(). Kinds without a rule leave errs untouched. It reports
// whether the value passed.
func Check(errs Errors, field Field, value string) bool {
	r, ok := ruleFor(field.Kind)
	if !ok {
		return true
	}
	if r.validate(value) {
		errs[field.Key()] = ""
		return true
	}
	errs[field.Key()] = r.message
	return false
}
