package validators

import (
	"strings"
	"testing"

	"customer-manager/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Predicates
// ==========================

func TestValidatePAN(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ABCDE1234F", true},
		{"abcde1234f", false},
		{"ABCDE12345", false},
		{"ABCD1234F", false},
		{"ABCDE1234FG", false},
		{" ABCDE1234F", false},
		{"ABCDE1234F\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePAN(tt.input))
		})
	}
}

func TestValidateMobile(t *testing.T) {
	assert.True(t, ValidateMobile("9876543210"))
	assert.False(t, ValidateMobile("987654321"))
	assert.False(t, ValidateMobile("98765432100"))
	assert.False(t, ValidateMobile("98765 43210"))
	assert.False(t, ValidateMobile("+919876543210"))
}

func TestValidatePostcode(t *testing.T) {
	assert.True(t, ValidatePostcode("902101"))
	assert.False(t, ValidatePostcode("9021a1"))
	assert.False(t, ValidatePostcode("90210"))
	assert.False(t, ValidatePostcode("9021011"))
}

func TestValidateFullName(t *testing.T) {
	assert.False(t, ValidateFullName(""))
	assert.True(t, ValidateFullName("A"))
	assert.True(t, ValidateFullName(strings.Repeat("a", 140)))
	assert.False(t, ValidateFullName(strings.Repeat("a", 141)))
	assert.True(t, ValidateFullName(strings.Repeat("é", 140)), "length counts characters, not bytes")
	assert.True(t, ValidateFullName("   "), "whitespace-only names pass the blur rule")
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("asha@example.com"))
	assert.False(t, ValidateEmail("asha@example"))
	assert.False(t, ValidateEmail("asha example@x.com"))
	assert.False(t, ValidateEmail("@example.com"))
	assert.False(t, ValidateEmail(strings.Repeat("a", 250)+"@x.com"))
}

func TestValidateAddressLine1(t *testing.T) {
	assert.True(t, ValidateAddressLine1("12 MG Road"))
	assert.False(t, ValidateAddressLine1(""))
}

// ==========================
// Fields and dispatch
// ==========================

func TestField_Key(t *testing.T) {
	assert.Equal(t, "email", CustomerField(KindEmail).Key())
	assert.Equal(t, "postcode-2", AddressField(KindPostcode, 2).Key())
	assert.Equal(t, "addressLine1-0", AddressField(KindAddressLine1, 0).Key())
}

func TestParseField(t *testing.T) {
	tests := []struct {
		key     string
		want    Field
		wantErr bool
	}{
		{key: "pan", want: CustomerField(KindPAN)},
		{key: "fullName", want: CustomerField(KindFullName)},
		{key: "postcode-3", want: AddressField(KindPostcode, 3)},
		{key: "city-0", want: AddressField(KindCity, 0)},
		{key: "postcode", wantErr: true},
		{key: "email-1", wantErr: true},
		{key: "postcode--1", wantErr: true},
		{key: "postcode-01", wantErr: true},
		{key: "postcode-x", wantErr: true},
		{key: "nickname", wantErr: true},
		{key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseField(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidField, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, got.Key())
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		field    Field
		value    string
		wantKey  string
		wantMsg  string
		wantPass bool
	}{
		{name: "invalid pan", field: CustomerField(KindPAN), value: "BADFORMAT", wantKey: "pan", wantMsg: "Invalid PAN number."},
		{name: "valid pan clears", field: CustomerField(KindPAN), value: "ABCDE1234F", wantKey: "pan", wantMsg: "", wantPass: true},
		{name: "long name", field: CustomerField(KindFullName), value: strings.Repeat("n", 141), wantKey: "fullName", wantMsg: "Full Name should be less than 140 characters."},
		{name: "bad email", field: CustomerField(KindEmail), value: "nope", wantKey: "email", wantMsg: "Invalid email format."},
		{name: "bad mobile", field: CustomerField(KindMobile), value: "123", wantKey: "mobile", wantMsg: "Invalid mobile number."},
		{name: "bad postcode", field: AddressField(KindPostcode, 1), value: "12", wantKey: "postcode-1", wantMsg: "Invalid postcode."},
		{name: "empty line 1", field: AddressField(KindAddressLine1, 4), value: "", wantKey: "addressLine1-4", wantMsg: "Address Line 1 is required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Errors{"untouched": "kept"}
			pass := Check(errs, tt.field, tt.value)

			assert.Equal(t, tt.wantPass, pass)
			msg, ok := errs[tt.wantKey]
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, "kept", errs["untouched"])
			assert.Len(t, errs, 2)
		})
	}
}

func TestCheck_KindsWithoutRuleAreNoOp(t *testing.T) {
	errs := Errors{}
	for _, f := range []Field{AddressField(KindAddressLine2, 0), AddressField(KindCity, 0), AddressField(KindState, 0)} {
		assert.True(t, Check(errs, f, ""))
	}
	assert.Empty(t, errs)
}

func TestErrors_HasFailures(t *testing.T) {
	assert.False(t, Errors{"pan": "", "email": ""}.HasFailures())
	assert.True(t, Errors{"pan": "", "email": "Invalid email format."}.HasFailures())

	orig := Errors{"pan": "x"}
	clone := orig.Clone()
	clone["pan"] = ""
	assert.Equal(t, "x", orig["pan"])
}
