package form

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"customer-manager/internal/models"
	"customer-manager/internal/validators"
)

func validCustomer() models.Customer {
	return models.Customer{
		PAN:      "ABCDE1234F",
		FullName: "Asha Rao",
		Email:    "asha@example.com",
		Mobile:   "9876543210",
		Addresses: []models.Address{
			{AddressLine1: "12 Church Street", Postcode: "403001"},
			{AddressLine1: "4 Beach Road", Postcode: "403002"},
		},
	}
}

func TestValidateCustomer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.Customer)
		want   validators.Errors
	}{
		{
			name:   "valid",
			mutate: func(c *models.Customer) {},
			want:   validators.Errors{},
		},
		{
			name:   "lowercase pan",
			mutate: func(c *models.Customer) { c.PAN = "abcde1234f" },
			want:   validators.Errors{"pan": "Invalid PAN format"},
		},
		{
			name:   "blank name",
			mutate: func(c *models.Customer) { c.FullName = " \t " },
			want:   validators.Errors{"fullName": "Name is required"},
		},
		{
			name:   "long name is accepted at submit",
			mutate: func(c *models.Customer) { c.FullName = strings.Repeat("a", 200) },
			want:   validators.Errors{},
		},
		{
			name:   "missing email",
			mutate: func(c *models.Customer) { c.Email = "" },
			want:   validators.Errors{"email": "Email is required"},
		},
		{
			name:   "malformed email",
			mutate: func(c *models.Customer) { c.Email = "asha.example.com" },
			want:   validators.Errors{"email": "Invalid email format"},
		},
		{
			name:   "missing mobile",
			mutate: func(c *models.Customer) { c.Mobile = "" },
			want:   validators.Errors{"mobile": "Mobile number is required"},
		},
		{
			name:   "short mobile",
			mutate: func(c *models.Customer) { c.Mobile = "98765" },
			want:   validators.Errors{"mobile": "Invalid mobile number format"},
		},
		{
			name: "second address incomplete",
			mutate: func(c *models.Customer) {
				c.Addresses[1].AddressLine1 = ""
				c.Addresses[1].Postcode = "40300"
			},
			want: validators.Errors{
				"addressLine1-1": "Address Line 1 is required",
				"postcode-1":     "Invalid postcode",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCustomer()
			tt.mutate(&c)
			assert.Equal(t, tt.want, validateCustomer(c))
		})
	}
}
