package form

import (
	"strings"

	"customer-manager/internal/models"
	"customer-manager/internal/validators"
)

// Submission messages differ from the blur messages of the field rules.
const (
	msgInvalidPAN      = "Invalid PAN format"
	msgNameRequired    = "Name is required"
	msgEmailRequired   = "Email is required"
	msgInvalidEmail    = "Invalid email format"
	msgMobileRequired  = "Mobile number is required"
	msgInvalidMobile   = "Invalid mobile number format"
	msgLine1Required   = "Address Line 1 is required"
	msgInvalidPostcode = "Invalid postcode"
)

// validateCustomer runs every submission check against c and returns the
// failures keyed by field. An empty result means c may be committed.
func validateCustomer(c models.Customer) validators.Errors {
	errs := validators.Errors{}

	if !validators.ValidatePAN(c.PAN) {
		errs[string(validators.KindPAN)] = msgInvalidPAN
	}
	if strings.TrimSpace(c.FullName) == "" {
		errs[string(validators.KindFullName)] = msgNameRequired
	}

	switch {
	case c.Email == "":
		errs[string(validators.KindEmail)] = msgEmailRequired
	case !validators.ValidateEmail(c.Email):
		errs[string(validators.KindEmail)] = msgInvalidEmail
	}

	switch {
	case c.Mobile == "":
		errs[string(validators.KindMobile)] = msgMobileRequired
	case !validators.ValidateMobile(c.Mobile):
		errs[string(validators.KindMobile)] = msgInvalidMobile
	}

	for i, addr := range c.Addresses {
		if !validators.ValidateAddressLine1(addr.AddressLine1) {
			errs[validators.AddressField(validators.KindAddressLine1, i).Key()] = msgLine1Required
		}
		if !validators.ValidatePostcode(addr.Postcode) {
			errs[validators.AddressField(validators.KindPostcode, i).Key()] = msgInvalidPostcode
		}
	}
	return errs
}
