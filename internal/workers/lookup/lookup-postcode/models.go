package lookuppostcode

type Input struct {
	Postcode string `json:"postcode"`
}

// Output is merged into the process variables. An unknown postcode yields
// PostcodeValid false rather than a job failure.
type Output struct {
	PostcodeValid   bool   `json:"postcodeValid"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	PostcodeMessage string `json:"postcodeMessage,omitempty"`
}
