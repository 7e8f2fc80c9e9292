package verifypan

type Input struct {
	PANNumber string `json:"panNumber"`
}

// Output is merged into the process variables. A PAN the service does not
// know is a normal outcome with PANValid false, not a job failure.
type Output struct {
	PANValid   bool   `json:"panValid"`
	FullName   string `json:"fullName,omitempty"`
	PANMessage string `json:"panMessage,omitempty"`
}
