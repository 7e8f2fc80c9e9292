package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedFields(r *ValidationResult) []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, strings.SplitN(e.Field, ".", 2)[0])
	}
	return fields
}

func TestPostcodeResponseSchema(t *testing.T) {
	v := MustCompile(PostcodeResponseSchema)

	tests := []struct {
		name      string
		body      string
		wantValid bool
		badField  string
	}{
		{
			name:      "complete response",
			body:      `{"status":"Success","city":[{"id":1,"name":"Mumbai"}],"state":[{"id":2,"name":"Maharashtra"}]}`,
			wantValid: true,
		},
		{
			name:     "empty city list",
			body:     `{"status":"Success","city":[],"state":[{"name":"Maharashtra"}]}`,
			badField: "city",
		},
		{
			name:     "missing state",
			body:     `{"status":"Success","city":[{"name":"Mumbai"}]}`,
			badField: "(root)",
		},
		{
			name:     "city name is not a string",
			body:     `{"status":"Success","city":[{"name":7}],"state":[{"name":"Maharashtra"}]}`,
			badField: "city",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateBytes([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			if !tt.wantValid {
				assert.Contains(t, failedFields(result), tt.badField, result.GetErrorMessages())
			}
		})
	}
}

func TestPANResponseSchema(t *testing.T) {
	v := MustCompile(PANResponseSchema)

	result, err := v.ValidateBytes([]byte(`{"status":"Success","fullName":"Asha Rao","panNumber":"ABCDE1234F"}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.ValidateBytes([]byte(`{"status":"Success","fullName":""}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.GetErrorMessages())
}

func TestValidator_MalformedDocument(t *testing.T) {
	v := MustCompile(PANResponseSchema)
	_, err := v.ValidateBytes([]byte(`{"status":`))
	assert.Error(t, err)
}

func TestJobSchemas(t *testing.T) {
	tests := []struct {
		name      string
		schema    string
		vars      map[string]interface{}
		wantValid bool
		wantField string
	}{
		{"postcode string", PostcodeJobSchema, map[string]interface{}{"postcode": "110001"}, true, ""},
		{"postcode number", PostcodeJobSchema, map[string]interface{}{"postcode": 110001}, false, "postcode"},
		{"postcode missing", PostcodeJobSchema, map[string]interface{}{"panNumber": "ABCDE1234F"}, false, "(root)"},
		{"pan string", VerifyPANJobSchema, map[string]interface{}{"panNumber": "ABCDE1234F", "extra": true}, true, ""},
		{"pan empty", VerifyPANJobSchema, map[string]interface{}{"panNumber": ""}, false, "panNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MustCompile(tt.schema).ValidateGo(tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantField != "" {
				assert.Contains(t, failedFields(result), tt.wantField, result.GetErrorMessages())
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}
