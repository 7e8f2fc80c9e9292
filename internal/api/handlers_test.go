package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customer-manager/internal/common/logger"
	"customer-manager/internal/gateway"
	"customer-manager/internal/gateway/gatewaytest"
	"customer-manager/internal/models"
	"customer-manager/internal/store"
)

// ==========================
// Test Helpers
// ==========================

type testAPI struct {
	router *chi.Mux
	store  *store.Store
}

func newTestAPI(t *testing.T, gw gateway.Gateway, formLimit int, opts ...HandlerOption) *testAPI {
	t.Helper()
	log := logger.NewTestLogger(t)
	s := store.New(gw, log)
	h := NewHandler(s, NewFormRegistry(formLimit), log, opts...)
	return &testAPI{router: NewRouter(h, RouterConfig{}, log), store: s}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type formBody struct {
	ID               string            `json:"id"`
	Mode             string            `json:"mode"`
	Draft            models.Customer   `json:"draft"`
	Errors           map[string]string `json:"errors"`
	Loading          bool              `json:"loading"`
	CanRemoveAddress bool              `json:"canRemoveAddress"`
	Done             bool              `json:"done"`
}

type errorBodyJSON struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Errors map[string]string `json:"errors"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) openForm(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/forms", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[formBody](t, rec).ID
}

func (a *testAPI) setField(t *testing.T, formID, key, value string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPut, "/api/v1/forms/"+formID+"/fields/"+key, map[string]string{"value": value})
}

func staticGateway() gatewaytest.Static {
	return gatewaytest.Static{Name: "Asha Rao", Place: models.Place{City: "Panaji", State: "Goa"}}
}

func sampleCustomer() models.Customer {
	return models.Customer{
		PAN: "ABCDE1234F", FullName: "Asha Rao", Email: "asha@example.com", Mobile: "9876543210",
		Addresses: []models.Address{{AddressLine1: "12 Church Street", Postcode: "403001", City: "Panaji", State: "Goa"}},
	}
}

// ==========================
// Health
// ==========================

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", nil).Code)
	a.openForm(t)
	ready := a.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Equal(t, 1, decode[struct {
		OpenForms int `json:"openForms"`
	}](t, ready).OpenForms)

	rec := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "customer_forms_open")
}

func TestReady_FailingCheck(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0, WithReadinessCheck("redis", func(ctx context.Context) error {
		return stderrors.New("dial tcp: connection refused")
	}))

	rec := a.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

// ==========================
// Customers
// ==========================

func TestCustomers_GetAndDelete(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	added := a.store.Add(sampleCustomer())

	rec := a.do(t, http.MethodGet, "/api/v1/customers/"+added.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, added, decode[models.Customer](t, rec))

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/customers/"+added.ID, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/customers/"+added.ID, nil).Code)

	rec = a.do(t, http.MethodGet, "/api/v1/customers/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", decode[errorBodyJSON](t, rec).Error.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Customer](t, rec))
}

// ==========================
// Create form
// ==========================

func TestCreateForm_FullFlow(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)

	for key, value := range map[string]string{
		"pan":            "ABCDE1234F",
		"email":          "asha@example.com",
		"mobile":         "9876543210",
		"addressLine1-0": "12 Church Street",
		"postcode-0":     "403001",
	} {
		require.Equal(t, http.StatusOK, a.setField(t, id, key, value).Code, key)
	}

	rec := a.do(t, http.MethodGet, "/api/v1/forms/"+id+"?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f := decode[formBody](t, rec)
	assert.False(t, f.Loading)
	assert.Equal(t, "Asha Rao", f.Draft.FullName)
	assert.Equal(t, "Panaji", f.Draft.Addresses[0].City)

	rec = a.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[store.State](t, rec)
	assert.Equal(t, models.ValidityValid, state.Verification.IsValid)

	rec = a.do(t, http.MethodPost, "/api/v1/forms/"+id+"/submit", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var submitted struct {
		Notice   string          `json:"notice"`
		Customer models.Customer `json:"customer"`
		Form     formBody        `json:"form"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, "Congratulations your Form is Submitted!!!", submitted.Notice)
	assert.NotEmpty(t, submitted.Customer.ID)
	assert.Empty(t, submitted.Form.Draft.PAN)
	assert.False(t, submitted.Form.Done)

	customers := a.store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "Goa", customers[0].Addresses[0].State)
}

func TestCreateForm_SubmitBlocked(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)
	require.Equal(t, http.StatusOK, a.setField(t, id, "pan", "ABC").Code)

	rec := a.do(t, http.MethodPost, "/api/v1/forms/"+id+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[errorBodyJSON](t, rec)
	assert.Equal(t, "SUBMISSION_BLOCKED", body.Error.Code)
	assert.Equal(t, "Invalid PAN format", body.Errors["pan"])
	assert.Equal(t, "Name is required", body.Errors["fullName"])
	assert.Equal(t, "Invalid postcode", body.Errors["postcode-0"])
	assert.Empty(t, a.store.Customers())
}

func TestCreateForm_RequestErrors(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"unknown form", http.MethodGet, "/api/v1/forms/missing", nil, http.StatusNotFound, "FORM_NOT_FOUND"},
		{"unknown field", http.MethodPut, "/api/v1/forms/" + id + "/fields/nickname", map[string]string{"value": "x"}, http.StatusBadRequest, "INVALID_FIELD"},
		{"address field without position", http.MethodPut, "/api/v1/forms/" + id + "/fields/postcode", map[string]string{"value": "403001"}, http.StatusBadRequest, "INVALID_FIELD"},
		{"missing value", http.MethodPut, "/api/v1/forms/" + id + "/fields/email", map[string]string{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"address out of range", http.MethodPut, "/api/v1/forms/" + id + "/fields/postcode-3", map[string]string{"value": "403001"}, http.StatusNotFound, "ADDRESS_NOT_FOUND"},
		{"derived field", http.MethodPut, "/api/v1/forms/" + id + "/fields/city-0", map[string]string{"value": "Panaji"}, http.StatusBadRequest, "INVALID_FIELD"},
		{"bad position", http.MethodDelete, "/api/v1/forms/" + id + "/addresses/first", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"last address", http.MethodDelete, "/api/v1/forms/" + id + "/addresses/0", nil, http.StatusUnprocessableEntity, "LAST_ADDRESS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode[errorBodyJSON](t, rec).Error.Code)
		})
	}
}

func TestCreateForm_Addresses(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)

	for i := 1; i < models.MaxAddresses; i++ {
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/forms/"+id+"/addresses", nil).Code)
	}
	rec := a.do(t, http.MethodPost, "/api/v1/forms/"+id+"/addresses", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Maximum 10 addresses allowed", decode[errorBodyJSON](t, rec).Error.Message)

	rec = a.do(t, http.MethodDelete, "/api/v1/forms/"+id+"/addresses/9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f := decode[formBody](t, rec)
	assert.Len(t, f.Draft.Addresses, models.MaxAddresses-1)
	assert.True(t, f.CanRemoveAddress)
}

func TestCreateForm_Blur(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)
	require.Equal(t, http.StatusOK, a.setField(t, id, "mobile", "98765").Code)

	rec := a.do(t, http.MethodPost, "/api/v1/forms/"+id+"/blur/mobile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invalid mobile number.", decode[formBody](t, rec).Errors["mobile"])
}

func TestCancelForm(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)
	id := a.openForm(t)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/forms/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/forms/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/api/v1/forms/"+id, nil).Code)
}

func TestFormLimit(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 1)
	first := a.openForm(t)

	rec := a.do(t, http.MethodPost, "/api/v1/forms", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "FORM_LIMIT_REACHED", decode[errorBodyJSON](t, rec).Error.Code)

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/forms/"+first, nil).Code)
	a.openForm(t)
}

// ==========================
// Edit form
// ==========================

func TestEditForm_Flow(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 1)
	added := a.store.Add(sampleCustomer())

	rec := a.do(t, http.MethodPost, "/api/v1/customers/"+added.ID+"/forms", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	f := decode[formBody](t, rec)
	assert.Equal(t, "edit", f.Mode)
	assert.Equal(t, added.Email, f.Draft.Email)

	require.Equal(t, http.StatusOK, a.setField(t, f.ID, "email", "asha.rao@example.com").Code)

	rec = a.do(t, http.MethodPost, "/api/v1/forms/"+f.ID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your Form is Updated!!!")

	stored, ok := a.store.Customer(added.ID)
	require.True(t, ok)
	assert.Equal(t, "asha.rao@example.com", stored.Email)

	rec = a.setField(t, f.ID, "email", "x@example.com")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The closed edit form is evicted to make room for a new one.
	a.openForm(t)
}

func TestEditForm_UnknownCustomer(t *testing.T) {
	a := newTestAPI(t, staticGateway(), 0)

	rec := a.do(t, http.MethodPost, "/api/v1/customers/nobody/forms", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", decode[errorBodyJSON](t, rec).Error.Code)
}

// ==========================
// Lookups
// ==========================

func TestGetForm_WaitTimesOut(t *testing.T) {
	gw := gatewaytest.New()
	a := newTestAPI(t, gw, 0)
	id := a.openForm(t)
	require.Equal(t, http.StatusOK, a.setField(t, id, "pan", "ABCDE1234F").Code)
	call := gw.Next(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+id+"?wait=true", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	call.RejectPAN("PAN does not exist")
	rec = a.do(t, http.MethodGet, "/api/v1/forms/"+id+"?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAN does not exist", decode[formBody](t, rec).Errors["pan"])
}
