package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/form"
	"customer-manager/internal/models"
	"customer-manager/internal/store"
	"customer-manager/internal/validators"
)

const maxBodyBytes = 64 << 10

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler serves the customer and form endpoints.
type Handler struct {
	store    *store.Store
	forms    *FormRegistry
	logger   logger.Logger
	formOpts []form.Option
	checks   map[string]ReadinessCheck
}

type HandlerOption func(*Handler)

// WithFormOptions applies opts to every form the handler opens.
func WithFormOptions(opts ...form.Option) HandlerOption {
	return func(h *Handler) { h.formOpts = append(h.formOpts, opts...) }
}

// WithReadinessCheck adds a named check to GET /ready.
func WithReadinessCheck(name string, check ReadinessCheck) HandlerOption {
	return func(h *Handler) { h.checks[name] = check }
}

func NewHandler(s *store.Store, forms *FormRegistry, log logger.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  s,
		forms:  forms,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
		checks: make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type formResponse struct {
	ID string `json:"id"`
	form.Snapshot
}

type submitResponse struct {
	Notice   string          `json:"notice"`
	Customer models.Customer `json:"customer"`
	Form     formResponse    `json:"form"`
}

type fieldRequest struct {
	Value *string `json:"value"`
}

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
}

type errorResponse struct {
	Error  errorBody         `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

// ==========================
// Health
// ==========================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		h.logger.Warn("Readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "openForms": h.forms.Len()})
}

// ==========================
// Customers
// ==========================

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Customers())
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.store.Customer(id)
	if !ok {
		h.writeError(w, errors.NewCustomerNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	h.store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

// ==========================
// Forms
// ==========================

func (h *Handler) handleOpenCreateForm(w http.ResponseWriter, r *http.Request) {
	h.openForm(w, form.NewCreate(h.store, h.logger, h.formOpts...))
}

func (h *Handler) handleOpenEditForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, ok := h.store.Customer(id)
	if !ok {
		h.writeError(w, errors.NewCustomerNotFoundError(id))
		return
	}
	h.openForm(w, form.NewEdit(h.store, existing, h.logger, h.formOpts...))
}

func (h *Handler) openForm(w http.ResponseWriter, c *form.Controller) {
	id, err := h.forms.Put(c)
	if err != nil {
		c.Cancel()
		h.writeError(w, err)
		return
	}
	h.logger.Debug("Form opened", map[string]interface{}{"formId": id, "mode": string(c.Mode())})
	writeJSON(w, http.StatusCreated, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		if err := c.Wait(r.Context()); err != nil {
			h.writeError(w, errors.NewLookupTimeoutError("form", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleSetField(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	field, err := validators.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req fieldRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, errors.NewInvalidRequestError(err.Error()))
		return
	}
	if req.Value == nil {
		h.writeError(w, errors.NewInvalidRequestError("value is required"))
		return
	}

	if field.Kind.IsAddress() {
		err = c.SetAddressField(field.Position, field.Kind, *req.Value)
	} else {
		err = c.SetField(field.Kind, *req.Value)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleBlur(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	field, err := validators.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.Blur(field); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	if err := c.AddAddress(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleRemoveAddress(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		h.writeError(w, errors.NewInvalidRequestError("position must be an integer"))
		return
	}
	if err := c.RemoveAddress(position); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{ID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.lookupForm(w, r)
	if !ok {
		return
	}
	result, err := c.Submit()
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if c.Mode() == form.ModeCreate {
		status = http.StatusCreated
	}
	writeJSON(w, status, submitResponse{
		Notice:   result.Notice,
		Customer: result.Customer,
		Form:     formResponse{ID: id, Snapshot: c.Snapshot()},
	})
}

func (h *Handler) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.Remove(chi.URLParam(r, "formId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookupForm(w http.ResponseWriter, r *http.Request) (string, *form.Controller, bool) {
	id := chi.URLParam(r, "formId")
	c, err := h.forms.Get(id)
	if err != nil {
		h.writeError(w, err)
		return "", nil, false
	}
	return id, c, true
}

// ==========================
// Responses
// ==========================

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	stdErr := errors.AsStandard(err)
	status := errors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"message": stdErr.Message,
			"details": stdErr.Details,
		})
	}

	resp := errorResponse{Error: errorBody{Code: stdErr.Code, Message: stdErr.Message, Details: stdErr.Details}}
	if fieldErrors, ok := stdErr.Metadata["errors"].(map[string]string); ok {
		resp.Errors = fieldErrors
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
