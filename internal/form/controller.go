// Package form drives a single customer form: it holds the draft, validates
// fields as they are edited, issues PAN and postcode lookups through the store
// and reconciles their results with whatever the user has typed since.
package form

import (
	"context"
	"sync"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/models"
	"customer-manager/internal/store"
	"customer-manager/internal/validators"
)

const (
	NoticeCreated = "Congratulations your Form is Submitted!!!"
	NoticeUpdated = "Your Form is Updated!!!"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// CustomerStore is the part of the store a form depends on. *store.Store
// satisfies it.
type CustomerStore interface {
	NewID() string
	Add(c models.Customer) models.Customer
	Update(c models.Customer) bool
	BeginPAN(pan string) store.PANRequest
	VerifyPAN(ctx context.Context, req store.PANRequest) (models.PANVerification, error)
	BeginPostcode(addressID, postcode string) store.PostcodeRequest
	LookupPostcode(ctx context.Context, req store.PostcodeRequest) (*models.Place, error)
	ForgetPostcode(addressID string)
	ResetVerification()
	ResetPostcodeDetails()
}

// SubmitResult describes a committed submission.
type SubmitResult struct {
	Customer models.Customer `json:"customer"`
	Notice   string          `json:"notice"`
}

// Snapshot is a consistent copy of the form state.
type Snapshot struct {
	Mode             Mode              `json:"mode"`
	Draft            models.Customer   `json:"draft"`
	Errors           validators.Errors `json:"errors"`
	LookupErrors     map[string]string `json:"lookupErrors,omitempty"`
	PANLoading       bool              `json:"panLoading"`
	PendingAddresses []string          `json:"pendingAddresses"`
	Loading          bool              `json:"loading"`
	CanAddAddress    bool              `json:"canAddAddress"`
	CanRemoveAddress bool              `json:"canRemoveAddress"`
	Done             bool              `json:"done"`
}

// Controller owns one draft. All methods are safe for concurrent use; lookup
// results are applied on their own goroutines under the same lock.
type Controller struct {
	mu           sync.Mutex
	store        CustomerStore
	logger       logger.Logger
	mode         Mode
	maxAddresses int
	lookupCtx    context.Context

	draft        models.Customer
	errs         validators.Errors
	lookupErrors map[string]string
	panLoading   bool
	done         bool

	// panSeq identifies the latest PAN request. postcodeSeq issues postcode
	// tokens; postcodeLatest holds the outstanding token per address id, so an
	// address is pending exactly while it has an entry.
	panSeq         uint64
	postcodeSeq    uint64
	postcodeLatest map[string]uint64

	inFlight int
	settled  chan struct{}
}

type Option func(*Controller)

// WithMaxAddresses overrides models.MaxAddresses.
func WithMaxAddresses(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAddresses = n
		}
	}
}

// WithLookupContext sets the context lookups run under. It defaults to
// context.Background.
func WithLookupContext(ctx context.Context) Option {
	return func(c *Controller) { c.lookupCtx = ctx }
}

// NewCreate opens a form for a new customer with one blank address.
func NewCreate(s CustomerStore, log logger.Logger, opts ...Option) *Controller {
	c := newController(s, log, ModeCreate, opts)
	c.draft = c.blankDraft()
	return c
}

// NewEdit opens a form seeded with a copy of existing.
func NewEdit(s CustomerStore, existing models.Customer, log logger.Logger, opts ...Option) *Controller {
	c := newController(s, log, ModeEdit, opts)
	c.draft = existing.Clone()
	for i := range c.draft.Addresses {
		if c.draft.Addresses[i].ID == "" {
			c.draft.Addresses[i].ID = s.NewID()
		}
	}
	if len(c.draft.Addresses) == 0 {
		c.draft.Addresses = []models.Address{{ID: s.NewID()}}
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"customerId": existing.ID})
	return c
}

func newController(s CustomerStore, log logger.Logger, mode Mode, opts []Option) *Controller {
	c := &Controller{
		store:          s,
		logger:         log.WithFields(map[string]interface{}{"component": "form", "mode": string(mode)}),
		mode:           mode,
		maxAddresses:   models.MaxAddresses,
		lookupCtx:      context.Background(),
		errs:           validators.Errors{},
		lookupErrors:   make(map[string]string),
		postcodeLatest: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) blankDraft() models.Customer {
	return models.Customer{Addresses: []models.Address{{ID: c.store.NewID()}}}
}

func (c *Controller) Mode() Mode {
	return c.mode
}

// ==========================
// Edits
// ==========================

// SetField overwrites a top-level customer field. PAN edits go through SetPAN.
func (c *Controller) SetField(kind validators.FieldKind, value string) error {
	if kind == validators.KindPAN {
		return c.SetPAN(value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}

	switch kind {
	case validators.KindFullName:
		c.draft.FullName = value
	case validators.KindEmail:
		c.draft.Email = value
	case validators.KindMobile:
		c.draft.Mobile = value
	default:
		return errors.NewInvalidFieldError(string(kind))
	}
	return nil
}

// SetPAN overwrites the draft PAN. A well-formed PAN is sent for verification;
// a malformed one is flagged at once and supersedes any verification in flight.
func (c *Controller) SetPAN(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}

	c.draft.PAN = value
	c.panSeq++

	if !validators.ValidatePAN(value) {
		c.errs[string(validators.KindPAN)] = msgInvalidPAN
		c.panLoading = false
		c.store.ResetVerification()
		return nil
	}

	c.panLoading = true
	c.beginLookup()
	go c.verifyPAN(c.panSeq, c.store.BeginPAN(value))
	return nil
}

func (c *Controller) verifyPAN(seq uint64, req store.PANRequest) {
	pan := req.PAN
	v, _ := c.store.VerifyPAN(c.lookupCtx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLookup()

	if c.done || seq != c.panSeq {
		metrics.StaleResultsDiscarded.WithLabelValues(metrics.KindPAN, "form").Inc()
		c.logger.Debug("Discarding superseded PAN result", map[string]interface{}{"pan": pan})
		return
	}

	c.panLoading = false
	key := string(validators.KindPAN)
	if v.IsValid == models.ValidityValid {
		c.draft.FullName = v.FullName
		c.errs[key] = ""
		return
	}
	c.errs[key] = v.Message
}

// SetAddressField overwrites one input of the address at position. City and
// state are derived from the postcode and cannot be set directly.
func (c *Controller) SetAddressField(position int, kind validators.FieldKind, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}
	if position < 0 || position >= len(c.draft.Addresses) {
		return errors.NewAddressNotFoundError(position)
	}

	addr := &c.draft.Addresses[position]
	switch kind {
	case validators.KindAddressLine1:
		addr.AddressLine1 = value
	case validators.KindAddressLine2:
		addr.AddressLine2 = value
	case validators.KindPostcode:
		c.setPostcode(addr, value)
	default:
		return errors.NewInvalidFieldError(validators.AddressField(kind, position).Key())
	}
	return nil
}

func (c *Controller) setPostcode(addr *models.Address, value string) {
	addr.Postcode = value
	addr.City = ""
	addr.State = ""
	delete(c.lookupErrors, addr.ID)

	if !validators.ValidatePostcode(value) {
		delete(c.postcodeLatest, addr.ID)
		c.store.ForgetPostcode(addr.ID)
		return
	}

	c.postcodeSeq++
	c.postcodeLatest[addr.ID] = c.postcodeSeq
	c.beginLookup()
	go c.lookupPostcode(c.postcodeSeq, c.store.BeginPostcode(addr.ID, value))
}

func (c *Controller) lookupPostcode(seq uint64, req store.PostcodeRequest) {
	addressID, postcode := req.AddressID, req.Postcode
	place, err := c.store.LookupPostcode(c.lookupCtx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLookup()

	addr := c.address(addressID)
	if c.done || c.postcodeLatest[addressID] != seq || addr == nil || addr.Postcode != postcode {
		metrics.StaleResultsDiscarded.WithLabelValues(metrics.KindPostcode, "form").Inc()
		c.logger.Debug("Discarding superseded postcode result", map[string]interface{}{
			"addressId": addressID,
			"postcode":  postcode,
		})
		return
	}
	delete(c.postcodeLatest, addressID)

	if err != nil {
		c.lookupErrors[addressID] = errors.MessageOf(err)
		return
	}
	addr.City = place.City
	addr.State = place.State
}

func (c *Controller) address(id string) *models.Address {
	for i := range c.draft.Addresses {
		if c.draft.Addresses[i].ID == id {
			return &c.draft.Addresses[i]
		}
	}
	return nil
}

// AddAddress appends a blank address.
func (c *Controller) AddAddress() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}
	if len(c.draft.Addresses) >= c.maxAddresses {
		return errors.NewAddressLimitError(c.maxAddresses)
	}
	c.draft.Addresses = append(c.draft.Addresses, models.Address{ID: c.store.NewID()})
	return nil
}

// RemoveAddress drops the address at position. Lookups pending for it are
// discarded when they return, and address errors move with their address.
func (c *Controller) RemoveAddress(position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}
	if position < 0 || position >= len(c.draft.Addresses) {
		return errors.NewAddressNotFoundError(position)
	}
	if len(c.draft.Addresses) == 1 {
		return errors.NewLastAddressError()
	}

	id := c.draft.Addresses[position].ID
	c.draft.Addresses = append(c.draft.Addresses[:position:position], c.draft.Addresses[position+1:]...)
	delete(c.postcodeLatest, id)
	delete(c.lookupErrors, id)
	c.store.ForgetPostcode(id)
	c.errs = shiftAddressErrors(c.errs, position)
	return nil
}

func shiftAddressErrors(errs validators.Errors, removed int) validators.Errors {
	out := make(validators.Errors, len(errs))
	for key, msg := range errs {
		f, err := validators.ParseField(key)
		if err != nil || !f.Kind.IsAddress() {
			out[key] = msg
			continue
		}
		switch {
		case f.Position == removed:
			continue
		case f.Position > removed:
			f.Position--
		}
		out[f.Key()] = msg
	}
	return out
}

func (c *Controller) CanRemoveAddress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.draft.Addresses) > 1
}

// Blur validates the current value of field and records the outcome.
func (c *Controller) Blur(field validators.Field) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NewFormClosedError()
	}

	value, err := c.valueOf(field)
	if err != nil {
		return err
	}
	validators.Check(c.errs, field, value)
	return nil
}

func (c *Controller) valueOf(field validators.Field) (string, error) {
	if field.Kind.IsAddress() {
		if field.Position < 0 || field.Position >= len(c.draft.Addresses) {
			return "", errors.NewAddressNotFoundError(field.Position)
		}
		addr := c.draft.Addresses[field.Position]
		switch field.Kind {
		case validators.KindAddressLine1:
			return addr.AddressLine1, nil
		case validators.KindAddressLine2:
			return addr.AddressLine2, nil
		case validators.KindPostcode:
			return addr.Postcode, nil
		case validators.KindCity:
			return addr.City, nil
		case validators.KindState:
			return addr.State, nil
		}
	}

	switch field.Kind {
	case validators.KindPAN:
		return c.draft.PAN, nil
	case validators.KindFullName:
		return c.draft.FullName, nil
	case validators.KindEmail:
		return c.draft.Email, nil
	case validators.KindMobile:
		return c.draft.Mobile, nil
	}
	return "", errors.NewInvalidFieldError(field.Key())
}

// ==========================
// Submission
// ==========================

// Submit validates the whole draft. On failure the error mapping is replaced
// with the failures and a SUBMISSION_BLOCKED error carrying them is returned.
func (c *Controller) Submit() (*SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil, errors.NewFormClosedError()
	}

	if errs := validateCustomer(c.draft); errs.HasFailures() {
		c.errs = errs
		metrics.SubmissionsBlocked.WithLabelValues(string(c.mode)).Inc()
		c.logger.Debug("Submission blocked", map[string]interface{}{"failures": len(errs)})
		return nil, errors.NewSubmissionBlockedError(errs)
	}

	if c.mode == ModeEdit {
		return c.commitEdit()
	}
	return c.commitCreate(), nil
}

func (c *Controller) commitCreate() *SubmitResult {
	added := c.store.Add(c.draft)

	c.draft = c.blankDraft()
	c.errs = validators.Errors{}
	c.lookupErrors = make(map[string]string)
	c.panSeq++
	c.panLoading = false
	c.postcodeLatest = make(map[string]uint64)
	c.store.ResetVerification()
	c.store.ResetPostcodeDetails()

	c.logger.Info("Customer form submitted", map[string]interface{}{"customerId": added.ID})
	return &SubmitResult{Customer: added, Notice: NoticeCreated}
}

func (c *Controller) commitEdit() (*SubmitResult, error) {
	if !c.store.Update(c.draft) {
		return nil, errors.NewCustomerNotFoundError(c.draft.ID)
	}
	c.errs = validators.Errors{}
	c.close()

	c.logger.Info("Customer form updated", nil)
	return &SubmitResult{Customer: c.draft.Clone(), Notice: NoticeUpdated}, nil
}

// Cancel closes the form. Results of lookups still in flight are discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
}

func (c *Controller) close() {
	c.done = true
	c.panLoading = false
	c.postcodeLatest = make(map[string]uint64)
}

// ==========================
// Inspection
// ==========================

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]string, 0, len(c.postcodeLatest))
	for _, addr := range c.draft.Addresses {
		if _, ok := c.postcodeLatest[addr.ID]; ok {
			pending = append(pending, addr.ID)
		}
	}

	var lookupErrors map[string]string
	if len(c.lookupErrors) > 0 {
		lookupErrors = make(map[string]string, len(c.lookupErrors))
		for k, v := range c.lookupErrors {
			lookupErrors[k] = v
		}
	}

	return Snapshot{
		Mode:             c.mode,
		Draft:            c.draft.Clone(),
		Errors:           c.errs.Clone(),
		LookupErrors:     lookupErrors,
		PANLoading:       c.panLoading,
		PendingAddresses: pending,
		Loading:          c.panLoading || len(pending) > 0,
		CanAddAddress:    len(c.draft.Addresses) < c.maxAddresses,
		CanRemoveAddress: len(c.draft.Addresses) > 1,
		Done:             c.done,
	}
}

// Wait blocks until every lookup this form has issued so far has settled or
// ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight == 0 {
		c.mu.Unlock()
		return nil
	}
	settled := c.settled
	c.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginLookup and endLookup must be called with mu held.
func (c *Controller) beginLookup() {
	if c.inFlight == 0 {
		c.settled = make(chan struct{})
	}
	c.inFlight++
}

func (c *Controller) endLookup() {
	c.inFlight--
	if c.inFlight == 0 {
		close(c.settled)
	}
}
