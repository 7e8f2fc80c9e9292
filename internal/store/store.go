// Package store holds the customer collection and the transient lookup state
// shared by every form.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/gateway"
	"customer-manager/internal/models"
)

// State is a consistent snapshot of the lookup side of the store.
type State struct {
	Verification    models.PANVerification  `json:"panVerification"`
	PostcodeDetails map[string]models.Place `json:"postcodeDetails"`
	Loading         bool                    `json:"loading"`
	Error           string                  `json:"error,omitempty"`
}

// Store is the only writer of the customer collection. Every method holds the
// lock for its whole transition, so readers never observe a partial update.
// Lookups release the lock while the gateway call is outstanding.
type Store struct {
	mu      sync.RWMutex
	gateway gateway.Gateway
	logger  logger.Logger
	newID   func() string

	customers       []models.Customer
	verification    models.PANVerification
	postcodeDetails map[string]models.Place
	inFlight        int
	lastError       string

	// panSeq is the token of the latest PAN request. postcodeSeq issues
	// tokens for postcode requests; postcodeLatest holds the newest
	// outstanding token per address id.
	panSeq         uint64
	postcodeSeq    uint64
	postcodeLatest map[string]uint64
}

type Option func(*Store)

// WithIDGenerator replaces uuid.NewString for customer and address ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(gw gateway.Gateway, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		gateway:         gw,
		logger:          log.WithFields(map[string]interface{}{"component": "store"}),
		newID:           uuid.NewString,
		postcodeDetails: make(map[string]models.Place),
		postcodeLatest:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a fresh identifier from the store's generator.
func (s *Store) NewID() string {
	return s.newID()
}

// ==========================
// Customer collection
// ==========================

// Add appends a copy of c under a freshly assigned id and returns it. Addresses
// without an id are given one.
func (s *Store) Add(c models.Customer) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := c.Clone()
	added.ID = s.newID()
	s.assignAddressIDs(&added)
	s.customers = append(s.customers, added)

	metrics.CustomersCommitted.WithLabelValues("create").Inc()
	s.logger.Info("Customer added", map[string]interface{}{
		"customerId": added.ID,
		"addresses":  len(added.Addresses),
	})
	return added.Clone()
}

// Update replaces the customer with c.ID in place. It reports false and
// changes nothing when no such customer exists.
func (s *Store) Update(c models.Customer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.customers {
		if s.customers[i].ID != c.ID {
			continue
		}
		updated := c.Clone()
		s.assignAddressIDs(&updated)
		s.customers[i] = updated

		metrics.CustomersCommitted.WithLabelValues("update").Inc()
		s.logger.Info("Customer updated", map[string]interface{}{"customerId": c.ID})
		return true
	}

	s.logger.Debug("Update for unknown customer ignored", map[string]interface{}{"customerId": c.ID})
	return false
}

// Delete removes the customer with id, reporting whether one was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.customers {
		if s.customers[i].ID == id {
			s.customers = append(s.customers[:i:i], s.customers[i+1:]...)
			metrics.CustomersDeleted.Inc()
			s.logger.Info("Customer deleted", map[string]interface{}{"customerId": id})
			return true
		}
	}
	return false
}

// Customers returns copies of all customers in insertion order.
func (s *Store) Customers() []models.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Customer, len(s.customers))
	for i, c := range s.customers {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) Customer(id string) (models.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return models.Customer{}, false
}

func (s *Store) assignAddressIDs(c *models.Customer) {
	for i := range c.Addresses {
		if c.Addresses[i].ID == "" {
			c.Addresses[i].ID = s.newID()
		}
	}
}

// ==========================
// Lookups
// ==========================

// PANRequest is a PAN verification registered with BeginPAN and not yet
// sent. Only the most recently begun request may write the verification.
type PANRequest struct {
	PAN string
	seq uint64
}

// PostcodeRequest is a postcode lookup registered with BeginPostcode and not
// yet sent. Only the most recently begun request for its address id may
// write postcode details.
type PostcodeRequest struct {
	AddressID string
	Postcode  string
	seq       uint64
}

// BeginPAN supersedes every earlier PAN request and marks the verification
// pending. Callers must follow it with VerifyPAN.
func (s *Store) BeginPAN(pan string) PANRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.panSeq++
	s.inFlight++
	s.lastError = ""
	s.verification = models.PANVerification{}
	return PANRequest{PAN: pan, seq: s.panSeq}
}

// VerifyPAN sends req and records its outcome as the current verification
// unless a newer request or a reset superseded it. The returned verification
// always describes req.
func (s *Store) VerifyPAN(ctx context.Context, req PANRequest) (models.PANVerification, error) {
	result, err := s.gateway.VerifyPAN(ctx, req.PAN)

	var v models.PANVerification
	if err != nil {
		v = models.PANVerification{IsValid: models.ValidityInvalid, Message: errors.MessageOf(err)}
	} else {
		v = models.PANVerification{IsValid: models.ValidityValid, FullName: result.FullName}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if req.seq != s.panSeq {
		metrics.StaleResultsDiscarded.WithLabelValues(metrics.KindPAN, "store").Inc()
		s.logger.Debug("Discarding superseded PAN result", map[string]interface{}{"seq": req.seq, "latest": s.panSeq})
		return v, err
	}

	s.verification = v
	if err != nil {
		s.lastError = v.Message
	}
	return v, err
}

// BeginPostcode supersedes earlier requests for addressID and drops the place
// recorded for it. Callers must follow it with LookupPostcode.
func (s *Store) BeginPostcode(addressID, postcode string) PostcodeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.postcodeSeq++
	s.postcodeLatest[addressID] = s.postcodeSeq
	delete(s.postcodeDetails, addressID)
	s.inFlight++
	s.lastError = ""
	return PostcodeRequest{AddressID: addressID, Postcode: postcode, seq: s.postcodeSeq}
}

// LookupPostcode resolves req and, when it is still the newest request for its
// address id, records the place under that id.
func (s *Store) LookupPostcode(ctx context.Context, req PostcodeRequest) (*models.Place, error) {
	place, err := s.gateway.LookupPostcode(ctx, req.Postcode)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if s.postcodeLatest[req.AddressID] != req.seq {
		metrics.StaleResultsDiscarded.WithLabelValues(metrics.KindPostcode, "store").Inc()
		s.logger.Debug("Discarding superseded postcode result", map[string]interface{}{
			"addressId": req.AddressID,
			"postcode":  req.Postcode,
		})
		return place, err
	}
	delete(s.postcodeLatest, req.AddressID)

	if err != nil {
		s.lastError = errors.MessageOf(err)
		return nil, err
	}
	s.postcodeDetails[req.AddressID] = *place
	return place, nil
}

// ForgetPostcode drops the place recorded for addressID and supersedes any
// request for it still in flight.
func (s *Store) ForgetPostcode(addressID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.postcodeLatest, addressID)
	delete(s.postcodeDetails, addressID)
}

// PostcodeDetails returns the place recorded for an address id.
func (s *Store) PostcodeDetails(addressID string) (models.Place, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postcodeDetails[addressID]
	return p, ok
}

// ResetVerification clears the current verification. Requests still in flight
// will not write their result.
func (s *Store) ResetVerification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panSeq++
	s.verification = models.PANVerification{}
}

// ResetPostcodeDetails clears all recorded places. Requests still in flight
// will not write their result.
func (s *Store) ResetPostcodeDetails() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postcodeDetails = make(map[string]models.Place)
	s.postcodeLatest = make(map[string]uint64)
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make(map[string]models.Place, len(s.postcodeDetails))
	for k, v := range s.postcodeDetails {
		details[k] = v
	}
	return State{
		Verification:    s.verification,
		PostcodeDetails: details,
		Loading:         s.inFlight > 0,
		Error:           s.lastError,
	}
}
