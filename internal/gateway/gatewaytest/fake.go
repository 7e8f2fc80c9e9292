// Package gatewaytest provides a scripted gateway.Gateway whose calls block
// until the test answers them, so tests control the order results arrive in.
package gatewaytest

import (
	"context"
	"testing"
	"time"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/gateway"
	"customer-manager/internal/models"
)

const (
	KindPAN      = "pan"
	KindPostcode = "postcode"
)

type reply struct {
	pan   *gateway.PANResult
	place *models.Place
	err   error
}

// Call is one outstanding gateway request.
type Call struct {
	Kind  string
	Value string
	reply chan reply
}

// SucceedPAN answers a PAN call with a verified name.
func (c *Call) SucceedPAN(fullName string) {
	c.reply <- reply{pan: &gateway.PANResult{FullName: fullName, PANNumber: c.Value}}
}

// SucceedPostcode answers a postcode call with a place.
func (c *Call) SucceedPostcode(city, state string) {
	c.reply <- reply{place: &models.Place{City: city, State: state}}
}

// Fail answers the call with err.
func (c *Call) Fail(err error) {
	c.reply <- reply{err: err}
}

// RejectPAN answers a PAN call the way the service reports an unknown PAN.
func (c *Call) RejectPAN(message string) {
	c.Fail(errors.NewPANVerificationFailedError(message, c.Value))
}

// RejectPostcode answers a postcode call the way the service reports an
// unknown postcode.
func (c *Call) RejectPostcode() {
	c.Fail(errors.NewPostcodeLookupFailedError(c.Value))
}

// Gateway records every call on Calls and blocks it until answered.
type Gateway struct {
	Calls chan *Call
}

func New() *Gateway {
	return &Gateway{Calls: make(chan *Call, 64)}
}

func (g *Gateway) VerifyPAN(ctx context.Context, pan string) (*gateway.PANResult, error) {
	r, err := g.call(ctx, KindPAN, pan)
	if err != nil {
		return nil, err
	}
	return r.pan, r.err
}

func (g *Gateway) LookupPostcode(ctx context.Context, postcode string) (*models.Place, error) {
	r, err := g.call(ctx, KindPostcode, postcode)
	if err != nil {
		return nil, err
	}
	return r.place, r.err
}

func (g *Gateway) call(ctx context.Context, kind, value string) (reply, error) {
	c := &Call{Kind: kind, Value: value, reply: make(chan reply, 1)}
	g.Calls <- c
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return reply{}, errors.NewLookupTimeoutError(kind, ctx.Err())
	}
}

// Next returns the next call, failing the test if none arrives within a second.
func (g *Gateway) Next(t testing.TB) *Call {
	t.Helper()
	select {
	case c := <-g.Calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("expected a gateway call")
		return nil
	}
}

// AssertNoCall fails the test if a call is pending.
func (g *Gateway) AssertNoCall(t testing.TB) {
	t.Helper()
	select {
	case c := <-g.Calls:
		t.Fatalf("unexpected %s lookup for %q", c.Kind, c.Value)
	case <-time.After(20 * time.Millisecond):
	}
}

// Static is a gateway.Gateway answering every call immediately.
type Static struct {
	Name  string
	Place models.Place
	Err   error
}

func (s Static) VerifyPAN(ctx context.Context, pan string) (*gateway.PANResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &gateway.PANResult{FullName: s.Name, PANNumber: pan}, nil
}

func (s Static) LookupPostcode(ctx context.Context, postcode string) (*models.Place, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	place := s.Place
	return &place, nil
}

// Echo is a gateway.Gateway answering every call immediately with a result
// derived from its input, so each result names the request it belongs to.
type Echo struct{}

func (Echo) VerifyPAN(ctx context.Context, pan string) (*gateway.PANResult, error) {
	return &gateway.PANResult{FullName: "name-" + pan, PANNumber: pan}, nil
}

func (Echo) LookupPostcode(ctx context.Context, postcode string) (*models.Place, error) {
	return &models.Place{City: "city-" + postcode, State: "state-" + postcode}, nil
}
