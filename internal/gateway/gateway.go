// Package gateway talks to the remote PAN verification and postcode lookup
// service.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"customer-manager/internal/common/errors"
	httpclient "customer-manager/internal/common/http"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/common/observability"
	"customer-manager/internal/common/validation"
	"customer-manager/internal/models"
)

const (
	statusSuccess = "Success"

	servicePAN      = "pan-verification"
	servicePostcode = "postcode-lookup"
)

// PANResult is a successful PAN verification.
type PANResult struct {
	FullName  string `json:"fullName"`
	PANNumber string `json:"panNumber,omitempty"`
}

// Gateway resolves PANs and postcodes. Failures are *errors.StandardError:
// PAN_VERIFICATION_FAILED or POSTCODE_LOOKUP_FAILED for an unsuccessful
// answer, EXTERNAL_SERVICE_ERROR or LOOKUP_TIMEOUT for transport problems.
type Gateway interface {
	VerifyPAN(ctx context.Context, pan string) (*PANResult, error)
	LookupPostcode(ctx context.Context, postcode string) (*models.Place, error)
}

type Config struct {
	VerifyPANURL string
	PostcodeURL  string
	Timeout      time.Duration
}

// HTTPGateway is the Gateway backed by the remote lookup service.
type HTTPGateway struct {
	config      Config
	client      *httpclient.Client
	obs         *observability.Observability
	logger      logger.Logger
	panSchema   *validation.Validator
	placeSchema *validation.Validator
}

func NewHTTPGateway(cfg Config, obs *observability.Observability, log logger.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &HTTPGateway{
		config:      cfg,
		client:      httpclient.NewClient(cfg.Timeout),
		obs:         obs,
		logger:      log.WithFields(map[string]interface{}{"component": "gateway"}),
		panSchema:   validation.MustCompile(validation.PANResponseSchema),
		placeSchema: validation.MustCompile(validation.PostcodeResponseSchema),
	}
}

type panRequest struct {
	PANNumber string `json:"panNumber"`
}

type panResponse struct {
	Status    string `json:"status"`
	FullName  string `json:"fullName"`
	Message   string `json:"message"`
	PANNumber string `json:"panNumber"`
}

type postcodeRequest struct {
	Postcode string `json:"postcode"`
}

type namedEntry struct {
	Name string `json:"name"`
}

type postcodeResponse struct {
	Status string       `json:"status"`
	City   []namedEntry `json:"city"`
	State  []namedEntry `json:"state"`
}

func (g *HTTPGateway) VerifyPAN(ctx context.Context, pan string) (result *PANResult, err error) {
	ctx, finish := g.begin(ctx, metrics.KindPAN, attribute.String("pan", pan))
	defer func() { finish(err) }()

	body, err := g.client.PostJSON(ctx, g.config.VerifyPANURL, panRequest{PANNumber: pan})
	if err != nil {
		return nil, transportError(servicePAN, err)
	}

	var resp panResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewExternalServiceError(servicePAN, fmt.Errorf("invalid response body: %w", err))
	}
	if resp.Status != statusSuccess {
		return nil, errors.NewPANVerificationFailedError(resp.Message, resp.PANNumber)
	}
	if !g.schemaValid(g.panSchema, servicePAN, body) {
		return nil, errors.NewPANVerificationFailedError("", pan)
	}

	return &PANResult{FullName: resp.FullName, PANNumber: resp.PANNumber}, nil
}

func (g *HTTPGateway) LookupPostcode(ctx context.Context, postcode string) (place *models.Place, err error) {
	ctx, finish := g.begin(ctx, metrics.KindPostcode, attribute.String("postcode", postcode))
	defer func() { finish(err) }()

	body, err := g.client.PostJSON(ctx, g.config.PostcodeURL, postcodeRequest{Postcode: postcode})
	if err != nil {
		return nil, transportError(servicePostcode, err)
	}

	var resp postcodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewExternalServiceError(servicePostcode, fmt.Errorf("invalid response body: %w", err))
	}
	if resp.Status != statusSuccess {
		return nil, errors.NewPostcodeLookupFailedError(postcode)
	}
	if !g.schemaValid(g.placeSchema, servicePostcode, body) {
		return nil, errors.NewPostcodeLookupFailedError(postcode)
	}

	return &models.Place{City: resp.City[0].Name, State: resp.State[0].Name}, nil
}

// begin opens a span and returns the function that records the outcome.
func (g *HTTPGateway) begin(ctx context.Context, kind string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := g.obs.StartSpan(ctx, "gateway."+kind, attrs...)
	metrics.LookupsInFlight.WithLabelValues(kind).Inc()

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := outcomeOf(err)

		metrics.LookupsInFlight.WithLabelValues(kind).Dec()
		metrics.LookupsTotal.WithLabelValues(kind, outcome).Inc()
		metrics.LookupDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
		g.obs.RecordLookup(ctx, kind, outcome, elapsed)

		fields := map[string]interface{}{
			"kind":       kind,
			"outcome":    outcome,
			"durationMs": elapsed.Milliseconds(),
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errors.MessageOf(err))
			fields["errorCode"] = string(errors.CodeOf(err))
			g.logger.Warn("Lookup failed", fields)
		} else {
			g.logger.Debug("Lookup succeeded", fields)
		}
		span.End()
	}
}

// schemaValid reports whether a "Success" body carries everything the caller
// reads from it.
func (g *HTTPGateway) schemaValid(v *validation.Validator, service string, body []byte) bool {
	result, err := v.ValidateBytes(body)
	if err != nil {
		g.logger.Warn("Lookup response could not be validated", map[string]interface{}{
			"service": service,
			"error":   err,
		})
		return false
	}
	if !result.Valid {
		g.logger.Warn("Lookup response failed schema validation", map[string]interface{}{
			"service": service,
			"errors":  result.GetErrorMessages(),
		})
	}
	return result.Valid
}

func outcomeOf(err error) string {
	switch errors.CodeOf(err) {
	case "":
		return "success"
	case errors.ErrCodePANVerificationFailed, errors.ErrCodePostcodeLookupFailed:
		return "rejected"
	case errors.ErrCodeLookupTimeout:
		return "timeout"
	default:
		return "error"
	}
}

func transportError(service string, err error) error {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewLookupTimeoutError(service, err)
	}
	return errors.NewExternalServiceError(service, err)
}
