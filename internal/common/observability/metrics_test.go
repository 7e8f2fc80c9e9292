package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := New("customer-manager-test",
		WithRegisterer(promclient.NewRegistry()),
		WithSpanProcessor(recorder),
	)
	defer obs.Shutdown()

	_, span := obs.StartSpan(context.Background(), "gateway.verify_pan", attribute.String("kind", "pan"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "gateway.verify_pan", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("kind", "pan"))
}

func TestRecordLookup_ExportsToRegistry(t *testing.T) {
	reg := promclient.NewRegistry()
	obs := New("customer-manager-test", WithRegisterer(reg))
	defer obs.Shutdown()

	obs.RecordLookup(context.Background(), "postcode", "success", 12*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "lookups_processed") {
			found = true
		}
	}
	assert.True(t, found, "lookup counter not exported")
}

func TestZeroValue_IsSafe(t *testing.T) {
	var obs Observability
	ctx, span := obs.StartSpan(context.Background(), "noop")
	span.End()
	assert.NotNil(t, ctx)
	obs.RecordLookup(context.Background(), "pan", "failure", time.Millisecond)
	obs.Shutdown()
}
