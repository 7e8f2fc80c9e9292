// internal/common/camunda/client.go
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/logger"
)

// ClientConfig holds configuration for the Zeebe gateway connection.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	Retry                  RetryPolicy
}

// RetryPolicy bounds the exponential backoff applied to gateway commands.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<attempt)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Client owns the Zeebe connection and the job workers opened on it.
type Client struct {
	zeebe  zbc.Client
	config ClientConfig
	logger logger.Logger

	mu      sync.Mutex
	workers []*CamundaWorker
}

// Dial connects to the gateway and confirms the broker topology, retrying
// while the gateway is unavailable.
func Dial(cfg ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy
	}

	zeebe, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client: %w", err)
	}

	c := &Client{
		zeebe:  zeebe,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"gateway": cfg.GatewayAddress}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := c.withRetry(ctx, "topology", func(ctx context.Context) error {
		_, err := zeebe.NewTopologyCommand().Send(ctx)
		return err
	}); err != nil {
		zeebe.Close()
		return nil, err
	}

	c.logger.Info("Connected to Zeebe gateway", nil)
	return c, nil
}

// StartWorker opens a job worker for taskType. The worker is stopped by Close.
func (c *Client) StartWorker(taskType string, maxJobsActive int, handler JobHandler) *CamundaWorker {
	w := newWorker(c.zeebe, taskType, maxJobsActive, handler, c.logger)

	c.mu.Lock()
	c.workers = append(c.workers, w)
	c.mu.Unlock()
	return w
}

// HealthCheck asks the broker for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.zeebe.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// Close stops every worker, waiting for in-flight jobs, then releases the
// connection.
func (c *Client) Close() error {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	return c.zeebe.Close()
}

// withRetry runs cmd with exponential backoff. Only transient gRPC failures
// are retried; the final error is mapped to a StandardError.
func (c *Client) withRetry(ctx context.Context, operation string, cmd func(context.Context) error) error {
	policy := c.config.Retry

	var err error
	for attempt := 0; ; attempt++ {
		if err = cmd(ctx); err == nil {
			return nil
		}
		if !isTransient(err) || attempt == policy.MaxRetries {
			return mapZeebeError(err, operation, attempt)
		}

		c.logger.Warn("Zeebe command failed, retrying", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})

		select {
		case <-time.After(policy.delay(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("operation %s cancelled after %d attempts: %w", operation, attempt+1, ctx.Err())
		}
	}
}

func isTransient(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func mapZeebeError(err error, operation string, attempt int) error {
	wrapped := fmt.Errorf("zeebe %s failed", operation)
	if attempt > 0 {
		wrapped = fmt.Errorf("zeebe %s failed after %d retries", operation, attempt)
	}
	wrapped = fmt.Errorf("%w: %v", wrapped, err)

	if stderrors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
		return errors.NewLookupTimeoutError("zeebe", wrapped)
	}
	return errors.NewExternalServiceError("zeebe", wrapped)
}
