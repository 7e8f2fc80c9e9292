package verifypan

import (
	"context"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/common/validation"
	"customer-manager/internal/gateway"
	"customer-manager/internal/validators"
)

const TaskType = "verify-pan"

const msgInvalidFormat = "Invalid PAN format"

var inputSchema = validation.MustCompile(validation.VerifyPANJobSchema)

type Handler struct {
	config       *Config
	gateway      gateway.Gateway
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(cfg *Config, gw gateway.Gateway, log logger.Logger) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})
	return &Handler{
		config:       cfg,
		gateway:      gw,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing PAN verification job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute verifies the PAN. Malformed and unknown PANs produce an output with
// PANValid false; only transport failures are returned as errors.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !validators.ValidatePAN(input.PANNumber) {
		return &Output{PANValid: false, PANMessage: msgInvalidFormat}, nil
	}

	result, err := h.gateway.VerifyPAN(ctx, input.PANNumber)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodePANVerificationFailed {
			return &Output{PANValid: false, PANMessage: errors.MessageOf(err)}, nil
		}
		return nil, err
	}
	return &Output{PANValid: true, FullName: result.FullName}, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("parse variables: %v", err))
	}

	result, err := inputSchema.ValidateGo(variables)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	return &Input{PANNumber: variables["panNumber"].(string)}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.fail(ctx, client, job, errors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("PAN verification job completed", map[string]interface{}{
		"jobKey":   job.GetKey(),
		"panValid": output.PANValid,
	})
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
