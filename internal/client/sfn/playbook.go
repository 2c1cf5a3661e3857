// Package sfn starts the remediation playbook as a Step Functions execution.
package sfn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

// executionNamespace scopes the deterministic execution names.
var executionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("incident-detector/playbook"))

// API is the subset of the Step Functions client used here.
type API interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// Playbook starts executions of one state machine.
type Playbook struct {
	api             API
	stateMachineARN string
	logger          zerolog.Logger
}

// NewPlaybook creates a Playbook trigger for stateMachineARN.
func NewPlaybook(api API, stateMachineARN string, logger zerolog.Logger) *Playbook {
	return &Playbook{
		api:             api,
		stateMachineARN: stateMachineARN,
		logger:          logger.With().Str("component", "sfn-playbook").Logger(),
	}
}

// ExecutionName derives the execution name from the incident id, so a
// retried start for the same incident is rejected by Step Functions instead
// of running twice.
func ExecutionName(incidentID string) string {
	return uuid.NewSHA1(executionNamespace, []byte(incidentID)).String()
}

// Start starts an execution with payload as its input. It does not wait for
// the execution to finish.
func (p *Playbook) Start(ctx context.Context, payload model.PlaybookPayload) error {
	input, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode playbook input: %w", err)
	}

	out, err := p.api.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(p.stateMachineARN),
		Name:            aws.String(ExecutionName(payload.IncidentID)),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}

	p.logger.Info().
		Str("incident_id", payload.IncidentID).
		Str("execution_arn", aws.ToString(out.ExecutionArn)).
		Msg("playbook execution started")

	return nil
}
