// Package workflows hosts the Temporal workflow for durable audit execution.
// The pipeline itself stays in-process; the workflow wraps it as one
// long-running activity with heartbeat progress.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Activity names - must match registered activity names
const (
	RunAuditActivityName = "RunAuditActivity"
)

// AuditInput starts a durable audit.
type AuditInput struct {
	TargetURL string             `json:"target_url"`
	Company   domain.Company     `json:"company"`
	Options   domain.RunOptions  `json:"options"`
}

// AuditOutput is the durable record of the run's outcome. The full context
// is persisted as a lead by the activity; the workflow keeps the summary.
type AuditOutput struct {
	RunID        string           `json:"run_id"`
	Status       domain.RunStatus `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	Letter       domain.Letter    `json:"letter,omitempty"`
	OverallScore int              `json:"overall_score,omitempty"`
	LeadID       string           `json:"lead_id,omitempty"`
	Duration     time.Duration    `json:"duration"`
}

// AuditWorkflow runs one audit as a single heartbeating activity. Inside the
// pipeline, only LLM calls and page navigation retry; stages themselves are
// not retried. The activity retry policy only covers infrastructure failures.
func AuditWorkflow(ctx workflow.Context, input AuditInput) (*AuditOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("audit workflow starting",
		"target_url", input.TargetURL,
		"company", input.Company.Name,
	)

	activityCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 2,
			NonRetryableErrorTypes: []string{
				domain.ErrCodeInput,
				domain.ErrCodeDiscoveryEmpty,
				domain.ErrCodeCancelled,
			},
		},
	})

	var output AuditOutput
	if err := workflow.ExecuteActivity(activityCtx, RunAuditActivityName, input).Get(ctx, &output); err != nil {
		logger.Error("audit activity failed", "error", err)
		return &AuditOutput{Status: domain.StatusFailed, Reason: err.Error()}, nil
	}

	logger.Info("audit workflow complete",
		"run_id", output.RunID,
		"status", output.Status,
		"grade", output.Letter,
	)
	return &output, nil
}
