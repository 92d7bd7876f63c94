// Package audit hosts the Temporal activity wrapping the analysis pipeline.
package audit

import (
	"context"
	"fmt"

	temporalactivity "go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	auditsvc "github.com/sitegrader/sitegrader/internal/services/audit"
	"github.com/sitegrader/sitegrader/internal/workflows"
)

// Activity runs the pipeline inside a Temporal worker.
type Activity struct {
	orchestrator *auditsvc.Orchestrator
	saveLead     func(ctx context.Context, result *domain.AnalysisResult) (string, error)
	logger       *zap.Logger
}

// NewActivity creates the activity. saveLead may be nil.
func NewActivity(orchestrator *auditsvc.Orchestrator, saveLead func(ctx context.Context, result *domain.AnalysisResult) (string, error), logger *zap.Logger) *Activity {
	return &Activity{orchestrator: orchestrator, saveLead: saveLead, logger: logger}
}

// Run executes one audit, heartbeating progress so Temporal can detect a
// stuck worker.
func (a *Activity) Run(ctx context.Context, input workflows.AuditInput) (*workflows.AuditOutput, error) {
	onProgress := func(e domain.ProgressEvent) {
		temporalactivity.RecordHeartbeat(ctx, fmt.Sprintf("%s/%s: %s", e.Stage, e.Step, e.Message))
	}

	result, err := a.orchestrator.Analyze(ctx, input.TargetURL, input.Company, input.Options, onProgress)
	if err != nil {
		return nil, err
	}

	output := &workflows.AuditOutput{
		Status:   result.Status,
		Reason:   result.Reason,
		Duration: result.Duration,
	}
	if result.Context != nil {
		output.RunID = result.Context.RunID
		if result.Context.Grading != nil {
			output.Letter = result.Context.Grading.Letter
			output.OverallScore = result.Context.Grading.OverallScore
		}
	}

	if result.Status == domain.StatusCompleted && a.saveLead != nil {
		leadID, err := a.saveLead(ctx, result)
		if err != nil {
			a.logger.Warn("lead persistence failed", zap.Error(err))
		} else {
			output.LeadID = leadID
		}
	}

	return output, nil
}
