package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/tripagent/internal/workflows"

// Activity-side instruments. Workflow code records through
// workflow.GetMetricsHandler instead, which is replay safe.
var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
	toolExecutionCounter metric.Int64Counter
	planDecisionCounter  metric.Int64Counter
	validationCounter    metric.Int64Counter
)

// Workflow metrics handler names.
const (
	metricRounds               = "tripagent_workflow_rounds"
	metricValidationRejections = "tripagent_workflow_validation_rejections"
	metricCollaboratorFailures = "tripagent_workflow_collaborator_failures"
	metricToolRuns             = "tripagent_workflow_tool_runs"
	metricContinueAsNew        = "tripagent_workflow_continue_as_new"
	metricDroppedPrompts       = "tripagent_workflow_dropped_prompts"
)

// initMetrics initializes OpenTelemetry metrics for activities.
// This is called once during package initialization.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	activityDuration, err = meter.Float64Histogram(
		"tripagent.workflows.activity.duration",
		metric.WithDescription("Duration of agent activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"tripagent.workflows.activity.errors",
		metric.WithDescription("Number of agent activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}

	toolExecutionCounter, err = meter.Int64Counter(
		"tripagent.workflows.tool.executions",
		metric.WithDescription("Number of tool executions by tool and outcome"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create tool execution counter: %v", err))
	}

	planDecisionCounter, err = meter.Int64Counter(
		"tripagent.workflows.planner.decisions",
		metric.WithDescription("Number of planner decisions by next step"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create planner decision counter: %v", err))
	}

	validationCounter, err = meter.Int64Counter(
		"tripagent.workflows.validation.results",
		metric.WithDescription("Number of prompt validations by result"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create validation counter: %v", err))
	}
}

func init() {
	initMetrics()
}

// recordActivity records duration and, on failure, an error for activity.
func recordActivity(ctx context.Context, activity string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", activity))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
