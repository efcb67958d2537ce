package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugraph/edugraph-api/internal/models"
)

var (
	actionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edugraph",
		Subsystem: "pipeline",
		Name:      "action_runs_total",
		Help:      "Number of action executions by type and exit code",
	}, []string{"type", "code"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "edugraph",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of full pipeline runs",
		Buckets:   prometheus.DefBuckets,
	})
)

// Outcome is the merged result of running a block's action pipeline.
type Outcome struct {
	Data  interface{}
	Text  []string
	Log   []string
	Code  ExitCode
	Score *float64
}

// Executor runs an ordered action list as a strict sequential state machine.
// Actions may depend on their predecessors' data, so there is no concurrency
// within one run.
type Executor struct {
	runner *Runner
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewExecutor constructs a pipeline executor around the given runner.
func NewExecutor(runner *Runner, logger zerolog.Logger) *Executor {
	return &Executor{
		runner: runner,
		logger: logger.With().Str("component", "pipeline").Logger(),
		tracer: otel.Tracer("github.com/edugraph/edugraph-api/internal/pipeline"),
	}
}

// RunPipeline executes the actions in the order given, threading data from
// one action to the next. It stops early on the first error exit code unless
// the failing action is configured to continue, and stops with ExitNoError
// when a stop-on-match action matches.
func (e *Executor) RunPipeline(ctx context.Context, actions []models.Action, input []string, role string) Outcome {
	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("pipeline.actions", len(actions)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		pipelineDuration.Observe(time.Since(start).Seconds())
	}()

	outcome := Outcome{Code: ExitNoError}
	rc := RunContext{
		Answer: input,
		Role:   role,
	}

	for _, action := range actions {
		if action.TeacherOnly && !models.IsStaff(role) {
			continue
		}

		result := e.runner.Run(ctx, action, rc)
		actionRuns.WithLabelValues(string(action.Type), result.Code.String()).Inc()

		outcome.Log = append(outcome.Log, result.Log...)
		if !action.HideFeedback {
			outcome.Text = append(outcome.Text, result.Text...)
		}
		if result.Data != nil {
			rc.Data = result.Data
			outcome.Data = result.Data
		}
		if result.Score != nil {
			rc.Scores = append(rc.Scores, *result.Score)
			outcome.Score = result.Score
		}

		if result.Code.IsError() && !continueOnError(action) {
			outcome.Code = result.Code
			span.SetAttributes(attribute.String("pipeline.stopped_on", string(action.Type)))
			return outcome
		}

		if action.StopOnMatch && result.Matched {
			span.SetAttributes(attribute.Bool("pipeline.matched", true))
			return outcome
		}
	}

	return outcome
}
