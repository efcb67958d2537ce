package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/pkg/codexec"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

// RunContext carries the state one action runs against.
type RunContext struct {
	// Answer holds the student's raw answer values for the block.
	Answer []string
	// Data is the value threaded from the previous action.
	Data interface{}
	// Scores collects the sub-scores produced by earlier actions, in order.
	Scores []float64
	// Role is the evaluating principal's role.
	Role string
}

// ActionResult is the uniform outcome of one action run.
type ActionResult struct {
	Data    interface{} `json:"data"`
	Text    []string    `json:"text"`
	Log     []string    `json:"log"`
	Code    ExitCode    `json:"code"`
	Score   *float64    `json:"score"`
	Matched bool        `json:"matched"`
}

// RunnerConfig groups action runner configuration values.
type RunnerConfig struct {
	WebhookTimeout time.Duration
	WebhookRetries int
}

// Runner executes a single configured action. External failures are mapped to
// exit codes; only host-process faults propagate as errors out of the
// underlying collaborators, and those are still folded into the result here.
type Runner struct {
	exec      codexec.Client
	httpc     *http.Client
	evaluator sandbox.Evaluator
	cache     Cache
	logger    zerolog.Logger
	cfg       RunnerConfig
}

// NewRunner constructs an action runner. cache may be nil to disable caching.
func NewRunner(exec codexec.Client, evaluator sandbox.Evaluator, cache Cache, logger zerolog.Logger, cfg RunnerConfig) *Runner {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 10 * time.Second
	}
	if cfg.WebhookRetries <= 0 {
		cfg.WebhookRetries = 1
	}

	return &Runner{
		exec:      exec,
		httpc:     &http.Client{Timeout: cfg.WebhookTimeout},
		evaluator: evaluator,
		cache:     cache,
		logger:    logger.With().Str("component", "action_runner").Logger(),
		cfg:       cfg,
	}
}

// Run dispatches on the action type and produces a uniform result. The switch
// is exhaustive over models.ActionTypes.
func (r *Runner) Run(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	if result, ok := r.fromCache(ctx, action, rc); ok {
		return result
	}

	var result ActionResult
	switch action.Type {
	case models.ActionTypeCode:
		result = r.runCode(ctx, action, rc)
	case models.ActionTypeUnitTest, models.ActionTypeIOTest:
		result = r.runTests(ctx, action, rc)
	case models.ActionTypeWebhook:
		result = r.runWebhook(ctx, action, rc)
	case models.ActionTypeDatabase:
		result = r.runDatabase(ctx, action, rc)
	case models.ActionTypeFeedback:
		result = r.runFeedback(ctx, action, rc)
	case models.ActionTypeScoring:
		result = r.runScoring(ctx, action, rc)
	default:
		result = ActionResult{
			Code: ExitCodeError,
			Log:  []string{fmt.Sprintf("unknown action type %q", action.Type)},
		}
	}

	r.store(ctx, action, rc, result)
	return result
}

func (r *Runner) runCode(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg CodeConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitCodeError, Log: []string{err.Error()}}
	}

	code := cfg.Code
	input := strings.Join(rc.Answer, "\n")
	if code == "" {
		// Code-question blocks: the answer itself is the program.
		if len(rc.Answer) == 0 {
			return ActionResult{Code: ExitCodeError, Log: []string{"no code submitted"}}
		}
		code = rc.Answer[0]
		input = ""
	}

	run, err := r.exec.ExecuteCode(ctx, cfg.Language, code, input)
	result := ActionResult{Data: rc.Data}
	result.Log = appendOutput(result.Log, run.Stdout, run.Stderr)

	switch {
	case run.TimedOut:
		result.Code = ExitTimeout
	case err != nil:
		result.Code = ExitCodeError
		result.Log = append(result.Log, err.Error())
	case run.ExitCode != 0:
		result.Code = ExitCodeError
	default:
		// Structured output replaces the pipeline data when the program emits JSON.
		if data, ok := parseJSON(run.Stdout); ok {
			result.Data = data
		}
	}

	return result
}

func (r *Runner) runTests(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg TestConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitTestFailure, Log: []string{err.Error()}}
	}
	if len(rc.Answer) == 0 {
		return ActionResult{Code: ExitTestFailure, Log: []string{"no code submitted"}}
	}

	results, err := r.exec.RunTests(ctx, cfg.Language, rc.Answer[0], cfg.Tests)
	if err != nil {
		return ActionResult{Code: ExitTestFailure, Log: []string{err.Error()}}
	}

	passed := 0
	result := ActionResult{}
	for _, test := range results {
		status := "failed"
		if test.Passed {
			passed++
			status = "passed"
		}
		line := fmt.Sprintf("%s: %s", test.Name, status)
		if test.Log != "" {
			line += "\n" + test.Log
		}
		result.Log = append(result.Log, line)
	}

	score := 0.0
	if len(results) > 0 {
		score = float64(passed) / float64(len(results)) * 100
	}
	result.Score = &score
	result.Data = map[string]interface{}{"score": score, "passed": passed, "total": len(results)}
	return result
}

func (r *Runner) runWebhook(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg WebhookConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitWebhookError, Log: []string{err.Error()}}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"data":   rc.Data,
		"answer": rc.Answer,
	})
	if err != nil {
		return ActionResult{Code: ExitWebhookError, Log: []string{fmt.Sprintf("encode payload: %v", err)}}
	}

	body, err := r.postWebhook(ctx, cfg.URL, payload)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", cfg.URL).Msg("webhook call failed")
		return ActionResult{Code: ExitWebhookError, Log: []string{fmt.Sprintf("webhook failed: %v", err)}}
	}

	result := ActionResult{Data: rc.Data}
	if data, ok := parseJSON(string(body)); ok {
		result.Data = data
	} else if len(bytes.TrimSpace(body)) > 0 {
		// Malformed response is an error, not a crash.
		result.Code = ExitWebhookError
		result.Log = []string{"webhook returned malformed JSON"}
	}
	return result
}

// postWebhook sends the payload, retrying once on transient network failure.
func (r *Runner) postWebhook(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.WebhookRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpc.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Non-2xx is not transient, do not retry.
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return body, nil
	}
	return nil, lastErr
}

func (r *Runner) runDatabase(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg DatabaseConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitDatabaseError, Log: []string{err.Error()}}
	}

	query := cfg.Query
	if query == "" && len(rc.Answer) > 0 {
		// Database-question blocks: the answer is the query under check.
		query = rc.Answer[0]
	}

	rows, err := runDatabaseCheck(ctx, cfg, query)
	if err != nil {
		return ActionResult{Code: ExitDatabaseError, Log: []string{fmt.Sprintf("database check failed: %v", err)}}
	}

	return ActionResult{Data: rows, Log: []string{fmt.Sprintf("query returned %d rows", len(rows))}}
}

func (r *Runner) runFeedback(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg FeedbackConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitEvalError, Log: []string{err.Error()}}
	}

	value, err := r.evaluator.Evaluate(ctx, cfg.Condition, map[string]interface{}{
		"data":   normalizeBinding(rc.Data),
		"answer": rc.Answer,
	})
	if err != nil {
		code := ExitEvalError
		if evalErr, ok := sandbox.AsEvalError(err); ok && evalErr.Timeout {
			code = ExitTimeout
		}
		return ActionResult{Data: rc.Data, Code: code, Log: []string{err.Error()}}
	}

	result := ActionResult{Data: rc.Data}
	if truthy(value) {
		result.Matched = true
		if cfg.Text != "" {
			result.Text = []string{cfg.Text}
		}
	} else if cfg.TextOnMismatch != "" {
		result.Text = []string{cfg.TextOnMismatch}
	}
	return result
}

// runScoring evaluates the score expression with the collected sub-scores
// bound. Evaluation failure fails open: the block still gets feedback with a
// zero score and the error recorded in the log.
func (r *Runner) runScoring(ctx context.Context, action models.Action, rc RunContext) ActionResult {
	var cfg ScoringConfig
	if err := decodeConfig(action, &cfg); err != nil {
		return ActionResult{Code: ExitEvalError, Log: []string{err.Error()}}
	}

	value, err := r.evaluator.Evaluate(ctx, cfg.ScoreExpression, map[string]interface{}{
		"score":  latestScore(rc),
		"scores": rc.Scores,
		"data":   normalizeBinding(rc.Data),
		"answer": rc.Answer,
	})
	if err != nil {
		zero := 0.0
		r.logger.Warn().Err(err).Uint("action_id", action.ID).Msg("score expression failed, falling back to zero")
		return ActionResult{Data: rc.Data, Score: &zero, Log: []string{fmt.Sprintf("score expression failed: %v", err)}}
	}

	score, ok := value.(float64)
	if !ok {
		zero := 0.0
		return ActionResult{Data: rc.Data, Score: &zero, Log: []string{fmt.Sprintf("score expression returned %T, expected number", value)}}
	}

	score = clampScore(score)
	// A computed score is a terminal condition for stop-on-match pipelines.
	return ActionResult{Data: rc.Data, Score: &score, Matched: true}
}

func (r *Runner) fromCache(ctx context.Context, action models.Action, rc RunContext) (ActionResult, bool) {
	if r.cache == nil || !cacheable(action) || action.ForceOverrideCache {
		return ActionResult{}, false
	}
	return r.cache.Get(ctx, cacheKey(action, rc))
}

func (r *Runner) store(ctx context.Context, action models.Action, rc RunContext, result ActionResult) {
	if r.cache == nil || !cacheable(action) {
		return
	}
	r.cache.Set(ctx, cacheKey(action, rc), result)
}

// cacheable excludes webhook actions (externally observable side effects) and
// the cheap in-process action types.
func cacheable(action models.Action) bool {
	switch action.Type {
	case models.ActionTypeCode, models.ActionTypeUnitTest, models.ActionTypeIOTest, models.ActionTypeDatabase:
		return true
	default:
		return false
	}
}

// latestScore picks the binding for `score`: the most recent sub-score, since
// score expressions typically refine the preceding test action's result.
func latestScore(rc RunContext) float64 {
	if len(rc.Scores) == 0 {
		return 0
	}
	return rc.Scores[len(rc.Scores)-1]
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// normalizeBinding converts arbitrary data into sandbox-friendly values via a
// JSON round trip. Unmarshalable data binds as nil.
func normalizeBinding(data interface{}) interface{} {
	if data == nil {
		return nil
	}
	switch data.(type) {
	case bool, float64, int, string, []string, []float64, []interface{}, map[string]interface{}:
		return data
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil
	}
	return normalized
}

func parseJSON(s string) (interface{}, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	var data interface{}
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return nil, false
	}
	return data, true
}

func appendOutput(log []string, stdout, stderr string) []string {
	if out := strings.TrimSpace(stdout); out != "" {
		log = append(log, out)
	}
	if errOut := strings.TrimSpace(stderr); errOut != "" {
		log = append(log, errOut)
	}
	return log
}
