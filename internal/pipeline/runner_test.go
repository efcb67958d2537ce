package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/pkg/codexec"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

type fakeExecClient struct {
	execResult  codexec.ExecResult
	execErr     error
	testResults []codexec.TestResult
	testsErr    error
	lastCode    string
	lastInput   string
}

func (f *fakeExecClient) ExecuteCode(ctx context.Context, language, code, input string) (codexec.ExecResult, error) {
	f.lastCode = code
	f.lastInput = input
	return f.execResult, f.execErr
}

func (f *fakeExecClient) RunTests(ctx context.Context, language, code string, tests []codexec.TestCase) ([]codexec.TestResult, error) {
	f.lastCode = code
	return f.testResults, f.testsErr
}

func testEvaluator() sandbox.Evaluator {
	return sandbox.NewLuaEvaluator(sandbox.Config{Logger: zerolog.Nop()})
}

func newTestRunner(exec codexec.Client) *Runner {
	return NewRunner(exec, testEvaluator(), nil, zerolog.Nop(), RunnerConfig{})
}

func action(actionType models.ActionType, config string) models.Action {
	return models.Action{ID: 1, Type: actionType, Config: datatypes.JSON(config)}
}

func TestRunCodeExecutesAnswerWhenNoTemplate(t *testing.T) {
	exec := &fakeExecClient{execResult: codexec.ExecResult{Stdout: "hello\n"}}
	runner := newTestRunner(exec)

	result := runner.Run(context.Background(), action(models.ActionTypeCode, `{"language":"python"}`),
		RunContext{Answer: []string{"print('hello')"}})

	require.Equal(t, ExitNoError, result.Code)
	require.Equal(t, "print('hello')", exec.lastCode)
	require.Contains(t, result.Log, "hello")
}

func TestRunCodeNonZeroExitMapsToCodeError(t *testing.T) {
	exec := &fakeExecClient{execResult: codexec.ExecResult{ExitCode: 1, Stderr: "SyntaxError"}}
	runner := newTestRunner(exec)

	result := runner.Run(context.Background(), action(models.ActionTypeCode, `{"language":"python"}`),
		RunContext{Answer: []string{"print("}})

	require.Equal(t, ExitCodeError, result.Code)
	require.Contains(t, result.Log, "SyntaxError")
}

func TestRunCodeTimeoutMapsToTimeout(t *testing.T) {
	exec := &fakeExecClient{execResult: codexec.ExecResult{TimedOut: true}}
	runner := newTestRunner(exec)

	result := runner.Run(context.Background(), action(models.ActionTypeCode, `{"language":"python"}`),
		RunContext{Answer: []string{"while True: pass"}})

	require.Equal(t, ExitTimeout, result.Code)
}

func TestRunCodeParsesStructuredOutput(t *testing.T) {
	exec := &fakeExecClient{execResult: codexec.ExecResult{Stdout: `{"score": 80}`}}
	runner := newTestRunner(exec)

	result := runner.Run(context.Background(), action(models.ActionTypeCode, `{"language":"python"}`),
		RunContext{Answer: []string{"..."}})

	require.Equal(t, ExitNoError, result.Code)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, 80.0, data["score"])
}

func TestRunTestsScoreIsPassRatio(t *testing.T) {
	exec := &fakeExecClient{testResults: []codexec.TestResult{
		{Name: "a", Passed: true},
		{Name: "b", Passed: true},
		{Name: "c", Passed: false, Log: "expected 3"},
		{Name: "d", Passed: false},
	}}
	runner := newTestRunner(exec)

	result := runner.Run(context.Background(),
		action(models.ActionTypeUnitTest, `{"language":"python","tests":[{"code":"x"}]}`),
		RunContext{Answer: []string{"def f(): pass"}})

	require.Equal(t, ExitNoError, result.Code)
	require.NotNil(t, result.Score)
	require.Equal(t, 50.0, *result.Score)
	require.Len(t, result.Log, 4)
}

func TestRunWebhookResponseBecomesData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"verified": true}`))
	}))
	defer server.Close()

	runner := newTestRunner(&fakeExecClient{})
	result := runner.Run(context.Background(),
		action(models.ActionTypeWebhook, `{"url":"`+server.URL+`"}`),
		RunContext{Answer: []string{"answer"}, Data: map[string]interface{}{"prior": 1}})

	require.Equal(t, ExitNoError, result.Code)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, data["verified"])
}

func TestRunWebhookNetworkErrorMapsToWebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	runner := newTestRunner(&fakeExecClient{})
	result := runner.Run(context.Background(),
		action(models.ActionTypeWebhook, `{"url":"`+server.URL+`"}`),
		RunContext{})

	require.Equal(t, ExitWebhookError, result.Code)
	require.NotEmpty(t, result.Log)
}

func TestRunWebhookNon2xxMapsToWebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	runner := newTestRunner(&fakeExecClient{})
	result := runner.Run(context.Background(),
		action(models.ActionTypeWebhook, `{"url":"`+server.URL+`"}`),
		RunContext{})

	require.Equal(t, ExitWebhookError, result.Code)
}

func TestRunFeedbackConditionMatch(t *testing.T) {
	runner := newTestRunner(&fakeExecClient{})

	result := runner.Run(context.Background(),
		action(models.ActionTypeFeedback, `{"condition":"return data.score >= 50","text":"Well done","text_on_mismatch":"Try again"}`),
		RunContext{Data: map[string]interface{}{"score": 80.0}})

	require.Equal(t, ExitNoError, result.Code)
	require.True(t, result.Matched)
	require.Equal(t, []string{"Well done"}, result.Text)
}

func TestRunFeedbackConditionMismatch(t *testing.T) {
	runner := newTestRunner(&fakeExecClient{})

	result := runner.Run(context.Background(),
		action(models.ActionTypeFeedback, `{"condition":"return data.score >= 50","text":"Well done","text_on_mismatch":"Try again"}`),
		RunContext{Data: map[string]interface{}{"score": 20.0}})

	require.False(t, result.Matched)
	require.Equal(t, []string{"Try again"}, result.Text)
}

func TestRunScoringUsesSubScores(t *testing.T) {
	runner := newTestRunner(&fakeExecClient{})

	result := runner.Run(context.Background(),
		action(models.ActionTypeScoring, `{"score_expression":"return (scores[1] + scores[2]) / 2"}`),
		RunContext{Scores: []float64{80, 40}})

	require.Equal(t, ExitNoError, result.Code)
	require.NotNil(t, result.Score)
	require.Equal(t, 60.0, *result.Score)
	require.True(t, result.Matched)
}

func TestRunScoringFailsOpenOnEvalError(t *testing.T) {
	runner := newTestRunner(&fakeExecClient{})

	result := runner.Run(context.Background(),
		action(models.ActionTypeScoring, `{"score_expression":"error('nope')"}`),
		RunContext{})

	require.Equal(t, ExitNoError, result.Code)
	require.NotNil(t, result.Score)
	require.Equal(t, 0.0, *result.Score)
	require.NotEmpty(t, result.Log)
}

func TestRunScoringClampsScore(t *testing.T) {
	runner := newTestRunner(&fakeExecClient{})

	result := runner.Run(context.Background(),
		action(models.ActionTypeScoring, `{"score_expression":"return 250"}`),
		RunContext{})

	require.Equal(t, 100.0, *result.Score)
}
