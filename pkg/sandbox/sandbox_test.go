package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(timeout time.Duration) *LuaEvaluator {
	return NewLuaEvaluator(Config{Timeout: timeout, Logger: zerolog.Nop()})
}

func TestEvaluateReturnsExpressionValue(t *testing.T) {
	evaluator := newTestEvaluator(0)

	result, err := evaluator.Evaluate(context.Background(), `if score <= 50 then return "F" end return "P"`, map[string]interface{}{"score": 40.0})
	require.NoError(t, err)
	require.Equal(t, "F", result)

	result, err = evaluator.Evaluate(context.Background(), `if score <= 50 then return "F" end return "P"`, map[string]interface{}{"score": 60.0})
	require.NoError(t, err)
	require.Equal(t, "P", result)
}

func TestEvaluateQuestionsBinding(t *testing.T) {
	evaluator := newTestEvaluator(0)

	result, err := evaluator.Evaluate(context.Background(), `return questions[1] + questions[2]`, map[string]interface{}{
		"questions": []float64{40, 60},
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, result)
}

func TestEvaluateDeterministic(t *testing.T) {
	evaluator := newTestEvaluator(0)
	code := `local total = 0
for i = 1, 10 do total = total + i end
return total * score`
	bindings := map[string]interface{}{"score": 2.0}

	first, err := evaluator.Evaluate(context.Background(), code, bindings)
	require.NoError(t, err)
	second, err := evaluator.Evaluate(context.Background(), code, bindings)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEvaluateSyntaxErrorIsEvalError(t *testing.T) {
	evaluator := newTestEvaluator(0)

	_, err := evaluator.Evaluate(context.Background(), `return ((`, nil)
	require.Error(t, err)
	evalErr, ok := AsEvalError(err)
	require.True(t, ok)
	require.False(t, evalErr.Timeout)
}

func TestEvaluateRuntimeErrorIsEvalError(t *testing.T) {
	evaluator := newTestEvaluator(0)

	_, err := evaluator.Evaluate(context.Background(), `error("boom")`, nil)
	require.Error(t, err)
	_, ok := AsEvalError(err)
	require.True(t, ok)
}

func TestEvaluateTimeout(t *testing.T) {
	evaluator := newTestEvaluator(50 * time.Millisecond)

	_, err := evaluator.Evaluate(context.Background(), `while true do end`, nil)
	require.Error(t, err)
	evalErr, ok := AsEvalError(err)
	require.True(t, ok)
	require.True(t, evalErr.Timeout)
}

func TestEvaluateAmbientAccessRemoved(t *testing.T) {
	evaluator := newTestEvaluator(0)

	for _, code := range []string{
		`return dofile("/etc/passwd")`,
		`return loadfile("x")`,
		`return require("os")`,
		`return math.random()`,
	} {
		_, err := evaluator.Evaluate(context.Background(), code, nil)
		require.Error(t, err, "expected %q to fail", code)
	}
}

func TestEvaluateNoReturnYieldsNil(t *testing.T) {
	evaluator := newTestEvaluator(0)

	result, err := evaluator.Evaluate(context.Background(), `local x = 1`, nil)
	require.NoError(t, err)
	require.Nil(t, result)
}
