package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

var (
	evalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "edugraph",
		Subsystem: "sandbox",
		Name:      "eval_duration_seconds",
		Help:      "Duration of sandboxed expression evaluations",
		Buckets:   prometheus.DefBuckets,
	})

	evalTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edugraph",
		Subsystem: "sandbox",
		Name:      "eval_timeouts_total",
		Help:      "Number of evaluations that hit the timeout",
	})

	evalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edugraph",
		Subsystem: "sandbox",
		Name:      "eval_failures_total",
		Help:      "Number of evaluations that raised an error",
	})
)

// EvalError describes a failed evaluation: a syntax error, a runtime error or
// a timeout inside the user expression. It never wraps host-process faults.
type EvalError struct {
	Message string
	Timeout bool
}

func (e *EvalError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("expression timed out: %s", e.Message)
	}
	return fmt.Sprintf("expression failed: %s", e.Message)
}

// AsEvalError unwraps err into an EvalError when possible.
func AsEvalError(err error) (*EvalError, bool) {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr, true
	}
	return nil, false
}

// Evaluator runs short, untrusted, user-authored expressions against named
// bindings and returns the expression's single result value.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, bindings map[string]interface{}) (interface{}, error)
}

// Config groups evaluator configuration values.
type Config struct {
	// Timeout bounds one evaluation regardless of the caller's context.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// LuaEvaluator evaluates expressions in an isolated Lua state with no
// filesystem, network or process access. Identical code and bindings always
// produce identical results.
type LuaEvaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewLuaEvaluator constructs the evaluator. A zero timeout defaults to two seconds.
func NewLuaEvaluator(cfg Config) *LuaEvaluator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &LuaEvaluator{
		timeout: timeout,
		logger:  cfg.Logger.With().Str("component", "sandbox").Logger(),
	}
}

// Evaluate runs the expression body with the bindings exposed as globals.
// The evaluator enforces its own wall-clock timeout so a runaway expression
// cannot block the caller past the configured bound.
func (e *LuaEvaluator) Evaluate(ctx context.Context, code string, bindings map[string]interface{}) (interface{}, error) {
	start := time.Now()
	defer func() {
		evalDuration.Observe(time.Since(start).Seconds())
	}()

	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer state.Close()

	openRestrictedLibs(state)

	for name, value := range bindings {
		state.SetGlobal(name, toLValue(state, value))
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	state.SetContext(evalCtx)

	if err := state.DoString(code); err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			evalTimeouts.Inc()
			return nil, &EvalError{Message: err.Error(), Timeout: true}
		}
		evalFailures.Inc()
		e.logger.Debug().Err(err).Msg("expression evaluation failed")
		return nil, &EvalError{Message: err.Error()}
	}

	if state.GetTop() == 0 {
		return nil, nil
	}

	return fromLValue(state.Get(-1)), nil
}

// openRestrictedLibs loads the base, table, string and math libraries and then
// removes every function that reaches outside the interpreter.
func openRestrictedLibs(state *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		state.Push(state.NewFunction(lib.fn))
		state.Push(lua.LString(lib.name))
		state.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "print", "collectgarbage"} {
		state.SetGlobal(name, lua.LNil)
	}

	// Randomness would break re-grading determinism.
	if mathTable, ok := state.GetGlobal(lua.MathLibName).(*lua.LTable); ok {
		state.SetField(mathTable, "random", lua.LNil)
		state.SetField(mathTable, "randomseed", lua.LNil)
	}
}

func toLValue(state *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []float64:
		table := state.NewTable()
		for _, item := range v {
			table.Append(lua.LNumber(item))
		}
		return table
	case []string:
		table := state.NewTable()
		for _, item := range v {
			table.Append(lua.LString(item))
		}
		return table
	case []interface{}:
		table := state.NewTable()
		for _, item := range v {
			table.Append(toLValue(state, item))
		}
		return table
	case map[string]interface{}:
		table := state.NewTable()
		for key, item := range v {
			state.SetField(table, key, toLValue(state, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

func fromLValue(value lua.LValue) interface{} {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if v.Len() > 0 {
			items := make([]interface{}, 0, v.Len())
			for i := 1; i <= v.Len(); i++ {
				items = append(items, fromLValue(v.RawGetInt(i)))
			}
			return items
		}
		result := make(map[string]interface{})
		v.ForEach(func(key, item lua.LValue) {
			result[key.String()] = fromLValue(item)
		})
		return result
	default:
		return v.String()
	}
}
