package pipeline

// ExitCode classifies the outcome of an action or a whole pipeline run. The
// integer values are persisted on block feedback and must not be renumbered.
type ExitCode int

const (
	// ExitNoError means the action completed normally.
	ExitNoError ExitCode = 0
	// ExitCodeError means student or template code failed to execute.
	ExitCodeError ExitCode = 1
	// ExitTestFailure means configured tests could not be run.
	ExitTestFailure ExitCode = 2
	// ExitWebhookError means a webhook call failed or returned garbage.
	ExitWebhookError ExitCode = 3
	// ExitDatabaseError means a database check failed.
	ExitDatabaseError ExitCode = 4
	// ExitEvalError means a sandboxed expression failed.
	ExitEvalError ExitCode = 5
	// ExitTimeout means an external call or expression hit its deadline.
	ExitTimeout ExitCode = 6
)

// IsError reports whether the code halts a pipeline run.
func (c ExitCode) IsError() bool {
	return c != ExitNoError
}

// String returns the student-facing name of the exit code.
func (c ExitCode) String() string {
	switch c {
	case ExitNoError:
		return "ok"
	case ExitCodeError:
		return "code error"
	case ExitTestFailure:
		return "test failure"
	case ExitWebhookError:
		return "webhook error"
	case ExitDatabaseError:
		return "database error"
	case ExitEvalError:
		return "expression error"
	case ExitTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
