package codexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnsupportedLanguage indicates the requested language has no profile.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ExecResult is the outcome of running student code once.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// TestCase configures one check against student code. Input/Expected drive an
// IO comparison; Code carries a unit-test snippet appended to the source.
type TestCase struct {
	Name     string `json:"name"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Code     string `json:"code"`
}

// TestResult reports one test case outcome.
type TestResult struct {
	Name   string
	Passed bool
	Log    string
}

// Client is the execution-service boundary the grading pipeline talks to.
// Failures are reported in the result, never thrown past this interface.
type Client interface {
	ExecuteCode(ctx context.Context, language, code, input string) (ExecResult, error)
	RunTests(ctx context.Context, language, code string, tests []TestCase) ([]TestResult, error)
}

type languageProfile struct {
	Image    string
	FileName string
	RunCmd   string
}

// ClientConfig groups execution client configuration values.
type ClientConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int
	CPUShares     int
	WorkspaceRoot string
}

// DockerClient runs code and tests through a container Executor.
type DockerClient struct {
	executor Executor
	logger   zerolog.Logger
	cfg      ClientConfig
	profiles map[string]languageProfile
}

// NewDockerClient constructs the execution client with the built-in language profiles.
func NewDockerClient(executor Executor, logger zerolog.Logger, cfg ClientConfig) *DockerClient {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	return &DockerClient{
		executor: executor,
		logger:   logger.With().Str("component", "codexec_client").Logger(),
		cfg:      cfg,
		profiles: map[string]languageProfile{
			"python": {
				Image:    "python:3.11-alpine",
				FileName: "main.py",
				RunCmd:   "python main.py",
			},
			"javascript": {
				Image:    "node:20-alpine",
				FileName: "main.js",
				RunCmd:   "node main.js",
			},
			"go": {
				Image:    "golang:1.22-alpine",
				FileName: "main.go",
				RunCmd:   "go run main.go",
			},
		},
	}
}

// ExecuteCode runs the code once, feeding input on stdin when provided.
func (c *DockerClient) ExecuteCode(ctx context.Context, language, code, input string) (ExecResult, error) {
	profile, ok := c.profile(language)
	if !ok {
		return ExecResult{}, ErrUnsupportedLanguage
	}

	return c.runOnce(ctx, profile, code, input)
}

// RunTests evaluates every configured test case against the code. IO cases run
// the program with the case input and compare trimmed stdout; unit cases append
// the snippet to the source and pass on a zero exit status.
func (c *DockerClient) RunTests(ctx context.Context, language, code string, tests []TestCase) ([]TestResult, error) {
	profile, ok := c.profile(language)
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	results := make([]TestResult, 0, len(tests))
	for i, test := range tests {
		name := test.Name
		if name == "" {
			name = fmt.Sprintf("test %d", i+1)
		}

		source := code
		if test.Code != "" {
			source = code + "\n" + test.Code
		}

		run, err := c.runOnce(ctx, profile, source, test.Input)
		result := TestResult{Name: name, Log: combineOutput(run.Stdout, run.Stderr)}

		switch {
		case err != nil && run.TimedOut:
			result.Log = appendLine(result.Log, "test timed out")
		case err != nil:
			result.Log = appendLine(result.Log, err.Error())
		case test.Code != "":
			result.Passed = run.ExitCode == 0
		default:
			result.Passed = run.ExitCode == 0 && strings.TrimSpace(run.Stdout) == strings.TrimSpace(test.Expected)
			if !result.Passed && run.ExitCode == 0 {
				result.Log = appendLine(result.Log, fmt.Sprintf("expected %q", strings.TrimSpace(test.Expected)))
			}
		}

		results = append(results, result)
	}

	return results, nil
}

func (c *DockerClient) runOnce(ctx context.Context, profile languageProfile, code, input string) (ExecResult, error) {
	workspace, err := os.MkdirTemp(c.cfg.WorkspaceRoot, "run-")
	if err != nil {
		return ExecResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, profile.FileName), []byte(code), 0600); err != nil {
		return ExecResult{}, fmt.Errorf("write source: %w", err)
	}

	command := profile.RunCmd
	if input != "" {
		if err := os.WriteFile(filepath.Join(workspace, "input.txt"), []byte(input), 0600); err != nil {
			return ExecResult{}, fmt.Errorf("write input: %w", err)
		}
		command = profile.RunCmd + " < input.txt"
	}

	run, err := c.executor.Run(ctx, RunRequest{
		Image:         profile.Image,
		Cmd:           []string{"sh", "-c", command},
		Timeout:       c.cfg.Timeout,
		Workspace:     workspace,
		MemoryLimitMB: int64(c.cfg.MemoryLimitMB),
		CPUShares:     int64(c.cfg.CPUShares),
	})

	result := ExecResult{
		Stdout:   run.Stdout,
		Stderr:   run.Stderr,
		ExitCode: run.ExitCode,
		TimedOut: run.TimedOut,
		Duration: run.Duration,
	}
	return result, err
}

func (c *DockerClient) profile(language string) (languageProfile, bool) {
	profile, ok := c.profiles[strings.ToLower(strings.TrimSpace(language))]
	return profile, ok
}

func combineOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	errOut := strings.TrimSpace(stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

func appendLine(log, line string) string {
	if log == "" {
		return line
	}
	return log + "\n" + line
}
