package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/pkg/codexec"
)

// CodeConfig configures a code action. When Code is empty the student's
// answer is executed directly (code-question blocks).
type CodeConfig struct {
	Language        string `json:"language"`
	Code            string `json:"code"`
	GitRef          string `json:"git_ref"`
	ContinueOnError bool   `json:"continue_on_error"`
}

// TestConfig configures unit-test and IO-test actions. The student's answer
// is the code under test.
type TestConfig struct {
	Language        string             `json:"language"`
	Tests           []codexec.TestCase `json:"tests"`
	ContinueOnError bool               `json:"continue_on_error"`
}

// WebhookConfig configures a webhook action.
type WebhookConfig struct {
	URL             string `json:"url"`
	ContinueOnError bool   `json:"continue_on_error"`
}

// DatabaseConfig configures a database check action.
type DatabaseConfig struct {
	Dialect         string `json:"dialect"`
	SeedSQL         string `json:"seed_sql"`
	Query           string `json:"query"`
	ContinueOnError bool   `json:"continue_on_error"`
}

// FeedbackConfig configures a conditional-text action.
type FeedbackConfig struct {
	Condition      string `json:"condition"`
	Text           string `json:"text"`
	TextOnMismatch string `json:"text_on_mismatch"`
}

// ScoringConfig configures a scoring action.
type ScoringConfig struct {
	ScoreExpression string `json:"score_expression"`
}

var configSchemas = map[models.ActionType]string{
	models.ActionTypeCode: `{
		"type": "object",
		"properties": {
			"language": {"type": "string", "minLength": 1},
			"code": {"type": "string"},
			"git_ref": {"type": "string"},
			"continue_on_error": {"type": "boolean"}
		},
		"required": ["language"]
	}`,
	models.ActionTypeUnitTest: `{
		"type": "object",
		"properties": {
			"language": {"type": "string", "minLength": 1},
			"tests": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"name": {"type": "string"},
						"code": {"type": "string", "minLength": 1}
					},
					"required": ["code"]
				}
			},
			"continue_on_error": {"type": "boolean"}
		},
		"required": ["language", "tests"]
	}`,
	models.ActionTypeIOTest: `{
		"type": "object",
		"properties": {
			"language": {"type": "string", "minLength": 1},
			"tests": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"name": {"type": "string"},
						"input": {"type": "string"},
						"expected": {"type": "string"}
					},
					"required": ["expected"]
				}
			},
			"continue_on_error": {"type": "boolean"}
		},
		"required": ["language", "tests"]
	}`,
	models.ActionTypeWebhook: `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "pattern": "^https?://"},
			"continue_on_error": {"type": "boolean"}
		},
		"required": ["url"]
	}`,
	models.ActionTypeDatabase: `{
		"type": "object",
		"properties": {
			"dialect": {"type": "string", "enum": ["sqlite"]},
			"seed_sql": {"type": "string"},
			"query": {"type": "string", "minLength": 1},
			"continue_on_error": {"type": "boolean"}
		},
		"required": ["dialect", "query"]
	}`,
	models.ActionTypeFeedback: `{
		"type": "object",
		"properties": {
			"condition": {"type": "string", "minLength": 1},
			"text": {"type": "string"},
			"text_on_mismatch": {"type": "string"}
		},
		"required": ["condition"]
	}`,
	models.ActionTypeScoring: `{
		"type": "object",
		"properties": {
			"score_expression": {"type": "string", "minLength": 1}
		},
		"required": ["score_expression"]
	}`,
}

var compiledSchemas = compileSchemas()

func compileSchemas() map[models.ActionType]*jsonschema.Schema {
	compiled := make(map[models.ActionType]*jsonschema.Schema, len(configSchemas))
	for actionType, source := range configSchemas {
		compiler := jsonschema.NewCompiler()
		name := fmt.Sprintf("action-%s.json", actionType)
		if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
			panic(fmt.Sprintf("invalid schema for %s: %v", actionType, err))
		}
		compiled[actionType] = compiler.MustCompile(name)
	}
	return compiled
}

// ValidateConfig checks an action configuration against the schema for its
// declared type. Unknown types are rejected.
func ValidateConfig(actionType models.ActionType, config []byte) error {
	schema, ok := compiledSchemas[actionType]
	if !ok {
		return fmt.Errorf("unknown action type %q", actionType)
	}

	var payload interface{}
	if len(config) == 0 {
		config = []byte("{}")
	}
	if err := json.Unmarshal(config, &payload); err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}

	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid %s config: %w", actionType, err)
	}
	return nil
}

func decodeConfig(action models.Action, target interface{}) error {
	raw := []byte(action.Config)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s config: %w", action.Type, err)
	}
	return nil
}

// continueOnError reports whether the action is configured to let the
// pipeline keep going after a failure.
func continueOnError(action models.Action) bool {
	var flags struct {
		ContinueOnError bool `json:"continue_on_error"`
	}
	if err := json.Unmarshal([]byte(action.Config), &flags); err != nil {
		return false
	}
	return flags.ContinueOnError
}
