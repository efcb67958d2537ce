package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edugraph/edugraph-api/internal/models"
)

func TestValidateConfigAcceptsValidPayloads(t *testing.T) {
	cases := map[models.ActionType]string{
		models.ActionTypeCode:     `{"language":"python","code":"print(1)"}`,
		models.ActionTypeUnitTest: `{"language":"python","tests":[{"code":"assert f() == 1"}]}`,
		models.ActionTypeIOTest:   `{"language":"go","tests":[{"input":"1","expected":"2"}]}`,
		models.ActionTypeWebhook:  `{"url":"https://grader.example.com/check"}`,
		models.ActionTypeDatabase: `{"dialect":"sqlite","query":"SELECT * FROM users"}`,
		models.ActionTypeFeedback: `{"condition":"return data.score > 50","text":"nice"}`,
		models.ActionTypeScoring:  `{"score_expression":"return score"}`,
	}

	for actionType, config := range cases {
		require.NoError(t, ValidateConfig(actionType, []byte(config)), "type %s", actionType)
	}
}

func TestValidateConfigRejectsMissingRequiredFields(t *testing.T) {
	cases := map[models.ActionType]string{
		models.ActionTypeCode:     `{}`,
		models.ActionTypeUnitTest: `{"language":"python","tests":[]}`,
		models.ActionTypeWebhook:  `{"url":"ftp://nope"}`,
		models.ActionTypeDatabase: `{"dialect":"oracle","query":"SELECT 1"}`,
		models.ActionTypeFeedback: `{"text":"orphan"}`,
		models.ActionTypeScoring:  `{}`,
	}

	for actionType, config := range cases {
		require.Error(t, ValidateConfig(actionType, []byte(config)), "type %s", actionType)
	}
}

func TestValidateConfigRejectsUnknownType(t *testing.T) {
	require.Error(t, ValidateConfig(models.ActionType("mystery"), []byte(`{}`)))
}

func TestValidateConfigRejectsMalformedJSON(t *testing.T) {
	require.Error(t, ValidateConfig(models.ActionTypeCode, []byte(`{"language":`)))
}
