package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/handler"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/service"
)

type mockFeedbackService struct {
	lastStudentID uint
	lastRole      string
	lastPayload   dto.AnswerSubmitRequest
	response      dto.FeedbackResponse
	err           error
}

func (m *mockFeedbackService) Preview(_ context.Context, payload dto.FeedbackPreviewRequest, role string) (dto.FeedbackResponse, error) {
	m.lastRole = role
	if m.err != nil {
		return dto.FeedbackResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockFeedbackService) SubmitAnswer(_ context.Context, studentID uint, role string, payload dto.AnswerSubmitRequest) (dto.FeedbackResponse, error) {
	m.lastStudentID = studentID
	m.lastRole = role
	m.lastPayload = payload
	if m.err != nil {
		return dto.FeedbackResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockFeedbackService) OverrideScore(_ context.Context, submissionID, blockID uint, payload dto.ScoreOverrideRequest, role string) (dto.SubmissionResponse, error) {
	return dto.SubmissionResponse{}, m.err
}

func (m *mockFeedbackService) Finalize(_ context.Context, submissionID, studentID uint) (dto.SubmissionResponse, error) {
	return dto.SubmissionResponse{}, m.err
}

func newFeedbackApp(svc service.FeedbackService, userID uint, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/feedback", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	})
	handler.NewFeedbackHandler(svc, zerolog.Nop()).Register(group)
	return app
}

func TestFeedbackHandlerSubmitAnswer(t *testing.T) {
	svc := &mockFeedbackService{response: dto.FeedbackResponse{
		BlockID:      3,
		Text:         []string{"Correct."},
		Code:         0,
		CodeMeaning:  "no error",
		Score:        100,
		AttemptCount: 1,
	}}
	app := newFeedbackApp(svc, 42, models.RoleStudent)

	payload := dto.AnswerSubmitRequest{AssignmentID: 1, BlockID: 3, Values: []string{"4"}}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback/answers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(42), svc.lastStudentID)
	require.Equal(t, models.RoleStudent, svc.lastRole)
	require.Equal(t, payload.Values, svc.lastPayload.Values)

	var response struct {
		Success bool                 `json:"success"`
		Data    dto.FeedbackResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	require.True(t, response.Success)
	require.Equal(t, 100, response.Data.Score)
}

func TestFeedbackHandlerSubmitRequiresAuth(t *testing.T) {
	app := newFeedbackApp(&mockFeedbackService{}, 0, models.RoleStudent)

	body, err := json.Marshal(dto.AnswerSubmitRequest{AssignmentID: 1, BlockID: 3, Values: []string{"4"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback/answers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestFeedbackHandlerSubmitMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrSubmissionFinal, fiber.StatusConflict},
		{service.ErrAttemptsExhausted, fiber.StatusForbidden},
		{service.ErrBlockNotFound, fiber.StatusNotFound},
	}

	for _, tc := range cases {
		app := newFeedbackApp(&mockFeedbackService{err: tc.err}, 42, models.RoleStudent)

		body, err := json.Marshal(dto.AnswerSubmitRequest{AssignmentID: 1, BlockID: 3, Values: []string{"4"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/feedback/answers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode)
	}
}

func TestFeedbackHandlerPreviewIsStaffOnly(t *testing.T) {
	app := newFeedbackApp(&mockFeedbackService{}, 42, models.RoleStudent)

	body, err := json.Marshal(dto.FeedbackPreviewRequest{BlockID: 3, Input: []string{"4"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback/preview", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
