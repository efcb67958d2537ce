package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
)

type recordingRecompute struct {
	assignments []uint
}

func (r *recordingRecompute) RecomputeGrades(ctx context.Context, assignmentID uint) (dto.RecomputeResponse, error) {
	r.assignments = append(r.assignments, assignmentID)
	return dto.RecomputeResponse{AssignmentID: assignmentID}, nil
}

func newAssignmentFixture(t *testing.T) (AssignmentService, *recordingRecompute, *gorm.DB) {
	t.Helper()

	db := setupServiceDB(t)
	recompute := &recordingRecompute{}
	service := NewAssignmentService(
		repository.NewAssignmentRepository(db),
		repository.NewBlockRepository(db),
		repository.NewActionRepository(db),
		recompute,
		validator.New(),
		zerolog.Nop(),
	)
	return service, recompute, db
}

func TestAssignmentCreateAndGet(t *testing.T) {
	service, _, _ := newAssignmentFixture(t)

	created, err := service.Create(context.Background(), dto.AssignmentCreateRequest{
		OrganizationID: 1,
		Title:          "Databases 101",
		MaxAttempts:    3,
	})
	require.NoError(t, err)

	fetched, err := service.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Databases 101", fetched.Title)
	require.Equal(t, 3, fetched.MaxAttempts)
}

func TestAssignmentUpdateSchemeTriggersRecompute(t *testing.T) {
	service, recompute, db := newAssignmentFixture(t)

	scheme := models.GradingScheme{OrganizationID: 1, Name: "letters", Code: `return "A"`}
	require.NoError(t, db.Create(&scheme).Error)

	created, err := service.Create(context.Background(), dto.AssignmentCreateRequest{OrganizationID: 1, Title: "Quiz"})
	require.NoError(t, err)

	title := "Renamed"
	_, err = service.Update(context.Background(), created.ID, dto.AssignmentUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Empty(t, recompute.assignments)

	_, err = service.Update(context.Background(), created.ID, dto.AssignmentUpdateRequest{GradingSchemeID: &scheme.ID})
	require.NoError(t, err)
	require.Equal(t, []uint{created.ID}, recompute.assignments)
}

func TestBlockWeightChangeTriggersRecompute(t *testing.T) {
	service, recompute, _ := newAssignmentFixture(t)

	assignment, err := service.Create(context.Background(), dto.AssignmentCreateRequest{OrganizationID: 1, Title: "Quiz"})
	require.NoError(t, err)

	block, err := service.AddBlock(context.Background(), assignment.ID, dto.BlockCreateRequest{
		Type:        models.BlockTypeOpenQuestion,
		Weight:      1,
		Granularity: 100,
	})
	require.NoError(t, err)

	title := "Question one"
	_, err = service.UpdateBlock(context.Background(), block.ID, dto.BlockUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Empty(t, recompute.assignments)

	weight := 5
	_, err = service.UpdateBlock(context.Background(), block.ID, dto.BlockUpdateRequest{Weight: &weight})
	require.NoError(t, err)
	require.Equal(t, []uint{assignment.ID}, recompute.assignments)
}

func TestAddActionValidatesConfigAndOrders(t *testing.T) {
	service, _, db := newAssignmentFixture(t)

	assignment, err := service.Create(context.Background(), dto.AssignmentCreateRequest{OrganizationID: 1, Title: "Quiz"})
	require.NoError(t, err)

	block, err := service.AddBlock(context.Background(), assignment.ID, dto.BlockCreateRequest{
		Type:        models.BlockTypeOpenQuestion,
		Weight:      1,
		Granularity: 100,
	})
	require.NoError(t, err)

	_, err = service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   models.ActionTypeWebhook,
		Config: json.RawMessage(`{"url": "ftp://not-http"}`),
	})
	require.ErrorIs(t, err, ErrActionConfigInvalid)

	_, err = service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   "mystery",
		Config: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, ErrActionTypeUnknown)

	first, err := service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   models.ActionTypeFeedback,
		Config: json.RawMessage(`{"condition": "return true", "text": "ok"}`),
	})
	require.NoError(t, err)

	second, err := service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   models.ActionTypeScoring,
		Config: json.RawMessage(`{"score_expression": "return 100"}`),
	})
	require.NoError(t, err)

	var stored models.Block
	require.NoError(t, db.First(&stored, block.ID).Error)
	require.Equal(t, []uint{first.ID, second.ID}, []uint(stored.ActionIDs))
}

func TestDeleteActionRemovesFromOrder(t *testing.T) {
	service, _, db := newAssignmentFixture(t)

	assignment, err := service.Create(context.Background(), dto.AssignmentCreateRequest{OrganizationID: 1, Title: "Quiz"})
	require.NoError(t, err)

	block, err := service.AddBlock(context.Background(), assignment.ID, dto.BlockCreateRequest{
		Type:        models.BlockTypeOpenQuestion,
		Weight:      1,
		Granularity: 100,
	})
	require.NoError(t, err)

	action, err := service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   models.ActionTypeFeedback,
		Config: json.RawMessage(`{"condition": "return true", "text": "ok"}`),
	})
	require.NoError(t, err)

	require.NoError(t, service.DeleteAction(context.Background(), action.ID))

	var stored models.Block
	require.NoError(t, db.First(&stored, block.ID).Error)
	require.Empty(t, []uint(stored.ActionIDs))
}

func TestUpdateActionRevalidatesConfig(t *testing.T) {
	service, _, _ := newAssignmentFixture(t)

	assignment, err := service.Create(context.Background(), dto.AssignmentCreateRequest{OrganizationID: 1, Title: "Quiz"})
	require.NoError(t, err)

	block, err := service.AddBlock(context.Background(), assignment.ID, dto.BlockCreateRequest{
		Type:        models.BlockTypeOpenQuestion,
		Weight:      1,
		Granularity: 100,
	})
	require.NoError(t, err)

	action, err := service.AddAction(context.Background(), block.ID, dto.ActionCreateRequest{
		Type:   models.ActionTypeWebhook,
		Config: json.RawMessage(`{"url": "https://grader.example.com"}`),
	})
	require.NoError(t, err)

	_, err = service.UpdateAction(context.Background(), action.ID, dto.ActionUpdateRequest{
		Config: json.RawMessage(`{"url": 5}`),
	})
	require.ErrorIs(t, err, ErrActionConfigInvalid)
}

func TestGetUnknownAssignment(t *testing.T) {
	service, _, _ := newAssignmentFixture(t)

	_, err := service.Get(context.Background(), 77)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
