package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

type fakeSchemeRepo struct {
	schemes map[uint]models.GradingScheme
	byOrg   map[uint]models.GradingScheme
}

func (f *fakeSchemeRepo) ListByOrganization(ctx context.Context, organizationID uint) ([]models.GradingScheme, error) {
	var out []models.GradingScheme
	for _, scheme := range f.schemes {
		if scheme.OrganizationID == organizationID {
			out = append(out, scheme)
		}
	}
	return out, nil
}

func (f *fakeSchemeRepo) GetByID(ctx context.Context, id uint) (models.GradingScheme, error) {
	scheme, ok := f.schemes[id]
	if !ok {
		return models.GradingScheme{}, gorm.ErrRecordNotFound
	}
	return scheme, nil
}

func (f *fakeSchemeRepo) GetDefault(ctx context.Context, organizationID uint) (models.GradingScheme, error) {
	scheme, ok := f.byOrg[organizationID]
	if !ok {
		return models.GradingScheme{}, gorm.ErrRecordNotFound
	}
	return scheme, nil
}

func (f *fakeSchemeRepo) Create(ctx context.Context, scheme *models.GradingScheme) error { return nil }
func (f *fakeSchemeRepo) Update(ctx context.Context, scheme *models.GradingScheme) error { return nil }
func (f *fakeSchemeRepo) Delete(ctx context.Context, id uint) error                      { return nil }
func (f *fakeSchemeRepo) SetDefault(ctx context.Context, organizationID, schemeID uint) error {
	return nil
}
func (f *fakeSchemeRepo) ReplaceForOrganization(ctx context.Context, organizationID uint, schemes []models.GradingScheme) error {
	return nil
}

func newGradingFixture(repo *fakeSchemeRepo) GradingService {
	return NewGradingService(repo, sandbox.NewLuaEvaluator(sandbox.Config{}), zerolog.Nop())
}

func weightedAssignment() models.Assignment {
	return models.Assignment{
		ID:             1,
		OrganizationID: 1,
		Blocks: []models.Block{
			{ID: 10, Type: models.BlockTypeOpenQuestion, Weight: 1},
			{ID: 11, Type: models.BlockTypeCodeQuestion, Weight: 3},
			{ID: 12, Type: models.BlockTypeText},
			{ID: 13, Type: models.BlockTypeOpenQuestion, Weight: 2},
		},
	}
}

func TestComputeScoreWeightsBlocks(t *testing.T) {
	service := newGradingFixture(&fakeSchemeRepo{})

	submission := models.Submission{Feedback: []models.BlockFeedback{
		{BlockID: 10, Score: 100},
		{BlockID: 11, Score: 50},
	}}

	score := service.ComputeScore(submission, weightedAssignment())
	require.NotNil(t, score)
	// (100*1 + 50*3) / 4; block 13 has no feedback and stays out entirely.
	require.InDelta(t, 62.5, *score, 0.001)
}

func TestComputeScoreNilWithoutFeedback(t *testing.T) {
	service := newGradingFixture(&fakeSchemeRepo{})

	score := service.ComputeScore(models.Submission{}, weightedAssignment())
	require.Nil(t, score)
}

func TestComputeScoreCountsErrorFeedback(t *testing.T) {
	service := newGradingFixture(&fakeSchemeRepo{})

	submission := models.Submission{Feedback: []models.BlockFeedback{
		{BlockID: 10, Score: 0, Code: 2},
	}}

	score := service.ComputeScore(submission, weightedAssignment())
	require.NotNil(t, score)
	require.InDelta(t, 0.0, *score, 0.001)
}

func TestComputeGradePrefersAssignmentScheme(t *testing.T) {
	repo := &fakeSchemeRepo{
		schemes: map[uint]models.GradingScheme{
			5: {ID: 5, OrganizationID: 1, Name: "strict", Code: `if score >= 80 then return "pass" end return "fail"`},
		},
		byOrg: map[uint]models.GradingScheme{
			1: {ID: 6, OrganizationID: 1, Name: "lenient", Code: `return "pass"`, IsDefault: true},
		},
	}
	service := newGradingFixture(repo)

	assignment := weightedAssignment()
	schemeID := uint(5)
	assignment.GradingSchemeID = &schemeID

	grade, err := service.ComputeGrade(context.Background(), assignment, models.Submission{}, 70)
	require.NoError(t, err)
	require.Equal(t, "fail", grade)
}

func TestComputeGradeFallsBackToOrganizationDefault(t *testing.T) {
	repo := &fakeSchemeRepo{
		schemes: map[uint]models.GradingScheme{},
		byOrg: map[uint]models.GradingScheme{
			1: {ID: 6, OrganizationID: 1, Code: `if score >= 55 then return "pass" end return "fail"`, IsDefault: true},
		},
	}
	service := newGradingFixture(repo)

	grade, err := service.ComputeGrade(context.Background(), weightedAssignment(), models.Submission{}, 60)
	require.NoError(t, err)
	require.Equal(t, "pass", grade)
}

func TestComputeGradeBuiltinFallback(t *testing.T) {
	service := newGradingFixture(&fakeSchemeRepo{schemes: map[uint]models.GradingScheme{}, byOrg: map[uint]models.GradingScheme{}})

	grade, err := service.ComputeGrade(context.Background(), weightedAssignment(), models.Submission{}, 87.5)
	require.NoError(t, err)
	require.Equal(t, "87.5", grade)
}

func TestComputeGradeFailsClosedOnBrokenScheme(t *testing.T) {
	repo := &fakeSchemeRepo{
		schemes: map[uint]models.GradingScheme{},
		byOrg: map[uint]models.GradingScheme{
			1: {ID: 6, OrganizationID: 1, Code: `return nonsense(`, IsDefault: true},
		},
	}
	service := newGradingFixture(repo)

	_, err := service.ComputeGrade(context.Background(), weightedAssignment(), models.Submission{}, 80)
	require.ErrorIs(t, err, ErrGradeComputation)
}

func TestComputeGradeBindsQuestionScores(t *testing.T) {
	repo := &fakeSchemeRepo{
		schemes: map[uint]models.GradingScheme{},
		byOrg: map[uint]models.GradingScheme{
			1: {ID: 6, OrganizationID: 1, Code: `return tostring(#questions)`, IsDefault: true},
		},
	}
	service := newGradingFixture(repo)

	submission := models.Submission{Feedback: []models.BlockFeedback{
		{BlockID: 10, Score: 100},
		{BlockID: 13, Score: 40},
	}}

	grade, err := service.ComputeGrade(context.Background(), weightedAssignment(), submission, 76)
	require.NoError(t, err)
	require.Equal(t, "2", grade)
}
