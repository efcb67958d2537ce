package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

func newSchemeFixture(t *testing.T) (GradingSchemeService, repository.GradingSchemeRepository) {
	t.Helper()

	db := setupServiceDB(t)
	repo := repository.NewGradingSchemeRepository(db)
	service := NewGradingSchemeService(repo, sandbox.NewLuaEvaluator(sandbox.Config{}), validator.New(), zerolog.Nop())
	return service, repo
}

func TestGradingSchemeCreateRejectsBrokenCode(t *testing.T) {
	service, _ := newSchemeFixture(t)

	_, err := service.Create(context.Background(), dto.GradingSchemeCreateRequest{
		OrganizationID: 1,
		Name:           "broken",
		Code:           `return iff score`,
	})
	require.ErrorIs(t, err, ErrSchemeInvalid)
}

func TestGradingSchemeCreateAndSetDefault(t *testing.T) {
	service, repo := newSchemeFixture(t)

	first, err := service.Create(context.Background(), dto.GradingSchemeCreateRequest{
		OrganizationID: 1,
		Name:           "pass/fail",
		Code:           `if score >= 55 then return "pass" end return "fail"`,
		IsDefault:      true,
	})
	require.NoError(t, err)
	require.True(t, first.IsDefault)

	second, err := service.Create(context.Background(), dto.GradingSchemeCreateRequest{
		OrganizationID: 1,
		Name:           "letters",
		Code:           `return "A"`,
		IsDefault:      true,
	})
	require.NoError(t, err)
	require.True(t, second.IsDefault)

	// Only one default per organization survives.
	current, err := repo.GetDefault(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)
}

func TestGradingSchemeUpdateValidatesNewCode(t *testing.T) {
	service, _ := newSchemeFixture(t)

	created, err := service.Create(context.Background(), dto.GradingSchemeCreateRequest{
		OrganizationID: 1,
		Name:           "pass/fail",
		Code:           `return "pass"`,
	})
	require.NoError(t, err)

	broken := `if score then return`
	_, err = service.Update(context.Background(), created.ID, dto.GradingSchemeUpdateRequest{Code: &broken})
	require.ErrorIs(t, err, ErrSchemeInvalid)

	valid := `return "ok"`
	updated, err := service.Update(context.Background(), created.ID, dto.GradingSchemeUpdateRequest{Code: &valid})
	require.NoError(t, err)
	require.Equal(t, valid, updated.Code)
}

func TestGradingSchemeResetDefaults(t *testing.T) {
	service, repo := newSchemeFixture(t)

	_, err := service.Create(context.Background(), dto.GradingSchemeCreateRequest{
		OrganizationID: 1,
		Name:           "custom",
		Code:           `return "x"`,
	})
	require.NoError(t, err)

	schemes, err := service.ResetDefaults(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, schemes, 3)

	stored, err := repo.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	names := map[string]bool{}
	for _, scheme := range stored {
		names[scheme.Name] = true
	}
	require.True(t, names[models.SchemeScoreAsGrade])
	require.True(t, names[models.SchemePassFail])
	require.True(t, names[models.SchemeLetterGrade])

	current, err := repo.GetDefault(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.SchemeScoreAsGrade, current.Name)
}

func TestGradingSchemeGetUnknown(t *testing.T) {
	service, _ := newSchemeFixture(t)

	_, err := service.Get(context.Background(), 9)
	require.ErrorIs(t, err, ErrSchemeNotFound)
}
