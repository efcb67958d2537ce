package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/pipeline"
	"github.com/edugraph/edugraph-api/internal/repository"
)

var (
	// ErrBlockNotFound indicates the block does not exist on the assignment.
	ErrBlockNotFound = errors.New("block not found")
	// ErrSubmissionNotFound indicates the requested submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionFinal indicates the submission has been handed in and no
	// longer accepts answers or feedback writes.
	ErrSubmissionFinal = errors.New("submission has already been handed in")
	// ErrAssignmentClosed indicates the assignment deadline has passed.
	ErrAssignmentClosed = errors.New("assignment is past its due date")
	// ErrAttemptsExhausted indicates the block's attempt limit is reached.
	ErrAttemptsExhausted = errors.New("no attempts left for this block")
	// ErrFileTypeNotAllowed indicates an uploaded file type the block rejects.
	ErrFileTypeNotAllowed = errors.New("file type not allowed for this block")
)

// FeedbackService evaluates answers against block action pipelines and keeps
// the per-block feedback records and the submission aggregate in sync.
type FeedbackService interface {
	// Preview computes feedback for an input without persisting anything.
	Preview(ctx context.Context, payload dto.FeedbackPreviewRequest, role string) (dto.FeedbackResponse, error)
	// SubmitAnswer stores the answer, evaluates it and merges the resulting
	// feedback into the student's submission, creating the submission on
	// first contact.
	SubmitAnswer(ctx context.Context, studentID uint, role string, payload dto.AnswerSubmitRequest) (dto.FeedbackResponse, error)
	// OverrideScore replaces a block's score with a teacher-assigned one,
	// keeping the original pipeline score for the audit trail.
	OverrideScore(ctx context.Context, submissionID, blockID uint, payload dto.ScoreOverrideRequest, role string) (dto.SubmissionResponse, error)
	// Finalize hands the submission in. Further writes are rejected.
	Finalize(ctx context.Context, submissionID, studentID uint) (dto.SubmissionResponse, error)
}

type feedbackService struct {
	assignments repository.AssignmentRepository
	blocks      repository.BlockRepository
	submissions repository.SubmissionRepository
	executor    *pipeline.Executor
	grading     GradingService
	events      EventDispatcher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewFeedbackService builds a new feedback service.
func NewFeedbackService(
	assignments repository.AssignmentRepository,
	blocks repository.BlockRepository,
	submissions repository.SubmissionRepository,
	executor *pipeline.Executor,
	grading GradingService,
	events EventDispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) FeedbackService {
	return &feedbackService{
		assignments: assignments,
		blocks:      blocks,
		submissions: submissions,
		executor:    executor,
		grading:     grading,
		events:      events,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "feedback_service").Logger(),
		now:         time.Now,
	}
}

func (s *feedbackService) Preview(ctx context.Context, payload dto.FeedbackPreviewRequest, role string) (dto.FeedbackResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.FeedbackResponse{}, err
	}

	block, err := s.blocks.GetByID(ctx, payload.BlockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackResponse{}, ErrBlockNotFound
		}
		return dto.FeedbackResponse{}, err
	}

	outcome := s.evaluateBlock(ctx, block, payload.Input, role)
	return s.feedbackResponse(block.ID, outcome, 0, role), nil
}

func (s *feedbackService) SubmitAnswer(ctx context.Context, studentID uint, role string, payload dto.AnswerSubmitRequest) (dto.FeedbackResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.FeedbackResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackResponse{}, ErrAssignmentNotFound
		}
		return dto.FeedbackResponse{}, err
	}

	block, ok := findBlock(assignment, payload.BlockID)
	if !ok {
		return dto.FeedbackResponse{}, ErrBlockNotFound
	}

	staff := models.IsStaff(role)
	if !staff && assignment.IsPastDue(s.now()) {
		return dto.FeedbackResponse{}, ErrAssignmentClosed
	}

	if err := s.checkFileTypes(block, payload.FileURLs); err != nil {
		return dto.FeedbackResponse{}, err
	}

	submission, err := s.loadOrCreateSubmission(ctx, payload.AssignmentID, studentID)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}
	if submission.IsFinal() {
		return dto.FeedbackResponse{}, ErrSubmissionFinal
	}

	existing := submission.FeedbackFor(block.ID)
	if !staff && assignment.MaxAttempts > 0 && existing != nil && existing.AttemptCount >= assignment.MaxAttempts {
		return dto.FeedbackResponse{}, ErrAttemptsExhausted
	}

	values := s.sanitizeValues(block, payload.Values)
	outcome := s.evaluateBlock(ctx, block, values, role)

	answer := submission.AnswerFor(block.ID)
	if answer == nil {
		answer = &models.Answer{SubmissionID: submission.ID, BlockID: block.ID}
	}
	answer.Values = datatypes.NewJSONSlice(values)
	answer.FileURLs = datatypes.NewJSONSlice(payload.FileURLs)

	feedback := s.mergeFeedback(&submission, block.ID, outcome)
	s.aggregate(ctx, &submission, assignment)

	if err := s.submissions.SaveEvaluated(ctx, &submission, answer, feedback); err != nil {
		return dto.FeedbackResponse{}, err
	}

	s.events.Dispatch(SubjectSubmissionGraded, SubmissionGradedEvent{
		SubmissionID: submission.ID,
		BlockID:      block.ID,
		Code:         feedback.Code,
		Score:        submission.Score,
		Grade:        submission.Grade,
	})

	return s.feedbackResponse(block.ID, outcome, feedback.AttemptCount, role), nil
}

func (s *feedbackService) OverrideScore(ctx context.Context, submissionID, blockID uint, payload dto.ScoreOverrideRequest, role string) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if _, ok := findBlock(assignment, blockID); !ok {
		return dto.SubmissionResponse{}, ErrBlockNotFound
	}

	feedback := submission.FeedbackFor(blockID)
	if feedback == nil {
		submission.Feedback = append(submission.Feedback, models.BlockFeedback{
			SubmissionID: submission.ID,
			BlockID:      blockID,
		})
		feedback = &submission.Feedback[len(submission.Feedback)-1]
	}
	if feedback.OriginalScore == nil {
		original := feedback.Score
		feedback.OriginalScore = &original
	}
	feedback.Score = payload.Score
	feedback.Justification = payload.Justification

	s.aggregate(ctx, &submission, assignment)

	if err := s.submissions.SaveEvaluated(ctx, &submission, nil, feedback); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.events.Dispatch(SubjectScoreOverridden, SubmissionGradedEvent{
		SubmissionID: submission.ID,
		BlockID:      blockID,
		Code:         feedback.Code,
		Score:        submission.Score,
		Grade:        submission.Grade,
	})

	return dto.NewSubmissionResponse(submission, role), nil
}

func (s *feedbackService) Finalize(ctx context.Context, submissionID, studentID uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if submission.StudentID != studentID {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}
	if submission.IsFinal() {
		return dto.SubmissionResponse{}, ErrSubmissionFinal
	}

	now := s.now()
	submission.SubmittedAt = &now
	submission.LastActivityAt = now
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, models.RoleStudent), nil
}

// evaluateBlock runs the block's configured checks. Multiple-choice blocks
// assessed on their correct answers never hit the pipeline; they are scored
// straight from the choice definitions.
func (s *feedbackService) evaluateBlock(ctx context.Context, block models.Block, input []string, role string) pipeline.Outcome {
	if block.Type == models.BlockTypeMultipleChoice && block.AssessmentMethod != models.AssessmentCustom {
		return scoreChoices(block, input)
	}

	actions := orderedActions(block)
	outcome := s.executor.RunPipeline(ctx, actions, input, role)
	outcome.Text = s.sanitizeAll(outcome.Text)

	// A block that counts toward the grade always carries a score, even when
	// no scoring action ran.
	if block.IsAssessed() && outcome.Score == nil {
		zero := 0.0
		outcome.Score = &zero
	}
	return outcome
}

// orderedActions resolves the block's ActionIDs order array against the
// loaded actions. Ids missing on either side are dropped; actions absent
// from the order array do not run.
func orderedActions(block models.Block) []models.Action {
	byID := make(map[uint]models.Action, len(block.Actions))
	for _, action := range block.Actions {
		byID[action.ID] = action
	}

	ordered := make([]models.Action, 0, len(block.ActionIDs))
	for _, id := range block.ActionIDs {
		if action, ok := byID[id]; ok {
			ordered = append(ordered, action)
		}
	}
	return ordered
}

// scoreChoices grades a multiple-choice answer from the choice definitions.
// Input values are choice ids. Each selection contributes its correctScore or
// wrongScore and the result is the mean over the selections.
func scoreChoices(block models.Block, input []string) pipeline.Outcome {
	correct := make(map[uint]bool, len(block.Choices))
	for _, choice := range block.CorrectChoices() {
		correct[choice.ID] = true
	}
	byID := make(map[uint]models.Choice, len(block.Choices))
	for _, choice := range block.Choices {
		byID[choice.ID] = choice
	}

	var total float64
	var hits int
	for _, raw := range input {
		id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			continue
		}
		choice, ok := byID[uint(id)]
		if !ok {
			continue
		}
		if correct[choice.ID] {
			total += float64(choice.CorrectScore)
			hits++
		} else {
			total += float64(choice.WrongScore)
		}
	}

	score := 0.0
	if len(input) > 0 {
		score = total / float64(len(input))
	}

	text := fmt.Sprintf("%d of %d selected answers correct.", hits, len(input))
	if hits == len(input) && len(input) > 0 {
		text = "All selected answers correct."
	}

	return pipeline.Outcome{
		Text:  []string{text},
		Code:  pipeline.ExitNoError,
		Score: &score,
	}
}

// mergeFeedback folds a pipeline outcome into the submission's feedback list,
// updating the existing record for the block or appending a new one. The
// attempt counter covers every evaluation of the block, first one included.
func (s *feedbackService) mergeFeedback(submission *models.Submission, blockID uint, outcome pipeline.Outcome) *models.BlockFeedback {
	score := 0
	if outcome.Score != nil {
		score = int(*outcome.Score + 0.5)
	}

	feedback := submission.FeedbackFor(blockID)
	if feedback == nil {
		submission.Feedback = append(submission.Feedback, models.BlockFeedback{
			SubmissionID: submission.ID,
			BlockID:      blockID,
		})
		feedback = &submission.Feedback[len(submission.Feedback)-1]
	}

	feedback.Text = datatypes.NewJSONSlice(outcome.Text)
	feedback.Log = datatypes.NewJSONSlice(outcome.Log)
	feedback.Code = int(outcome.Code)
	feedback.Score = score
	feedback.AttemptCount++
	return feedback
}

// aggregate recomputes the submission score and grade from the feedback
// records currently on the submission. A failing grading scheme leaves the
// previous grade in place.
func (s *feedbackService) aggregate(ctx context.Context, submission *models.Submission, assignment models.Assignment) {
	submission.Score = s.grading.ComputeScore(*submission, assignment)
	submission.LastActivityAt = s.now()
	submission.CompletedBlocks = completedBlocks(*submission)

	if submission.Score == nil {
		return
	}
	grade, err := s.grading.ComputeGrade(ctx, assignment, *submission, *submission.Score)
	if err != nil {
		s.logger.Error().Err(err).
			Uint("submission_id", submission.ID).
			Msg("grade computation failed, keeping previous grade")
		return
	}
	submission.Grade = &grade
}

func completedBlocks(submission models.Submission) datatypes.JSONSlice[uint] {
	ids := make([]uint, 0, len(submission.Feedback))
	for _, feedback := range submission.Feedback {
		ids = append(ids, feedback.BlockID)
	}
	return datatypes.NewJSONSlice(ids)
}

func (s *feedbackService) loadOrCreateSubmission(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	submission = models.Submission{
		AssignmentID:   assignmentID,
		StudentID:      studentID,
		LastActivityAt: s.now(),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// checkFileTypes rejects file answers whose extension does not belong to any
// of the block's allowed MIME types.
func (s *feedbackService) checkFileTypes(block models.Block, fileURLs []string) error {
	if block.Type != models.BlockTypeFileUpload || len(block.AllowedFileTypes) == 0 {
		return nil
	}

	for _, url := range fileURLs {
		ext := strings.ToLower(path.Ext(url))
		extType := mime.TypeByExtension(ext)
		allowed := false
		for _, allowedType := range block.AllowedFileTypes {
			m := mimetype.Lookup(allowedType)
			if m == nil {
				continue
			}
			// Match on the extension's registered MIME type so alternate
			// spellings like .jpeg and .jpg resolve to the same type; the
			// canonical extension is a fallback for unregistered ones.
			if (extType != "" && m.Is(extType)) || m.Extension() == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, url)
		}
	}
	return nil
}

// sanitizeValues strips markup from free-text answers. Code and query answers
// are left untouched so legitimate operators survive.
func (s *feedbackService) sanitizeValues(block models.Block, values []string) []string {
	switch block.Type {
	case models.BlockTypeCodeQuestion, models.BlockTypeDatabase:
		return values
	}
	return s.sanitizeAll(values)
}

func (s *feedbackService) sanitizeAll(values []string) []string {
	cleaned := make([]string, len(values))
	for i, value := range values {
		cleaned[i] = s.sanitizer.Sanitize(value)
	}
	return cleaned
}

func (s *feedbackService) feedbackResponse(blockID uint, outcome pipeline.Outcome, attempts int, role string) dto.FeedbackResponse {
	score := 0
	if outcome.Score != nil {
		score = int(*outcome.Score + 0.5)
	}

	response := dto.FeedbackResponse{
		BlockID:      blockID,
		Text:         outcome.Text,
		Code:         int(outcome.Code),
		CodeMeaning:  outcome.Code.String(),
		Score:        score,
		AttemptCount: attempts,
	}
	if models.IsStaff(role) {
		response.Log = outcome.Log
	}
	return response
}

func findBlock(assignment models.Assignment, blockID uint) (models.Block, bool) {
	for _, block := range assignment.Blocks {
		if block.ID == blockID {
			return block, true
		}
	}
	return models.Block{}, false
}
