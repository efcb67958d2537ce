package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/service"
	"github.com/edugraph/edugraph-api/internal/utils"
)

// FeedbackHandler wires answer submission and feedback preview routes.
type FeedbackHandler struct {
	service service.FeedbackService
	logger  zerolog.Logger
}

// NewFeedbackHandler constructs the handler.
func NewFeedbackHandler(service service.FeedbackService, logger zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service: service,
		logger:  logger.With().Str("component", "feedback_handler").Logger(),
	}
}

// Register attaches feedback endpoints to the router group.
func (h *FeedbackHandler) Register(router fiber.Router) {
	router.Post("/answers", h.submitAnswer)
	router.Post("/preview", h.preview)
}

func (h *FeedbackHandler) submitAnswer(c *fiber.Ctx) error {
	var payload dto.AnswerSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	feedback, err := h.service.SubmitAnswer(c.Context(), studentID, userRoleFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "answer evaluated", feedback)
}

// preview lets staff dry-run a block's pipeline against arbitrary input.
func (h *FeedbackHandler) preview(c *fiber.Ctx) error {
	if !models.IsStaff(userRoleFromContext(c)) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var payload dto.FeedbackPreviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	feedback, err := h.service.Preview(c.Context(), payload, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "feedback computed", feedback)
}

func (h *FeedbackHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrSubmissionFinal):
		return utils.SendError(c, fiber.StatusConflict, "submission has already been handed in")
	case errors.Is(err, service.ErrAssignmentClosed):
		return utils.SendError(c, fiber.StatusForbidden, "assignment is past its due date")
	case errors.Is(err, service.ErrAttemptsExhausted):
		return utils.SendError(c, fiber.StatusForbidden, "no attempts left for this block")
	case errors.Is(err, service.ErrFileTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
