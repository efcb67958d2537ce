package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/service"
	"github.com/edugraph/edugraph-api/internal/utils"
)

// SubmissionHandler wires submission review routes.
type SubmissionHandler struct {
	submissions service.SubmissionService
	feedback    service.FeedbackService
	recompute   service.RecomputeService
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions service.SubmissionService, feedback service.FeedbackService, recompute service.RecomputeService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		feedback:    feedback,
		recompute:   recompute,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the router group. Staff-only
// routes are expected to sit behind the RBAC middleware.
func (h *SubmissionHandler) Register(router fiber.Router, staff fiber.Router) {
	router.Get("/own", h.getOwn)
	router.Get("/:id", h.get)
	router.Post("/:id/finalize", h.finalize)

	staff.Get("", h.list)
	staff.Post("/:id/approve", h.approve)
	staff.Patch("/:id/blocks/:blockId/score", h.overrideScore)
	staff.Post("/recompute/:assignmentId", h.recomputeGrades)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintQuery(c, "assignment_id")
	if err != nil || assignmentID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "assignment_id required")
	}

	submissions, err := h.submissions.ListByAssignment(c.Context(), assignmentID, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.submissions.Get(c.Context(), id, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) getOwn(c *fiber.Ctx) error {
	assignmentID, err := parseUintQuery(c, "assignment_id")
	if err != nil || assignmentID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "assignment_id required")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	submission, err := h.submissions.GetOwn(c.Context(), assignmentID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) finalize(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	submission, err := h.feedback.Finalize(c.Context(), id, studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission handed in", submission)
}

func (h *SubmissionHandler) approve(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.submissions.Approve(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission approved", submission)
}

func (h *SubmissionHandler) overrideScore(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	blockID, err := parseUintParam(c, "blockId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ScoreOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.feedback.OverrideScore(c.Context(), id, blockID, payload, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "score overridden", submission)
}

func (h *SubmissionHandler) recomputeGrades(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.recompute.RecomputeGrades(c.Context(), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grades recomputed", summary)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrSubmissionFinal):
		return utils.SendError(c, fiber.StatusConflict, "submission has already been handed in")
	case errors.Is(err, service.ErrSubmissionNotHandedIn):
		return utils.SendError(c, fiber.StatusConflict, "submission has not been handed in")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
