package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/service"
	"github.com/edugraph/edugraph-api/internal/utils"
)

// AssignmentHandler wires assignment authoring HTTP routes.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)

	router.Post("/:id/blocks", h.addBlock)
	router.Patch("/blocks/:blockId", h.updateBlock)
	router.Delete("/blocks/:blockId", h.deleteBlock)

	router.Post("/blocks/:blockId/actions", h.addAction)
	router.Patch("/actions/:actionId", h.updateAction)
	router.Delete("/actions/:actionId", h.deleteAction)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	organizationID, err := parseUintQuery(c, "organization_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignments, err := h.service.List(c.Context(), organizationID)
	if err != nil {
		return h.internalError(c, err)
	}
	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Create(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assignment updated", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assignment deleted", nil)
}

func (h *AssignmentHandler) addBlock(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.BlockCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	block, err := h.service.AddBlock(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "block created", block)
}

func (h *AssignmentHandler) updateBlock(c *fiber.Ctx) error {
	blockID, err := parseUintParam(c, "blockId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.BlockUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	block, err := h.service.UpdateBlock(c.Context(), blockID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "block updated", block)
}

func (h *AssignmentHandler) deleteBlock(c *fiber.Ctx) error {
	blockID, err := parseUintParam(c, "blockId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteBlock(c.Context(), blockID); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "block deleted", nil)
}

func (h *AssignmentHandler) addAction(c *fiber.Ctx) error {
	blockID, err := parseUintParam(c, "blockId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.AddAction(c.Context(), blockID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "action created", action)
}

func (h *AssignmentHandler) updateAction(c *fiber.Ctx) error {
	actionID, err := parseUintParam(c, "actionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.UpdateAction(c.Context(), actionID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "action updated", action)
}

func (h *AssignmentHandler) deleteAction(c *fiber.Ctx) error {
	actionID, err := parseUintParam(c, "actionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteAction(c.Context(), actionID); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "action deleted", nil)
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrActionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "action not found")
	case errors.Is(err, service.ErrActionConfigInvalid), errors.Is(err, service.ErrActionTypeUnknown):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *AssignmentHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
