package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/service"
	"github.com/edugraph/edugraph-api/internal/utils"
)

// GradingSchemeHandler wires grading scheme management routes.
type GradingSchemeHandler struct {
	service service.GradingSchemeService
	logger  zerolog.Logger
}

// NewGradingSchemeHandler constructs the handler.
func NewGradingSchemeHandler(service service.GradingSchemeService, logger zerolog.Logger) *GradingSchemeHandler {
	return &GradingSchemeHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_scheme_handler").Logger(),
	}
}

// Register attaches grading scheme endpoints to the router group.
func (h *GradingSchemeHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/default", h.setDefault)
	router.Post("/reset", h.resetDefaults)
}

func (h *GradingSchemeHandler) list(c *fiber.Ctx) error {
	organizationID, err := parseUintQuery(c, "organization_id")
	if err != nil || organizationID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "organization_id required")
	}

	schemes, err := h.service.List(c.Context(), organizationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading schemes retrieved", schemes)
}

func (h *GradingSchemeHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	scheme, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading scheme retrieved", scheme)
}

func (h *GradingSchemeHandler) create(c *fiber.Ctx) error {
	var payload dto.GradingSchemeCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	scheme, err := h.service.Create(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "grading scheme created", scheme)
}

func (h *GradingSchemeHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradingSchemeUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	scheme, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading scheme updated", scheme)
}

func (h *GradingSchemeHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading scheme deleted", nil)
}

func (h *GradingSchemeHandler) setDefault(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.SetDefault(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "default grading scheme set", nil)
}

func (h *GradingSchemeHandler) resetDefaults(c *fiber.Ctx) error {
	organizationID, err := parseUintQuery(c, "organization_id")
	if err != nil || organizationID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "organization_id required")
	}

	schemes, err := h.service.ResetDefaults(c.Context(), organizationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading schemes reset", schemes)
}

func (h *GradingSchemeHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSchemeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "grading scheme not found")
	case errors.Is(err, service.ErrSchemeInvalid):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
