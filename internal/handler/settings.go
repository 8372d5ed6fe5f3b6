package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/service"
	"github.com/bananaslides/deckwizard/pkg/response"
)

type SettingsHandler struct {
	service   *service.SettingsService
	validator *validator.Validate
}

func NewSettingsHandler(svc *service.SettingsService, v *validator.Validate) *SettingsHandler {
	return &SettingsHandler{
		service:   svc,
		validator: v,
	}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := h.service.Get(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, settings)
}

// Update handles PUT /api/settings
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateSettingsRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	settings, err := h.service.Update(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, settings)
}

// Reset handles POST /api/settings/reset
func (h *SettingsHandler) Reset(c *fiber.Ctx) error {
	settings, err := h.service.Reset(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, settings)
}

// Verify handles POST /api/settings/verify
func (h *SettingsHandler) Verify(c *fiber.Ctx) error {
	result, err := h.service.Verify(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Brand handles GET /api/settings/brand
func (h *SettingsHandler) Brand(c *fiber.Ctx) error {
	brand, err := h.service.Brand(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, brand)
}

// VerifyAdmin handles POST /api/settings/brand/verify
func (h *SettingsHandler) VerifyAdmin(c *fiber.Ctx) error {
	var req model.AdminVerifyRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	ok, err := h.service.VerifyAdmin(c.Context(), req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"valid": ok})
}

// UpdateBrand handles PUT /api/settings/brand
func (h *SettingsHandler) UpdateBrand(c *fiber.Ctx) error {
	var req model.UpdateBrandRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	brand, err := h.service.UpdateBrand(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, brand)
}
