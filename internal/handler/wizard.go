package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/wizard"
	"github.com/bananaslides/deckwizard/pkg/response"
)

type WizardHandler struct {
	sessions  *session.Registry
	validator *validator.Validate
}

func NewWizardHandler(sessions *session.Registry, v *validator.Validate) *WizardHandler {
	return &WizardHandler{
		sessions:  sessions,
		validator: v,
	}
}

// State handles GET /api/wizard
func (h *WizardHandler) State(c *fiber.Ctx) error {
	return response.OK(c, currentSession(c, h.sessions).Wizard.State())
}

// Draft handles PUT /api/wizard/draft
func (h *WizardHandler) Draft(c *fiber.Ctx) error {
	var req model.DraftRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}

	w := currentSession(c, h.sessions).Wizard
	if err := w.SetDraft(wizard.Draft{CreationType: req.CreationType, Content: req.Content}); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, w.State())
}

// Template handles POST /api/wizard/template
func (h *WizardHandler) Template(c *fiber.Ctx) error {
	var req model.TemplateRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	file, err := formUpload(c, "template")
	if err != nil {
		return respondError(c, err)
	}

	w := currentSession(c, h.sessions).Wizard
	w.SelectTemplate(wizard.TemplateChoice{Style: req.TemplateStyle, File: file})
	return response.OK(c, w.State())
}

// Next handles POST /api/wizard/next
func (h *WizardHandler) Next(c *fiber.Ctx) error {
	st, err := currentSession(c, h.sessions).Wizard.Next(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, st)
}

// Previous handles POST /api/wizard/previous
func (h *WizardHandler) Previous(c *fiber.Ctx) error {
	return response.OK(c, currentSession(c, h.sessions).Wizard.Previous())
}

// Recover handles POST /api/wizard/recover
func (h *WizardHandler) Recover(c *fiber.Ctx) error {
	var req model.RecoverRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	step := wizard.StepOutlineEditor
	if req.Step != "" {
		parsed, ok := wizard.ParseStep(req.Step)
		if !ok {
			return response.ValidationError(c, "Unknown step", fiber.Map{"step": req.Step})
		}
		step = parsed
	}
	return response.OK(c, currentSession(c, h.sessions).Wizard.Recover(c.Context(), req.ProjectID, step))
}

// Resume handles POST /api/wizard/resume
func (h *WizardHandler) Resume(c *fiber.Ctx) error {
	st, err := currentSession(c, h.sessions).Wizard.ResumeLast(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, st)
}

// Reset handles POST /api/wizard/reset
func (h *WizardHandler) Reset(c *fiber.Ctx) error {
	w := currentSession(c, h.sessions).Wizard
	if err := w.Reset(c.Context()); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, w.State())
}

// Selection handles PUT /api/wizard/selection
func (h *WizardHandler) Selection(c *fiber.Ctx) error {
	var req model.SelectionRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}

	w := currentSession(c, h.sessions).Wizard
	if err := w.SetSelection(req.MultiSelect, req.PageIDs); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, w.State())
}

// UploadReference handles POST /api/wizard/reference-files
func (h *WizardHandler) UploadReference(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	upload, err := readUpload(file)
	if err != nil {
		return respondError(c, err)
	}

	ref, err := currentSession(c, h.sessions).Wizard.AttachReferenceFile(c.Context(), upload)
	if err != nil {
		return respondError(c, err)
	}
	return response.Created(c, ref)
}

// RefreshReferences handles POST /api/wizard/reference-files/refresh
func (h *WizardHandler) RefreshReferences(c *fiber.Ctx) error {
	refs, err := currentSession(c, h.sessions).Wizard.RefreshReferenceFiles(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"files": refs})
}

// DetachReference handles DELETE /api/wizard/reference-files/:fileId
func (h *WizardHandler) DetachReference(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	if err := currentSession(c, h.sessions).Wizard.DetachReferenceFile(fileID); err != nil {
		return response.NotFound(c, "Reference file not attached")
	}
	return response.NoContent(c)
}

// UploadMaterial handles POST /api/wizard/materials
func (h *WizardHandler) UploadMaterial(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	upload, err := readUpload(file)
	if err != nil {
		return respondError(c, err)
	}

	w := currentSession(c, h.sessions).Wizard
	material, err := w.AttachMaterial(c.Context(), upload)
	if err != nil {
		return respondError(c, err)
	}
	return response.Created(c, fiber.Map{"material": material, "draft": w.State().Draft})
}

// RemoveMaterial handles DELETE /api/wizard/materials?url=
func (h *WizardHandler) RemoveMaterial(c *fiber.Ctx) error {
	url := c.Query("url")
	if url == "" {
		return respondError(c, &client.ValidationError{Field: "url", Message: "url is required"})
	}
	w := currentSession(c, h.sessions).Wizard
	w.RemoveDraftImage(url)
	return response.OK(c, w.State())
}

// Templates handles GET /api/wizard/templates
func (h *WizardHandler) Templates(c *fiber.Ctx) error {
	templates, err := currentSession(c, h.sessions).Wizard.UserTemplates(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"templates": templates})
}
