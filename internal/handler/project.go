package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/wizard"
	"github.com/bananaslides/deckwizard/pkg/response"
)

// ProjectHandler exposes the current project of a session
type ProjectHandler struct {
	sessions  *session.Registry
	validator *validator.Validate
}

func NewProjectHandler(sessions *session.Registry, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		sessions:  sessions,
		validator: v,
	}
}

// Get handles GET /api/project
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, currentSession(c, h.sessions).Store.Snapshot())
}

// Sync handles POST /api/project/sync
func (h *ProjectHandler) Sync(c *fiber.Ctx) error {
	var req model.SyncRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	projectID := req.ProjectID
	if projectID == "" {
		p := s.Current()
		if p == nil {
			return respondError(c, store.ErrNoProject)
		}
		projectID = p.ID
	}
	if err := s.SyncProject(c.Context(), projectID); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// Settings handles PUT /api/project/settings
func (h *ProjectHandler) Settings(c *fiber.Ctx) error {
	var req model.ProjectSettings
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	if err := s.UpdateProjectSettings(c.Context(), &req); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// AddPage handles POST /api/project/pages
func (h *ProjectHandler) AddPage(c *fiber.Ctx) error {
	page, err := currentSession(c, h.sessions).Store.AddNewPage(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return response.Created(c, page)
}

// PatchPage handles PATCH /api/project/pages/:pageId
func (h *ProjectHandler) PatchPage(c *fiber.Ctx) error {
	var req model.PagePatchRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	pageID := c.Params("pageId")
	s := currentSession(c, h.sessions).Store
	patch := store.PagePatch{OutlineContent: req.OutlineContent, DescriptionContent: req.DescriptionContent}
	if err := s.UpdatePageLocal(pageID, patch); err != nil {
		return respondError(c, err)
	}
	if req.Save {
		if err := s.SavePage(c.Context(), pageID); err != nil {
			return respondError(c, err)
		}
	}
	page, _ := s.Page(pageID)
	return response.OK(c, page)
}

// SavePage handles POST /api/project/pages/:pageId/save
func (h *ProjectHandler) SavePage(c *fiber.Ctx) error {
	pageID := c.Params("pageId")
	s := currentSession(c, h.sessions).Store
	if err := s.SavePage(c.Context(), pageID); err != nil {
		return respondError(c, err)
	}
	page, _ := s.Page(pageID)
	return response.OK(c, page)
}

// DeletePage handles DELETE /api/project/pages/:pageId
func (h *ProjectHandler) DeletePage(c *fiber.Ctx) error {
	if err := currentSession(c, h.sessions).Wizard.DeletePage(c.Context(), c.Params("pageId")); err != nil {
		return respondError(c, err)
	}
	return response.NoContent(c)
}

// Reorder handles PUT /api/project/pages/order
func (h *ProjectHandler) Reorder(c *fiber.Ctx) error {
	var req model.ReorderRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	if err := s.ReorderPages(c.Context(), req.PageIDs); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// Move handles POST /api/project/pages/move
func (h *ProjectHandler) Move(c *fiber.Ctx) error {
	var req model.MovePageRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	sess := currentSession(c, h.sessions)
	if err := sess.Wizard.DragEnd(c.Context(), *req.From, *req.To); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, sess.Store.Snapshot())
}

// GenerateOutline handles POST /api/project/outline/generate
func (h *ProjectHandler) GenerateOutline(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	sess := currentSession(c, h.sessions)
	if err := sess.Wizard.ConfirmOverwrite(wizard.OverwriteOutline, nil, req.Confirm); err != nil {
		return respondError(c, err)
	}
	if err := sess.Store.GenerateOutline(c.Context()); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, sess.Store.Snapshot())
}

// RefineOutline handles POST /api/project/outline/refine
func (h *ProjectHandler) RefineOutline(c *fiber.Ctx) error {
	var req model.RefineRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	if err := s.RefineOutline(c.Context(), req.Requirement, req.PreviousRequirements); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// GenerateDescriptions handles POST /api/project/descriptions/generate
func (h *ProjectHandler) GenerateDescriptions(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	sess := currentSession(c, h.sessions)
	if err := sess.Wizard.ConfirmOverwrite(wizard.OverwriteDescriptions, nil, req.Confirm); err != nil {
		return respondError(c, err)
	}
	if err := sess.Store.GenerateDescriptions(c.Context()); err != nil {
		return respondError(c, err)
	}
	return response.Accepted(c, sess.Store.Snapshot())
}

// RefineDescriptions handles POST /api/project/descriptions/refine
func (h *ProjectHandler) RefineDescriptions(c *fiber.Ctx) error {
	var req model.RefineRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	if err := s.RefineDescriptions(c.Context(), req.Requirement, req.PreviousRequirements); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// GeneratePageDescription handles POST /api/project/pages/:pageId/description/generate
func (h *ProjectHandler) GeneratePageDescription(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	pageID := c.Params("pageId")
	s := currentSession(c, h.sessions).Store
	page, ok := s.Page(pageID)
	if !ok {
		return respondError(c, store.ErrPageNotFound)
	}
	if page.HasDescription() && !req.Confirm {
		return respondError(c, &wizard.ConfirmationRequiredError{
			Kind:    wizard.OverwriteDescriptions,
			Message: wizard.ConsequenceMessage(wizard.OverwriteDescriptions),
		})
	}
	if err := s.GeneratePageDescription(c.Context(), pageID); err != nil {
		return respondError(c, err)
	}
	page, _ = s.Page(pageID)
	return response.OK(c, page)
}

// GenerateImages handles POST /api/project/images/generate
func (h *ProjectHandler) GenerateImages(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := parseOptionalBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	sess := currentSession(c, h.sessions)
	if err := sess.Wizard.ConfirmOverwrite(wizard.OverwriteImages, req.PageIDs, req.Confirm); err != nil {
		return respondError(c, err)
	}
	if err := sess.Store.GenerateImages(c.Context(), req.PageIDs); err != nil {
		return respondError(c, err)
	}
	return response.Accepted(c, sess.Store.Snapshot())
}

// EditImage handles POST /api/project/pages/:pageId/image/edit
func (h *ProjectHandler) EditImage(c *fiber.Ctx) error {
	var req model.EditImageRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	pageID := c.Params("pageId")
	sess := currentSession(c, h.sessions)

	input := store.EditImageInput{
		Instruction:   req.Instruction,
		UseTemplate:   req.UseTemplate,
		DescImageURLs: req.DescImageURLs,
	}
	if len(input.DescImageURLs) == 0 {
		input.DescImageURLs = sess.Wizard.EditImageContext(pageID)
	}
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["contextImages"] {
			upload, err := readUpload(fh)
			if err != nil {
				return respondError(c, err)
			}
			input.ContextFiles = append(input.ContextFiles, upload)
		}
	}

	if err := sess.Store.EditPageImage(c.Context(), pageID, input); err != nil {
		return respondError(c, err)
	}
	return response.Accepted(c, sess.Store.Snapshot())
}

// ImageVersions handles GET /api/project/pages/:pageId/image/versions
func (h *ProjectHandler) ImageVersions(c *fiber.Ctx) error {
	versions, err := currentSession(c, h.sessions).Store.ImageVersions(c.Context(), c.Params("pageId"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"versions": versions})
}

// SetImageVersion handles PUT /api/project/pages/:pageId/image/version
func (h *ProjectHandler) SetImageVersion(c *fiber.Ctx) error {
	var req model.SetVersionRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}
	s := currentSession(c, h.sessions).Store
	if err := s.SetCurrentImageVersion(c.Context(), c.Params("pageId"), req.VersionID); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, s.Snapshot())
}

// Markdown handles GET /api/project/markdown/:kind
func (h *ProjectHandler) Markdown(c *fiber.Ctx) error {
	p := currentSession(c, h.sessions).Store.Current()
	if p == nil {
		return respondError(c, store.ErrNoProject)
	}
	var md string
	switch c.Params("kind") {
	case "outline":
		md = wizard.OutlineMarkdown(p)
	case "descriptions":
		md = wizard.DescriptionsMarkdown(p)
	default:
		return response.NotFound(c, "Unknown markdown kind")
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(md)
}
