package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/service"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/tracker"
	"github.com/bananaslides/deckwizard/internal/wizard"
	"github.com/bananaslides/deckwizard/pkg/response"
)

type ExportHandler struct {
	exports   *service.ExportService
	tracker   *tracker.Tracker
	sessions  *session.Registry
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, t *tracker.Tracker, sessions *session.Registry, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		exports:   svc,
		tracker:   t,
		sessions:  sessions,
		validator: v,
	}
}

// Start handles POST /api/exports
func (h *ExportHandler) Start(c *fiber.Ctx) error {
	var req model.ExportRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return respondError(c, err)
	}

	sess := currentSession(c, h.sessions)
	p := sess.Store.Current()
	if p == nil {
		return respondError(c, store.ErrNoProject)
	}
	pageIDs := req.PageIDs
	if len(pageIDs) == 0 {
		pageIDs = sess.Wizard.SelectedPageIDsForExport()
	}
	if gate := wizard.CanExport(p, len(pageIDs) > 0, pageIDs); !gate.Allowed {
		return respondError(c, &wizard.StepBlockedError{Step: wizard.StepSlidePreview, Reason: gate.Reason})
	}

	task, err := h.exports.Export(c.Context(), p.ID, req.Type, pageIDs)
	if err != nil {
		return respondError(c, err)
	}
	if task.Status == model.ExportStatusProcessing {
		return response.Accepted(c, task)
	}
	return response.Created(c, task)
}

// List handles GET /api/exports?projectId=
func (h *ExportHandler) List(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		if p := currentSession(c, h.sessions).Store.Current(); p != nil {
			projectID = p.ID
		}
	}
	if projectID == "" {
		return response.OK(c, fiber.Map{"tasks": []model.ExportTask{}})
	}
	return response.OK(c, fiber.Map{"tasks": h.tracker.Tasks(projectID)})
}

// Get handles GET /api/exports/:id
func (h *ExportHandler) Get(c *fiber.Ctx) error {
	task, ok := h.tracker.Task(c.Params("id"))
	if !ok {
		return respondError(c, tracker.ErrTaskNotFound)
	}
	return response.OK(c, task)
}

// Remove handles DELETE /api/exports/:id
func (h *ExportHandler) Remove(c *fiber.Ctx) error {
	if err := h.tracker.RemoveTask(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return response.NoContent(c)
}

// ClearFinished handles POST /api/exports/clear?projectId=
func (h *ExportHandler) ClearFinished(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		p := currentSession(c, h.sessions).Store.Current()
		if p == nil {
			return respondError(c, store.ErrNoProject)
		}
		projectID = p.ID
	}
	n, err := h.tracker.ClearFinished(c.Context(), projectID)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"removed": n})
}
