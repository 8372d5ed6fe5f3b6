package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/config"
	"github.com/bananaslides/deckwizard/internal/middleware"
)

// Handlers groups the route handlers mounted under /api
type Handlers struct {
	Wizard   *WizardHandler
	Project  *ProjectHandler
	Export   *ExportHandler
	Settings *SettingsHandler
}

// RegisterRoutes mounts the API. rl may be nil to disable rate limiting.
func RegisterRoutes(app *fiber.App, h Handlers, rl *middleware.RateLimiter, limits config.RateLimitConfig) {
	if rl == nil {
		rl = middleware.NewRateLimiter(nil)
	}
	generationLimit := rl.GenerationLimit(limits.GenerationPerHour)
	uploadLimit := rl.UploadLimit(limits.UploadPerHour)

	api := app.Group("/api", middleware.Session())

	// Wizard routes
	wiz := api.Group("/wizard")
	wiz.Get("/", h.Wizard.State)
	wiz.Put("/draft", h.Wizard.Draft)
	wiz.Post("/template", uploadLimit, h.Wizard.Template)
	wiz.Post("/next", h.Wizard.Next)
	wiz.Post("/previous", h.Wizard.Previous)
	wiz.Post("/recover", h.Wizard.Recover)
	wiz.Post("/resume", h.Wizard.Resume)
	wiz.Post("/reset", h.Wizard.Reset)
	wiz.Put("/selection", h.Wizard.Selection)
	wiz.Post("/reference-files", uploadLimit, h.Wizard.UploadReference)
	wiz.Post("/reference-files/refresh", h.Wizard.RefreshReferences)
	wiz.Delete("/reference-files/:fileId", h.Wizard.DetachReference)
	wiz.Post("/materials", uploadLimit, h.Wizard.UploadMaterial)
	wiz.Delete("/materials", h.Wizard.RemoveMaterial)
	wiz.Get("/templates", h.Wizard.Templates)

	// Project routes
	project := api.Group("/project")
	project.Get("/", h.Project.Get)
	project.Post("/sync", h.Project.Sync)
	project.Put("/settings", h.Project.Settings)
	project.Get("/markdown/:kind", h.Project.Markdown)
	project.Post("/pages", h.Project.AddPage)
	project.Put("/pages/order", h.Project.Reorder)
	project.Post("/pages/move", h.Project.Move)
	project.Patch("/pages/:pageId", h.Project.PatchPage)
	project.Post("/pages/:pageId/save", h.Project.SavePage)
	project.Delete("/pages/:pageId", h.Project.DeletePage)
	project.Post("/pages/:pageId/description/generate", generationLimit, h.Project.GeneratePageDescription)
	project.Post("/pages/:pageId/image/edit", generationLimit, h.Project.EditImage)
	project.Get("/pages/:pageId/image/versions", h.Project.ImageVersions)
	project.Put("/pages/:pageId/image/version", h.Project.SetImageVersion)
	project.Post("/outline/generate", generationLimit, h.Project.GenerateOutline)
	project.Post("/outline/refine", generationLimit, h.Project.RefineOutline)
	project.Post("/descriptions/generate", generationLimit, h.Project.GenerateDescriptions)
	project.Post("/descriptions/refine", generationLimit, h.Project.RefineDescriptions)
	project.Post("/images/generate", generationLimit, h.Project.GenerateImages)

	// Export routes
	exports := api.Group("/exports")
	exports.Post("/", rl.ExportLimit(limits.ExportPerHour), h.Export.Start)
	exports.Get("/", h.Export.List)
	exports.Post("/clear", h.Export.ClearFinished)
	exports.Get("/:id", h.Export.Get)
	exports.Delete("/:id", h.Export.Remove)

	// Settings routes
	settings := api.Group("/settings")
	settings.Get("/", h.Settings.Get)
	settings.Put("/", h.Settings.Update)
	settings.Post("/reset", h.Settings.Reset)
	settings.Post("/verify", h.Settings.Verify)
	settings.Get("/brand", h.Settings.Brand)
	settings.Put("/brand", h.Settings.UpdateBrand)
	settings.Post("/brand/verify", h.Settings.VerifyAdmin)
}
