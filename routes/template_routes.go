package routes

import (
	"github.com/eventra/certhub/handlers"
	"github.com/eventra/certhub/middleware"
	"github.com/gofiber/fiber/v2"
)

func TemplateRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	templates := api.Group("/templates", middleware.Protected())
	templates.Get("/:templateId", handlers.GetTemplate)

	adminTemplates := api.Group("/admin/templates", middleware.Protected(), middleware.AdminRequired())
	adminTemplates.Post("/:templateId/validate", handlers.ValidateTemplate)
}
