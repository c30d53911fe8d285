package routes

import (
	"github.com/eventra/certhub/handlers"
	"github.com/eventra/certhub/middleware"
	"github.com/gofiber/fiber/v2"
)

func CertificateRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	certs := api.Group("/certificates", middleware.Protected())
	certs.Get("/:certificateId/download", handlers.DownloadCertificate)

	admin := api.Group("/admin/certificates", middleware.Protected(), middleware.AdminRequired())
	admin.Post("/:certificateId/regenerate", handlers.RegenerateCertificate)
	admin.Get("/serial/preview", handlers.PreviewSerialNumber)
	admin.Post("/batch/download", handlers.BatchDownload)
	admin.Post("/batch/pregenerate", handlers.PregenerateBatch)
}
