package routes

import (
	"github.com/eventra/certhub/handlers"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/auth/login", handlers.LoginUser)

	// Serial verification is the public contract behind printed QR codes;
	// serials travel in URLs with dashes instead of slashes.
	api.Get("/verify/:serial", handlers.VerifySerialNumber)
}
