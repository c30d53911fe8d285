package handlers

import (
	"github.com/eventra/certhub/database"
	"github.com/eventra/certhub/models"
	"github.com/gofiber/fiber/v2"
)

// Templates are authored by the visual editor; this API only reads and
// checks them.

func GetTemplate(c *fiber.Ctx) error {
	templateID := c.Params("templateId")
	var tpl models.TemplateDefinition
	if err := database.DB.First(&tpl, "id = ?", templateID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}
	return c.JSON(tpl)
}

func ValidateTemplate(c *fiber.Ctx) error {
	templateID := c.Params("templateId")
	var tpl models.TemplateDefinition
	if err := database.DB.First(&tpl, "id = ?", templateID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}

	if err := tpl.Layout.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"valid": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"valid": true, "elements": len(tpl.Layout.Elements)})
}
