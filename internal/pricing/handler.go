package pricing

import "github.com/gofiber/fiber/v2"

// Handler serves the pricing table. It is public: the marketing pages read
// it before anyone signs in.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Get("/api/v1/pricing", h.getCatalog)
}

func (h *Handler) getCatalog(c *fiber.Ctx) error {
	return c.JSON(Catalog())
}
