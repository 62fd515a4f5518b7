package presence

import (
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, rt realtime.Store) {
	r.Get("/:userId", func(c *fiber.Ctx) error {
		rec, err := Status(c.Context(), rt, c.Params("userId"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(rec)
	})
}
