package venue

import (
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		venues, err := svc.List(c.Context())
		if err != nil {
			return apperr.HTTP(err)
		}
		if venues == nil {
			venues = []Venue{}
		}
		return c.JSON(venues)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		v, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(v)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Venue
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.ID = ""
		v, err := svc.Create(c.Context(), req)
		if errors.Is(err, ErrInvalidVenue) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	})
}
