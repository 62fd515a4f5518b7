package user

import (
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Patch("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user_id missing")
		}
		var req ProfileUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		p, err := svc.UpdateProfile(c.Context(), userID, req)
		if errors.Is(err, ErrEmptyUpdate) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(p)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		p, err := svc.Profile(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(p)
	})
}
