package auth

import (
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		session, err := svc.Register(c.Context(), req)
		switch {
		case errors.Is(err, ErrMissingFields):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrAccountExists):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email and password required")
		}
		session, err := svc.Login(c.Context(), req)
		if errors.Is(err, ErrInvalidCredentials) {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(session)
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
			return fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
		}

		userID, err := svc.ValidateRefreshToken(c.Context(), req.RefreshToken)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		resp, err := svc.GenerateTokens(c.Context(), userID)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(resp)
	})

	r.Get("/jwt/verify", svc.Middleware(), func(c *fiber.Ctx) error {
		user, err := svc.Account(c.Context(), UserID(c))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(fiber.Map{"user_id": user.ID, "user": user})
	})
}
