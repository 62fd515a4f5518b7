package chat

import (
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

type sendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Post("/", func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		var req sendRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		msg, err := svc.Send(c.Context(), userID, req.ReceiverID, req.Text)
		switch {
		case errors.Is(err, ErrInvalidMessage):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRecipientOffline), errors.Is(err, ErrMessagingDisabled):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		rooms, err := svc.Rooms(c.Context(), userID)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(rooms)
	})

	r.Get("/:roomID", func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		roomID := c.Params("roomID")
		if !Participant(roomID, userID) {
			return fiber.NewError(fiber.StatusForbidden, "not a participant")
		}
		messages, err := svc.Messages(c.Context(), roomID)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(messages)
	})
}
