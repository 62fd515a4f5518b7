package checkin

import (
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/location"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

type locationRequest struct {
	DeviceID  string   `json:"device_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	AccuracyM float64  `json:"accuracy_m"`
}

type answerRequest struct {
	DeviceID string `json:"device_id"`
	VenueID  string `json:"venue_id"`
}

type signOutRequest struct {
	DeviceID string `json:"device_id"`
	ConnID   string `json:"conn_id"`
}

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Post("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id, latitude and longitude required")
		}
		coord, err := coordinate(req.Latitude, req.Longitude)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d, err := device(c, mgr, req.DeviceID)
		if err != nil {
			return err
		}
		fix := location.Fix{
			Coordinate: coord,
			AccuracyM:  req.AccuracyM,
		}
		if err := d.Locate(c.Context(), fix); err != nil {
			return httpError(err)
		}
		return snapshot(c, d)
	})

	r.Post("/location/denied", func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		d, err := device(c, mgr, req.DeviceID)
		if err != nil {
			return err
		}
		return httpError(d.Deny(c.Context()))
	})

	answer := func(confirm bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			var req answerRequest
			if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
				return fiber.NewError(fiber.StatusBadRequest, "device_id required")
			}
			d, err := device(c, mgr, req.DeviceID)
			if err != nil {
				return err
			}
			if err := d.Controller().Handle(c.Context(), PromptAnswered{VenueID: req.VenueID, Confirm: confirm}); err != nil {
				return httpError(err)
			}
			return snapshot(c, d)
		}
	}
	r.Post("/confirm", answer(true))
	r.Post("/reject", answer(false))

	r.Post("/exit", func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		d, err := device(c, mgr, req.DeviceID)
		if err != nil {
			return err
		}
		if err := d.Controller().Handle(c.Context(), VenueExited{}); err != nil {
			return httpError(err)
		}
		return snapshot(c, d)
	})

	r.Post("/signout", func(c *fiber.Ctx) error {
		var req signOutRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		if err := mgr.SignOut(c.Context(), userID, req.DeviceID, req.ConnID); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/state", func(c *fiber.Ctx) error {
		deviceID := c.Query("device_id")
		if deviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		d, err := device(c, mgr, deviceID)
		if err != nil {
			return err
		}
		return snapshot(c, d)
	})
}

var errMissingCoordinate = errors.New("latitude and longitude required")

// coordinate rejects a fix with either axis missing; (0,0) is a real position.
func coordinate(lat, lng *float64) (geo.Coordinate, error) {
	if lat == nil || lng == nil {
		return geo.Coordinate{}, errMissingCoordinate
	}
	return geo.Coordinate{Latitude: *lat, Longitude: *lng}, nil
}

func currentUser(c *fiber.Ctx) (string, error) {
	userID := auth.UserID(c)
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "user_id missing")
	}
	return userID, nil
}

func device(c *fiber.Ctx, mgr *Manager, deviceID string) (*Device, error) {
	userID, err := currentUser(c)
	if err != nil {
		return nil, err
	}
	d, err := mgr.Device(userID, deviceID)
	if err != nil {
		return nil, httpError(err)
	}
	return d, nil
}

func snapshot(c *fiber.Ctx, d *Device) error {
	snap, err := d.Snapshot(c.Context())
	if err != nil {
		return apperr.HTTP(apperr.Read("read check-in state", err))
	}
	return c.JSON(snap)
}

func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoPendingPrompt), errors.Is(err, ErrPromptMismatch):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, location.ErrInvalidFix):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return apperr.HTTP(err)
	}
}
