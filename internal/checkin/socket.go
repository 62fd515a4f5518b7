package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/azrayildirim/mekandamobil/internal/location"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Connector tracks the realtime connection of a device session.
type Connector interface {
	StartSession(ctx context.Context, connID, userID string) error
	Disconnect(ctx context.Context, connID string) error
}

// TokenVerifier resolves an access token to a user id.
type TokenVerifier func(token string) (string, error)

type socketMessage struct {
	Type      string  `json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	AccuracyM float64  `json:"accuracy_m,omitempty"`
	VenueID   string   `json:"venue_id,omitempty"`
}

type socketReply struct {
	Type   string    `json:"type"`
	ConnID string    `json:"conn_id,omitempty"`
	State  *Snapshot `json:"state,omitempty"`
	Prompt *Prompt   `json:"prompt,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// RegisterSocket serves GET /ws/device?token=&device_id=. The connection is
// the device session: opening it marks the user online, closing it runs the
// disconnect rules.
func RegisterSocket(r fiber.Router, mgr *Manager, conn Connector, verify TokenVerifier, log zerolog.Logger) {
	r.Get("/ws/device", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, err := verify(c.Query("token"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		deviceID := c.Query("device_id")
		if deviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		c.Locals("user_id", userID)
		c.Locals("device_id", deviceID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		deviceID, _ := c.Locals("device_id").(string)
		s := &deviceSocket{
			c:      c,
			mgr:    mgr,
			userID: userID,
			connID: uuid.NewString(),
			log:    log.With().Str("user_id", userID).Str("device_id", deviceID).Logger(),
		}
		s.serve(conn, deviceID)
	}))
}

type deviceSocket struct {
	c      *websocket.Conn
	mgr    *Manager
	userID string
	connID string
	log    zerolog.Logger

	writeMu sync.Mutex
}

func (s *deviceSocket) serve(conn Connector, deviceID string) {
	ctx := context.Background()

	if err := conn.StartSession(ctx, s.connID, s.userID); err != nil {
		s.log.Error().Err(err).Str("action", "device_session_failed").Msg("presence not started")
		s.reply(socketReply{Type: "error", Error: err.Error()})
		return
	}

	d, err := s.mgr.Acquire(s.userID, deviceID)
	if err != nil {
		s.reply(socketReply{Type: "error", Error: err.Error()})
		s.disconnect(ctx, conn)
		return
	}
	d.Controller().OnPrompt(func(p Prompt) {
		s.reply(socketReply{Type: "prompt", Prompt: &p})
	})
	s.sendState(ctx, d, "session")

	signedOut := false
	for !signedOut {
		_, raw, err := s.c.ReadMessage()
		if err != nil {
			break
		}
		var msg socketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reply(socketReply{Type: "error", Error: "invalid message"})
			continue
		}
		signedOut, err = s.handle(ctx, d, deviceID, msg)
		if err != nil {
			s.reply(socketReply{Type: "error", Error: err.Error()})
			continue
		}
		if !signedOut {
			s.sendState(ctx, d, "state")
		}
	}

	d.Controller().OnPrompt(nil)
	if signedOut {
		s.reply(socketReply{Type: "signed_out"})
		return
	}
	s.disconnect(ctx, conn)
	s.mgr.Release(s.userID, deviceID)
}

func (s *deviceSocket) handle(ctx context.Context, d *Device, deviceID string, msg socketMessage) (bool, error) {
	switch msg.Type {
	case "location":
		coord, err := coordinate(msg.Latitude, msg.Longitude)
		if err != nil {
			return false, err
		}
		return false, d.Locate(ctx, location.Fix{Coordinate: coord, AccuracyM: msg.AccuracyM})
	case "confirm":
		return false, d.Controller().Handle(ctx, PromptAnswered{VenueID: msg.VenueID, Confirm: true})
	case "reject":
		return false, d.Controller().Handle(ctx, PromptAnswered{VenueID: msg.VenueID})
	case "exit":
		return false, d.Controller().Handle(ctx, VenueExited{})
	case "permission_denied":
		return false, d.Deny(ctx)
	case "signout":
		return true, s.mgr.SignOut(ctx, s.userID, deviceID, s.connID)
	default:
		return false, errors.New("unknown message type " + msg.Type)
	}
}

func (s *deviceSocket) sendState(ctx context.Context, d *Device, kind string) {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		s.reply(socketReply{Type: "error", Error: err.Error()})
		return
	}
	s.reply(socketReply{Type: kind, ConnID: s.connID, State: &snap})
}

func (s *deviceSocket) disconnect(ctx context.Context, conn Connector) {
	if err := conn.Disconnect(ctx, s.connID); err != nil {
		s.log.Warn().Err(err).Str("action", "device_disconnect_failed").Str("conn_id", s.connID).Msg("disconnect rules not applied")
	}
}

func (s *deviceSocket) reply(r socketReply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.c.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.log.Debug().Err(err).Str("action", "device_write_failed").Msg("reply dropped")
	}
}
