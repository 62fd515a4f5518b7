package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/azrayildirim/mekandamobil/internal/chat"
	"github.com/azrayildirim/mekandamobil/internal/checkin"
	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/stream"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

var errNotParticipant = errors.New("not a participant of this room")

// venueSource pushes the full venue list on connect and after every change.
func venueSource(venues *venue.Service, log zerolog.Logger) stream.Source {
	return func(_ *websocket.Conn, send func([]byte)) (func(), error) {
		return venues.Subscribe(func(vs []venue.Venue) {
			payload, err := json.Marshal(vs)
			if err != nil {
				return
			}
			send(payload)
		}, func(err error) {
			log.Warn().Err(err).Str("action", "venue_stream_failed").Msg("venue list not pushed")
		}), nil
	}
}

// presenceSource pushes the current record of a user, then every write to it.
func presenceSource(rt realtime.Store) stream.Source {
	return func(c *websocket.Conn, send func([]byte)) (func(), error) {
		userID := c.Params("userId")
		stop := rt.Subscribe(presence.StatusPath(userID), send)
		rec, err := presence.Status(context.Background(), rt, userID)
		if err != nil {
			stop()
			return nil, err
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			stop()
			return nil, err
		}
		send(payload)
		return stop, nil
	}
}

// chatSource streams new messages of a room to one of its participants.
func chatSource(messages *chat.Service, verify checkin.TokenVerifier) stream.Source {
	return func(c *websocket.Conn, send func([]byte)) (func(), error) {
		userID, err := verify(c.Query("token"))
		if err != nil {
			return nil, err
		}
		roomID := c.Params("roomID")
		if !chat.Participant(roomID, userID) {
			return nil, errNotParticipant
		}
		return messages.Subscribe(roomID, send), nil
	}
}
