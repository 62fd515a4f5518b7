package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// Source starts pushing payloads for one connection through send. The
// returned func stops it.
type Source func(c *websocket.Conn, send func([]byte)) (stop func(), err error)

// Upgrade rejects plain HTTP requests on websocket routes.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve streams src to the client until either side closes. Client messages
// are read and dropped.
func Serve(src Source, log zerolog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		out := make(chan []byte, 64)
		stop, err := src(c, func(payload []byte) {
			select {
			case out <- payload:
			default:
				log.Warn().Str("action", "stream_drop").Msg("client too slow, payload dropped")
			}
		})
		if err != nil {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			return
		}
		defer stop()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case msg := <-out:
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	})
}

// Topic streams every broadcast on the hub topic named by key.
func Topic(hub *Hub, key func(c *websocket.Conn) string) Source {
	return func(c *websocket.Conn, send func([]byte)) (func(), error) {
		client := hub.Register(key(c))
		go func() {
			for msg := range client.Send {
				send(msg)
			}
		}()
		return func() { hub.Unregister(client) }, nil
	}
}
