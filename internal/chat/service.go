package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/azrayildirim/mekandamobil/internal/db"
	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/stream"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidMessage    = errors.New("receiver and text required, receiver must differ from sender")
	ErrRecipientOffline  = errors.New("recipient is not online")
	ErrMessagingDisabled = errors.New("recipient does not accept messages")
)

type Service struct {
	db       db.Querier
	hub      *stream.Hub
	rt       realtime.Store
	profiles presence.ProfileReader
	log      zerolog.Logger
}

func NewService(db db.Querier, hub *stream.Hub, rt realtime.Store, profiles presence.ProfileReader, log zerolog.Logger) *Service {
	return &Service{db: db, hub: hub, rt: rt, profiles: profiles, log: log}
}

// Send stores a direct message. The receiver must be online and accept
// messages.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if receiverID == "" || text == "" || receiverID == senderID {
		return Message{}, ErrInvalidMessage
	}

	profile, err := s.profiles.Profile(ctx, receiverID)
	if err != nil {
		return Message{}, err
	}
	status, err := presence.Status(ctx, s.rt, receiverID)
	if err != nil {
		return Message{}, err
	}
	if !status.IsOnline {
		return Message{}, ErrRecipientOffline
	}
	if !profile.AllowMessages {
		return Message{}, ErrMessagingDisabled
	}

	msg := Message{
		ID:         uuid.NewString(),
		RoomID:     RoomID(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, receiver_id, text)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING sent_at
	`, msg.ID, msg.RoomID, msg.SenderID, msg.ReceiverID, msg.Text)
	if err := row.Scan(&msg.SentAt); err != nil {
		return Message{}, apperr.Write("store message", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat_rooms (id, participants, last_message, last_message_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE
		SET last_message = EXCLUDED.last_message, last_message_at = EXCLUDED.last_message_at
	`, msg.RoomID, []string{senderID, receiverID}, string(payload), msg.SentAt)
	if err != nil {
		s.log.Warn().Err(err).Str("action", "chat_room_update_failed").Str("room_id", msg.RoomID).Msg("last message not updated")
	}

	s.hub.Broadcast(Topic(msg.RoomID), payload)
	return msg, nil
}

// Messages lists the room's messages, oldest first.
func (s *Service) Messages(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, room_id, sender_id, receiver_id, text, sent_at
		FROM chat_messages WHERE room_id=$1
		ORDER BY sent_at, id
	`, roomID)
	if err != nil {
		return nil, apperr.Read("list messages", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.ReceiverID, &m.Text, &m.SentAt); err != nil {
			return nil, apperr.Read("list messages", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Read("list messages", err)
	}
	return messages, nil
}

// Rooms lists the conversations of userID, most recent first.
func (s *Service) Rooms(ctx context.Context, userID string) ([]Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, participants, last_message, last_message_at
		FROM chat_rooms WHERE $1 = ANY(participants)
		ORDER BY last_message_at DESC
	`, userID)
	if err != nil {
		return nil, apperr.Read("list rooms", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var (
			r    Room
			last []byte
		)
		if err := rows.Scan(&r.ID, &r.Participants, &last, &r.LastMessageAt); err != nil {
			return nil, apperr.Read("list rooms", err)
		}
		if len(last) > 0 {
			r.LastMessage = &Message{}
			if err := json.Unmarshal(last, r.LastMessage); err != nil {
				return nil, fmt.Errorf("decode last message of %s: %w", r.ID, err)
			}
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Read("list rooms", err)
	}
	return rooms, nil
}

// Subscribe delivers every new message of roomID until the returned func is
// called.
func (s *Service) Subscribe(roomID string, onMessage func([]byte)) func() {
	client := s.hub.Register(Topic(roomID))
	go func() {
		for payload := range client.Send {
			onMessage(payload)
		}
	}()
	return func() { s.hub.Unregister(client) }
}
