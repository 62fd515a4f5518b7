package chat

import (
	"sort"
	"strings"
	"time"
)

type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

type Room struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// RoomID is the same for both directions of a conversation.
func RoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// Participant reports whether userID is one of the two ids in roomID.
func Participant(roomID, userID string) bool {
	for _, id := range strings.Split(roomID, "_") {
		if id == userID {
			return true
		}
	}
	return false
}

// Topic is the stream topic that carries new messages of roomID.
func Topic(roomID string) string {
	return "chat/" + roomID
}
