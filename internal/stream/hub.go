package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix = "mekanda:"
	channelSuffix = ":broadcast"
)

// Hub fans payloads out to local subscribers of a topic. With Redis attached,
// every broadcast goes through pub/sub so all instances deliver it exactly once.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client, log zerolog.Logger) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		log:     log,
	}

	if redisClient != nil {
		ctx := context.Background()
		pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
		if _, err := pubsub.Receive(ctx); err != nil {
			h.log.Error().Err(err).Str("action", "hub_subscribe_failed").Msg("falling back to local delivery")
			_ = pubsub.Close()
			h.redis = nil
			return h
		}
		h.pubsub = pubsub
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, registered := topicClients[client]; !registered {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn().Err(err).Str("action", "hub_publish_failed").Str("topic", topic).Msg("delivering locally")
	}
	h.deliver(topic, payload)
}

// Close stops the Redis subscription. Registered clients stay usable locally.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		topic := topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

func redisChannel(topic string) string {
	return channelPrefix + topic + channelSuffix
}

func topicFromChannel(ch string) string {
	// mekanda:{topic}:broadcast
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
