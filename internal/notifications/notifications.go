package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client posts push notifications to an ntfy server.
type Client struct {
	http     *http.Client
	server   string
	topic    string
	priority int
	tags     []string
}

type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// New returns nil when no topic is configured; callers treat a nil client as disabled.
func New(server, topic string) *Client {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if server == "" {
		server = "https://ntfy.sh"
	}

	c := &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		server:   strings.TrimRight(server, "/"),
		topic:    topic,
		priority: 5,
		tags:     []string{"fire", "rotating_light"},
	}
	log.Info().
		Str("server", c.server).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
	return c
}

// Send publishes through ntfy's JSON endpoint, which takes the topic in the body.
func (c *Client) Send(title, body string) error {
	if c == nil {
		return fmt.Errorf("notifications not initialized")
	}

	jsonData, err := json.Marshal(message{
		Topic:    c.topic,
		Title:    title,
		Message:  body,
		Priority: c.priority,
		Tags:     c.tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.server+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")
	return nil
}
