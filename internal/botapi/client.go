package botapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the remote chatbot agent over its HTTP polling API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Config holds configuration for the API client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        getEnv("CHATBOT_API_URL", "http://localhost:8080"),
		RequestTimeout: 30 * time.Second,
	}
}

// New creates a new chatbot API client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg = DefaultConfig()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

// Start performs the one-time handshake that allocates a conversation
// identifier.
func (c *Client) Start(ctx context.Context, treatmentGroup string) (string, error) {
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"treatmentGroup": treatmentGroup}).
		SetResult(&out).
		Post("/api/chatbot/start")
	if err != nil {
		return "", fmt.Errorf("start conversation: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("start conversation: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ConversationID == "" {
		return "", fmt.Errorf("start conversation: %w: missing conversationId", ErrMalformedResponse)
	}
	return out.ConversationID, nil
}

// Poll fetches the activities newer than the given watermark.
func (c *Client) Poll(ctx context.Context, conversationID, watermark, treatmentGroup string) (*ActivitySet, error) {
	var out ActivitySet
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"conversationId": conversationID,
			"watermark":      watermark,
			"treatmentGroup": treatmentGroup,
		}).
		SetResult(&out).
		Post("/api/chatbot/activities")
	if err != nil {
		return nil, fmt.Errorf("poll activities: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("poll activities: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// Send delivers one outbound user message. Transport failures that may
// have reached the server are wrapped in ErrAmbiguousDelivery; callers
// must not retry those.
func (c *Client) Send(ctx context.Context, conversationID, text, treatmentGroup, clientMsgID string) (*SendResponse, error) {
	var out SendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"conversationId":  conversationID,
			"text":            text,
			"treatmentGroup":  treatmentGroup,
			"clientSideMsgId": clientMsgID,
		}).
		SetResult(&out).
		Post("/api/chatbot/send")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", classifyDeliveryError(err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("send message: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ID == "" && !out.InProgress() {
		c.logger.Warn("send response missing id and status", "client_msg_id", clientMsgID, "body", resp.String())
		return nil, fmt.Errorf("send message: %w: missing id", ErrMalformedResponse)
	}
	return &out, nil
}

// Helper function.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
