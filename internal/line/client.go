package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

// The push endpoint accepts at most five messages per request.
const maxMessagesPerPush = 5

// Client pushes flex messages through the LINE Messaging API.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client
	logger      tracker.Logger
}

func NewClient(cfg config.LineConfig, logger tracker.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []flexMessage `json:"messages"`
}

// Push renders the notices into per-course bubbles and sends them to the
// recipient, splitting into requests of at most five messages. The first
// failed request aborts the batch: the caller treats a Push error as
// nothing-delivered and retries the whole batch next run.
func (c *Client) Push(ctx context.Context, recipientID string, notices []tracker.Notice) error {
	if len(notices) == 0 {
		return nil
	}

	bubbles := groupByCourse(notices)
	messages := make([]flexMessage, 0, len(bubbles))
	for _, b := range bubbles {
		messages = append(messages, renderMessage(b))
	}

	for start := 0; start < len(messages); start += maxMessagesPerPush {
		end := start + maxMessagesPerPush
		if end > len(messages) {
			end = len(messages)
		}
		if err := c.pushChunk(ctx, recipientID, messages[start:end]); err != nil {
			return err
		}
	}

	c.logger.Debug("pushed notices", "recipient", recipientID,
		"notices", len(notices), "messages", len(messages))
	return nil
}

func (c *Client) pushChunk(ctx context.Context, recipientID string, messages []flexMessage) error {
	body, err := json.Marshal(pushRequest{To: recipientID, Messages: messages})
	if err != nil {
		return fmt.Errorf("encoding push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return &tracker.DispatchError{RecipientID: recipientID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The API explains rejections in the body; keep a prefix for the log.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("push rejected", "recipient", recipientID,
			"status", resp.StatusCode, "detail", string(detail))
		return &tracker.DispatchError{RecipientID: recipientID, StatusCode: resp.StatusCode}
	}
	return nil
}

// Compile-time check that Client implements tracker.Notifier
var _ tracker.Notifier = (*Client)(nil)
