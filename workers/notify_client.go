package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"siege-coordinator/utils"
)

// NotifyClient delivers direct messages through the chat gateway.
type NotifyClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewNotifyClient(baseURL, token string) *NotifyClient {
	return &NotifyClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

type directMessage struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

// NotifyParticipant posts one direct message. Any non-2xx answer is an error.
func (c *NotifyClient) NotifyParticipant(ctx context.Context, participantID, message string) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid notify URL '%s': %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath("/api/v1/messages/direct").String()

	body, err := json.Marshal(directMessage{RecipientID: participantID, Text: message})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat gateway: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chat gateway returned status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// LogNotifier writes reminders to the log when no gateway is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyParticipant(_ context.Context, participantID, message string) error {
	log.Printf("[Notify] 📨 %s: %s", participantID, message)
	return nil
}
