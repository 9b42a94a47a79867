// Package transcript is the REST adapter for the persistence backend. It
// exposes conversation state lookup, append-only message recording, and
// human-attention alerts.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
)

// ConversationState is the backend's view of one conversation.
type ConversationState struct {
	ID            string
	HumanOverride bool
	// Exists is false when the backend has never seen this participant.
	Exists bool
}

// Client talks to the conversation persistence API.
type Client struct {
	log       *slog.Logger
	baseURL   string
	authToken string
	http      *http.Client
}

// NewClient builds a persistence backend client. timeout bounds every call.
func NewClient(log *slog.Logger, baseURL, authToken string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		log:       log.With(slog.String("service", "transcript")),
		baseURL:   baseURL,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

type conversationResponse struct {
	Data struct {
		ID            string `json:"id"`
		HumanOverride bool   `json:"human_override"`
	} `json:"data"`
}

// FetchConversation looks up the conversation keyed by participant id.
// A 404 is not an error; it reports Exists=false.
func (c *Client) FetchConversation(ctx context.Context, participantID string) (ConversationState, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s", c.baseURL, url.PathEscape(participantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConversationState{}, fmt.Errorf("build conversation request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return ConversationState{}, fmt.Errorf("fetch conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ConversationState{Exists: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ConversationState{}, fmt.Errorf("fetch conversation: backend returned %d", resp.StatusCode)
	}

	var body conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ConversationState{}, fmt.Errorf("decode conversation response: %w", err)
	}

	return ConversationState{
		ID:            body.Data.ID,
		HumanOverride: body.Data.HumanOverride,
		Exists:        true,
	}, nil
}

type messageResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Append records one transcript entry. The backend creates the conversation
// on first write, so no prior existence check is needed.
func (c *Client) Append(ctx context.Context, entry orchestrator.TranscriptEntry) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	fields := map[string]string{
		"senderType": string(entry.SenderRole),
		"phone":      entry.ParticipantID,
		"name":       entry.DisplayName,
		"content":    entry.Content,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	if att := entry.Attachment; att != nil {
		part, err := form.CreateFormFile("file", att.Filename)
		if err != nil {
			return "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return "", fmt.Errorf("write file part: %w", err)
		}
	}

	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", &buf)
	if err != nil {
		return "", fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("record message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("record message: backend returned %d", resp.StatusCode)
	}

	var body messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// Some backends answer 201 with an empty body. The record went through.
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("decode message response: %w", err)
	}
	return body.Data.ID, nil
}

type alertRequest struct {
	ConversationID string `json:"conversationId"`
	NeedsHuman     bool   `json:"needsHuman"`
	Reason         string `json:"reason"`
}

// RaiseAlert flags a conversation for human attention.
func (c *Client) RaiseAlert(ctx context.Context, conversationID, reason string) error {
	payload, err := json.Marshal(alertRequest{
		ConversationID: conversationID,
		NeedsHuman:     true,
		Reason:         reason,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/alerts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("raise alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("raise alert: backend returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}
