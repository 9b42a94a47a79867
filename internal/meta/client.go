// Package meta is the WhatsApp Cloud API adapter: outbound text sends and the
// two-stage media download (resolve reference to a temporary URL, then fetch
// the bytes).
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
)

// Media resolution stages, carried on MediaError so callers can tell a bad
// reference from a failed download.
const (
	StageLocate = "locate"
	StageFetch  = "fetch"
)

// MediaError wraps a failure in one of the two media resolution stages.
type MediaError struct {
	Stage string
	Err   error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s: %v", e.Stage, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// Client calls the Meta Graph API for one WhatsApp business phone number.
type Client struct {
	log           *slog.Logger
	baseURL       string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	http          *http.Client
}

// NewClient builds a Graph API client. timeout bounds each HTTP call; the
// media download counts as its own call.
func NewClient(log *slog.Logger, baseURL, apiVersion, accessToken, phoneNumberID string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		log:           log.With(slog.String("service", "meta")),
		baseURL:       baseURL,
		apiVersion:    apiVersion,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		http:          &http.Client{Timeout: timeout},
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers one outbound text message to a participant.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: graph api returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

type mediaLocation struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// ResolveMedia turns a platform media reference into the downloaded bytes.
// The Graph API hands out a short-lived URL first; both calls carry the
// bearer credential.
func (c *Client) ResolveMedia(ctx context.Context, mediaRef string) (orchestrator.MediaPayload, error) {
	loc, err := c.locateMedia(ctx, mediaRef)
	if err != nil {
		return orchestrator.MediaPayload{}, &MediaError{Stage: StageLocate, Err: err}
	}

	data, err := c.fetchMedia(ctx, loc.URL)
	if err != nil {
		return orchestrator.MediaPayload{}, &MediaError{Stage: StageFetch, Err: err}
	}

	return orchestrator.MediaPayload{Data: data, MimeType: loc.MimeType}, nil
}

func (c *Client) locateMedia(ctx context.Context, mediaRef string) (mediaLocation, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, mediaRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mediaLocation{}, fmt.Errorf("build locate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return mediaLocation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mediaLocation{}, fmt.Errorf("graph api returned %d", resp.StatusCode)
	}

	var loc mediaLocation
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return mediaLocation{}, fmt.Errorf("decode media location: %w", err)
	}
	if loc.URL == "" {
		return mediaLocation{}, fmt.Errorf("media location has no url")
	}
	return loc, nil
}

func (c *Client) fetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media host returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	return data, nil
}
