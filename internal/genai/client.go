// Package genai is the generative backend adapter over the Gemini REST API.
// Generation calls never surface errors to the orchestrator; a failed call
// degrades to a static fallback text so the conversation keeps moving.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
)

// Passage is one retrieved context snippet used for grounded generation.
type Passage struct {
	Text   string
	Source string
	Score  float32
}

// PassageRetriever finds passages relevant to an embedded query.
type PassageRetriever interface {
	Search(ctx context.Context, vector []float32) ([]Passage, error)
}

// Options tunes the client beyond credentials.
type Options struct {
	BaseURL         string
	Model           string
	VisionModel     string
	EmbeddingModel  string
	MaxOutputTokens int
	Timeout         time.Duration
}

// Client calls the Gemini REST API.
type Client struct {
	log       *slog.Logger
	apiKey    string
	opts      Options
	retriever PassageRetriever
	http      *http.Client
}

// NewClient builds a Gemini client. An empty apiKey is tolerated; every
// generation call then answers with the unavailable fallback.
func NewClient(log *slog.Logger, apiKey string, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		log:    log.With(slog.String("service", "genai")),
		apiKey: apiKey,
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
	}
}

// SetRetriever installs the passage store used by grounded generation.
// Without one, grounded calls behave like free generation.
func (c *Client) SetRetriever(r PassageRetriever) {
	c.retriever = r
}

// GenerateText produces a free reply to the prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) string {
	if c.apiKey == "" {
		c.log.Warn("generation skipped, api key not configured")
		return FallbackUnavailable
	}

	text, err := c.generate(ctx, c.opts.Model, generateRequest{
		SystemInstruction: systemPart(assistantInstruction),
		Contents:          []content{userText(prompt)},
		GenerationConfig:  c.generationConfig(),
	})
	if err != nil {
		c.log.Error("text generation failed", slog.String("error", err.Error()))
		return FallbackProcessing
	}
	return text
}

// GenerateGroundedText answers the prompt conditioned on retrieved passages.
// Embedding or retrieval failures degrade to free generation; zero hits mean
// the store has nothing relevant and the generic assistant answers.
func (c *Client) GenerateGroundedText(ctx context.Context, prompt string) string {
	if c.apiKey == "" {
		c.log.Warn("generation skipped, api key not configured")
		return FallbackUnavailable
	}

	passages := c.retrievePassages(ctx, prompt)
	if len(passages) == 0 {
		return c.GenerateText(ctx, prompt)
	}

	var sb strings.Builder
	sb.WriteString("Contexto:\n")
	for _, p := range passages {
		sb.WriteString("- ")
		sb.WriteString(p.Text)
		if p.Source != "" {
			sb.WriteString(" (")
			sb.WriteString(p.Source)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nConsulta del cliente: ")
	sb.WriteString(prompt)

	text, err := c.generate(ctx, c.opts.Model, generateRequest{
		SystemInstruction: systemPart(groundedInstruction),
		Contents:          []content{userText(sb.String())},
		GenerationConfig:  c.generationConfig(),
	})
	if err != nil {
		c.log.Error("grounded generation failed", slog.String("error", err.Error()))
		return FallbackProcessing
	}
	return text
}

func (c *Client) retrievePassages(ctx context.Context, prompt string) []Passage {
	if c.retriever == nil {
		return nil
	}
	vector, err := c.EmbedText(ctx, prompt)
	if err != nil {
		c.log.Warn("query embedding failed, answering without context", slog.String("error", err.Error()))
		return nil
	}
	passages, err := c.retriever.Search(ctx, vector)
	if err != nil {
		c.log.Warn("passage retrieval failed, answering without context", slog.String("error", err.Error()))
		return nil
	}
	return passages
}

// ClassifyImage labels an image as receipt, listing, or other. Any failure
// collapses to the fallback category.
func (c *Client) ClassifyImage(ctx context.Context, data []byte, mimeType string) orchestrator.ImageCategory {
	if c.apiKey == "" {
		c.log.Warn("classification skipped, api key not configured")
		return orchestrator.CategoryFallback
	}

	label, err := c.generate(ctx, c.visionModel(), generateRequest{
		SystemInstruction: systemPart(classifyInstruction),
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
				{Text: "Clasifica esta imagen."},
			},
		}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 10},
	})
	if err != nil {
		c.log.Error("image classification failed", slog.String("error", err.Error()))
		return orchestrator.CategoryFallback
	}
	return orchestrator.ParseImageCategory(label)
}

// GenerateImageGroundedText answers a caption in the context of its image.
func (c *Client) GenerateImageGroundedText(ctx context.Context, caption string, data []byte, mimeType string) string {
	if c.apiKey == "" {
		c.log.Warn("generation skipped, api key not configured")
		return FallbackUnavailable
	}

	text, err := c.generate(ctx, c.visionModel(), generateRequest{
		SystemInstruction: systemPart(imageInstruction),
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
				{Text: caption},
			},
		}},
		GenerationConfig: c.generationConfig(),
	})
	if err != nil {
		c.log.Error("image generation failed", slog.String("error", err.Error()))
		return FallbackProcessing
	}
	return text
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedText embeds text for retrieval. Unlike generation, embedding errors
// are real; the grounded path decides how to degrade.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("api key not configured")
	}

	payload, err := json.Marshal(embedRequest{Content: userText(text)})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", c.opts.BaseURL, c.opts.EmbeddingModel)
	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding response has no values")
	}
	return parsed.Embedding.Values, nil
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.opts.BaseURL, model)
	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	var sb strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("generate response has no text")
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func (c *Client) visionModel() string {
	if c.opts.VisionModel != "" {
		return c.opts.VisionModel
	}
	return c.opts.Model
}

func (c *Client) generationConfig() *generationConfig {
	if c.opts.MaxOutputTokens <= 0 {
		return nil
	}
	return &generationConfig{MaxOutputTokens: c.opts.MaxOutputTokens}
}

func systemPart(text string) *content {
	return &content{Parts: []part{{Text: text}}}
}

func userText(text string) content {
	return content{Role: "user", Parts: []part{{Text: text}}}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
