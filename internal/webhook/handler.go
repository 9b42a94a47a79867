// Package webhook is the HTTP surface for the WhatsApp Cloud API: endpoint
// verification, event ingestion, and the operator reply endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
)

// Webhook acknowledgment bodies. The platform redelivers on non-200, so even
// undecodable payloads are acknowledged.
const (
	ackReceived  = "EVENT_RECEIVED"
	ackWithError = "EVENT_RECEIVED_WITH_ERROR"
)

// EventProcessor runs inbound events and operator replies. Satisfied by
// *orchestrator.Orchestrator.
type EventProcessor interface {
	Process(ctx context.Context, event orchestrator.InboundEvent) orchestrator.Outcome
	SendOperatorReply(ctx context.Context, reply orchestrator.OperatorReply) error
}

// Options carries the handler's credentials and processing timeout.
type Options struct {
	VerifyToken  string
	AdminToken   string
	EventTimeout time.Duration
}

// Handler registers and serves the webhook routes.
type Handler struct {
	log       *slog.Logger
	processor EventProcessor
	opts      Options
	validate  *validator.Validate
}

func NewHandler(log *slog.Logger, processor EventProcessor, opts Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = time.Minute
	}
	return &Handler{
		log:       log.With(slog.String("service", "webhook")),
		processor: processor,
		opts:      opts,
		validate:  validator.New(),
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/webhook/whatsapp", h.verify)
	e.POST("/webhook/whatsapp", h.receive)
	e.POST("/admin/messages", h.operatorReply)
}

// verify answers the platform's subscription handshake: echo the challenge
// when mode and token match, 403 otherwise.
func (h *Handler) verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.opts.VerifyToken {
		h.log.Info("webhook verified")
		return c.String(http.StatusOK, challenge)
	}

	h.log.Warn("webhook verification rejected", slog.String("mode", mode))
	return c.NoContent(http.StatusForbidden)
}

// receive acknowledges the delivery immediately and hands the event to the
// orchestrator on a detached context. The platform never waits on processing.
func (h *Handler) receive(c echo.Context) error {
	var env envelope
	if err := json.NewDecoder(c.Request().Body).Decode(&env); err != nil {
		h.log.Warn("undecodable webhook payload", slog.String("error", err.Error()))
		return c.String(http.StatusOK, ackWithError)
	}

	if env.Object != "whatsapp_business_account" {
		h.log.Warn("unexpected webhook object", slog.String("object", env.Object))
		return c.String(http.StatusOK, ackWithError)
	}

	msg, displayName, ok := env.firstMessage()
	if !ok {
		// Status callbacks (sent/delivered/read) carry no message.
		return c.String(http.StatusOK, ackReceived)
	}

	event := toEvent(uuid.NewString(), msg, displayName)
	h.log.Info("event accepted",
		slog.String("event_id", event.ID),
		slog.String("content_type", string(event.ContentType)),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.opts.EventTimeout)
	go func() {
		defer cancel()
		outcome := h.processor.Process(ctx, event)
		if outcome.Err != nil {
			h.log.Error("event finished with error",
				slog.String("event_id", event.ID),
				slog.String("error", outcome.Err.Error()),
			)
		}
	}()

	return c.String(http.StatusOK, ackReceived)
}

type operatorRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
	Content       string `json:"content" validate:"required"`
}

// operatorReply dispatches a human operator's message synchronously. Unlike
// event ingestion, the caller is a person who wants to know the send worked.
func (h *Handler) operatorReply(c echo.Context) error {
	if !h.authorized(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req operatorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	err := h.processor.SendOperatorReply(c.Request().Context(), orchestrator.OperatorReply{
		ParticipantID: req.ParticipantID,
		Content:       req.Content,
	})
	if err != nil {
		h.log.Error("operator reply failed",
			slog.String("participant_id", req.ParticipantID),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "message could not be delivered"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) authorized(c echo.Context) bool {
	if h.opts.AdminToken == "" {
		return false
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == h.opts.AdminToken
}
