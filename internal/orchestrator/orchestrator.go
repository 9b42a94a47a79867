package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
)

// Fixed reply texts for the image branch. Sent verbatim, never generated.
const (
	ReceiptAck    = "Hemos recibido tu comprobante, Un ejecutivo lo verificará a la brevedad."
	ListingPrompt = "Recibí tu foto de la propiedad. ¿Qué necesitas saber o reportar sobre esta imagen, por favor?"
	UnsureReply   = "Recibí tu imagen, pero no estoy seguro de qué hacer con ella. ¿Puedes darme más contexto?"
)

// ReceiptAlertReason is the reason attached to the human-attention alert
// raised for every payment receipt.
const ReceiptAlertReason = "Se recibió un comprobante de pago que requiere verificación."

// ConversationGate answers whether a human operator controls a conversation.
type ConversationGate interface {
	Check(ctx context.Context, participantID string) GateResult
}

// TranscriptRecorder appends entries to the conversation transcript.
type TranscriptRecorder interface {
	Append(ctx context.Context, entry TranscriptEntry) (string, error)
}

// MediaResolver downloads platform media by reference.
type MediaResolver interface {
	ResolveMedia(ctx context.Context, mediaRef string) (MediaPayload, error)
}

// ResponseGenerator produces AI replies. Generation never errors; degraded
// backends answer with fallback text. Classification collapses failures to
// the fallback category.
type ResponseGenerator interface {
	GenerateText(ctx context.Context, prompt string) string
	GenerateGroundedText(ctx context.Context, prompt string) string
	ClassifyImage(ctx context.Context, data []byte, mimeType string) ImageCategory
	GenerateImageGroundedText(ctx context.Context, caption string, data []byte, mimeType string) string
}

// Dispatcher sends outbound messages to the participant's platform.
type Dispatcher interface {
	SendText(ctx context.Context, to, body string) error
}

// AlertEmitter flags conversations for human attention.
type AlertEmitter interface {
	RaiseAlert(ctx context.Context, conversationID, reason string) error
}

// Options tunes the orchestrator's behavior.
type Options struct {
	// GroundedGeneration routes text prompts through retrieval-conditioned
	// generation instead of free generation.
	GroundedGeneration bool
	BotDisplayName     string
	AdminDisplayName   string
}

// Orchestrator runs the per-event pipeline: gate, record, route by content
// type, respond, and drive side effects in order. Collaborator failures are
// absorbed into the Outcome; processing never propagates a panic and an
// event is never retried.
type Orchestrator struct {
	log       *slog.Logger
	gate      ConversationGate
	recorder  TranscriptRecorder
	resolver  MediaResolver
	generator ResponseGenerator
	outbound  Dispatcher
	alerts    AlertEmitter
	opts      Options
}

func New(
	log *slog.Logger,
	gate ConversationGate,
	recorder TranscriptRecorder,
	resolver MediaResolver,
	generator ResponseGenerator,
	outbound Dispatcher,
	alerts AlertEmitter,
	opts Options,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.BotDisplayName == "" {
		opts.BotDisplayName = "Bot IA"
	}
	if opts.AdminDisplayName == "" {
		opts.AdminDisplayName = "admin"
	}
	return &Orchestrator{
		log:       log.With(slog.String("service", "orchestrator")),
		gate:      gate,
		recorder:  recorder,
		resolver:  resolver,
		generator: generator,
		outbound:  outbound,
		alerts:    alerts,
		opts:      opts,
	}
}

// Process runs one inbound event through the pipeline and reports how far it
// got. The returned Outcome is for logging; nothing in it blocks the webhook
// acknowledgment upstream.
func (o *Orchestrator) Process(ctx context.Context, event InboundEvent) (out Outcome) {
	log := o.log.With(
		slog.String("event_id", event.ID),
		slog.String("participant_id", event.ParticipantID),
		slog.String("content_type", string(event.ContentType)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("event processing panicked", slog.Any("panic", r))
			out.State = StateDoneWithError
			out.Err = fmt.Errorf("processing panicked: %v", r)
		}
	}()

	out.State = StateReceived

	if err := event.Validate(); err != nil {
		log.Warn("invalid event dropped", slog.String("error", err.Error()))
		out.State = StateDoneWithError
		out.Err = err
		return out
	}

	if event.ContentType == ContentUnhandled {
		log.Info("unhandled content type, acknowledged without processing")
		out.State = StateDone
		return out
	}

	gateRes := o.gate.Check(ctx, event.ParticipantID)
	out.GateDegraded = gateRes.Degraded
	out.State = StateGated

	switch event.ContentType {
	case ContentText:
		o.processText(ctx, log, event, gateRes, &out)
	case ContentImage:
		o.processImage(ctx, log, event, gateRes, &out)
	case ContentAudio, ContentVideo:
		o.processMedia(ctx, log, event, &out)
	}

	if out.State != StateDoneWithError {
		out.State = StateDone
	}
	log.Info("event processed",
		slog.String("state", string(out.State)),
		slog.Bool("terminated", out.Terminated),
		slog.Int("record_failures", out.RecordFailures),
	)
	return out
}

func (o *Orchestrator) processText(ctx context.Context, log *slog.Logger, event InboundEvent, gateRes GateResult, out *Outcome) {
	o.record(ctx, log, out, TranscriptEntry{
		SenderRole:    RoleUser,
		ParticipantID: event.ParticipantID,
		DisplayName:   event.DisplayName,
		Content:       event.Text.Body,
	})
	out.State = StateRecorded

	if gateRes.HumanControlled {
		log.Info("conversation under human control, ai reply suppressed")
		out.Terminated = true
		out.State = StateTerminated
		return
	}

	out.State = StateRouted
	var reply string
	if o.opts.GroundedGeneration {
		reply = o.generator.GenerateGroundedText(ctx, event.Text.Body)
	} else {
		reply = o.generator.GenerateText(ctx, event.Text.Body)
	}
	out.State = StateResponded

	o.dispatchAndRecordReply(ctx, log, event.ParticipantID, reply, out)
}

func (o *Orchestrator) processImage(ctx context.Context, log *slog.Logger, event InboundEvent, gateRes GateResult, out *Outcome) {
	media, err := o.resolver.ResolveMedia(ctx, event.Image.MediaRef)
	if err != nil {
		log.Error("media resolution failed, image event abandoned",
			slog.String("media_ref", event.Image.MediaRef),
			slog.String("error", err.Error()),
		)
		out.State = StateDoneWithError
		out.Err = fmt.Errorf("resolve image media: %w", err)
		return
	}

	o.record(ctx, log, out, TranscriptEntry{
		SenderRole:    RoleUser,
		ParticipantID: event.ParticipantID,
		DisplayName:   event.DisplayName,
		Content:       event.Image.Caption,
		Attachment: &Attachment{
			Data:     media.Data,
			Filename: media.Filename(event.Image.MediaRef),
			MimeType: media.MimeType,
		},
	})
	out.State = StateRecorded

	if gateRes.HumanControlled {
		log.Info("conversation under human control, image reply suppressed")
		out.Terminated = true
		out.State = StateTerminated
		return
	}

	category := o.generator.ClassifyImage(ctx, media.Data, media.MimeType)
	out.Category = category
	out.State = StateRouted
	log.Info("image classified", slog.String("category", string(category)))

	switch category {
	case CategoryReceipt:
		o.dispatchAndRecordReply(ctx, log, event.ParticipantID, ReceiptAck, out)
		o.raiseReceiptAlert(ctx, log, gateRes, out)
	case CategoryListing:
		reply := ListingPrompt
		if event.Image.Caption != "" {
			reply = o.generator.GenerateImageGroundedText(ctx, event.Image.Caption, media.Data, media.MimeType)
		}
		out.State = StateResponded
		o.dispatchAndRecordReply(ctx, log, event.ParticipantID, reply, out)
	default:
		o.dispatchAndRecordReply(ctx, log, event.ParticipantID, UnsureReply, out)
	}
}

func (o *Orchestrator) processMedia(ctx context.Context, log *slog.Logger, event InboundEvent, out *Outcome) {
	media, err := o.resolver.ResolveMedia(ctx, event.Media.MediaRef)
	if err != nil {
		log.Error("media resolution failed, event abandoned",
			slog.String("media_ref", event.Media.MediaRef),
			slog.String("error", err.Error()),
		)
		out.State = StateDoneWithError
		out.Err = fmt.Errorf("resolve %s media: %w", event.ContentType, err)
		return
	}

	o.record(ctx, log, out, TranscriptEntry{
		SenderRole:    RoleUser,
		ParticipantID: event.ParticipantID,
		DisplayName:   event.DisplayName,
		Attachment: &Attachment{
			Data:     media.Data,
			Filename: media.Filename(event.Media.MediaRef),
			MimeType: media.MimeType,
		},
	})
	out.State = StateRecorded

	// Audio and video are archived but never answered.
	out.Terminated = true
	out.State = StateTerminated
}

// SendOperatorReply dispatches a human operator's message and records it
// under the admin role. No gate check applies; the operator replying is the
// override. A dispatch failure is the caller's error, a record failure is not.
func (o *Orchestrator) SendOperatorReply(ctx context.Context, reply OperatorReply) error {
	log := o.log.With(slog.String("participant_id", reply.ParticipantID))

	if err := o.outbound.SendText(ctx, reply.ParticipantID, reply.Content); err != nil {
		return fmt.Errorf("dispatch operator reply: %w", err)
	}

	if _, err := o.recorder.Append(ctx, TranscriptEntry{
		SenderRole:    RoleAdmin,
		ParticipantID: reply.ParticipantID,
		DisplayName:   o.opts.AdminDisplayName,
		Content:       reply.Content,
		Attachment:    reply.Attachment,
	}); err != nil {
		log.Warn("operator reply delivered but not recorded", slog.String("error", err.Error()))
	}
	return nil
}

// dispatchAndRecordReply sends the AI reply and records it. The reply is
// recorded even when the send fails so the transcript keeps what the AI
// produced for the operator to see.
func (o *Orchestrator) dispatchAndRecordReply(ctx context.Context, log *slog.Logger, participantID, reply string, out *Outcome) {
	if err := o.outbound.SendText(ctx, participantID, reply); err != nil {
		log.Error("reply dispatch failed", slog.String("error", err.Error()))
		out.DispatchFailed = true
	}

	o.record(ctx, log, out, TranscriptEntry{
		SenderRole:    RoleAI,
		ParticipantID: participantID,
		DisplayName:   o.opts.BotDisplayName,
		Content:       reply,
	})
	out.State = StateRecordedReply
}

func (o *Orchestrator) raiseReceiptAlert(ctx context.Context, log *slog.Logger, gateRes GateResult, out *Outcome) {
	if gateRes.ConversationID == "" {
		log.Warn("receipt alert skipped, conversation id unknown")
		out.AlertFailed = true
		return
	}
	if err := o.alerts.RaiseAlert(ctx, gateRes.ConversationID, ReceiptAlertReason); err != nil {
		log.Error("receipt alert failed", slog.String("error", err.Error()))
		out.AlertFailed = true
		return
	}
	out.State = StateAlerted
}

func (o *Orchestrator) record(ctx context.Context, log *slog.Logger, out *Outcome, entry TranscriptEntry) {
	if _, err := o.recorder.Append(ctx, entry); err != nil {
		log.Error("transcript record failed",
			slog.String("sender_role", string(entry.SenderRole)),
			slog.String("error", err.Error()),
		)
		out.RecordFailures++
	}
}
