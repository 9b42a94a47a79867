// Package orchestrator drives the processing of one inbound messaging event:
// it decides whether the AI or a human operator answers, routes the event by
// content type, invokes the response strategy, and sequences the side effects
// (persist, send, alert) with defined failure behavior.
package orchestrator

import (
	"fmt"
	"strings"
)

// ContentType classifies the payload of an inbound event.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentImage     ContentType = "image"
	ContentAudio     ContentType = "audio"
	ContentVideo     ContentType = "video"
	ContentUnhandled ContentType = "unhandled"
)

// SenderRole tags who authored a transcript entry.
type SenderRole string

const (
	RoleUser  SenderRole = "user"
	RoleAI    SenderRole = "ai"
	RoleAdmin SenderRole = "admin"
)

// ImageCategory is the closed label set produced by image classification.
type ImageCategory string

const (
	CategoryReceipt ImageCategory = "COMPROBANTE"
	CategoryListing ImageCategory = "PROPIEDAD"
	CategoryOther   ImageCategory = "OTRO"
)

// CategoryFallback is the category assigned when classification is ambiguous
// or fails; classification never surfaces an error to the image branch.
const CategoryFallback = CategoryOther

// ParseImageCategory maps a raw classifier label onto the closed set.
func ParseImageCategory(label string) ImageCategory {
	switch ImageCategory(strings.ToUpper(strings.TrimSpace(label))) {
	case CategoryReceipt:
		return CategoryReceipt
	case CategoryListing:
		return CategoryListing
	case CategoryOther:
		return CategoryOther
	default:
		return CategoryFallback
	}
}

// TextPayload carries the body of a text event.
type TextPayload struct {
	Body string
}

// ImagePayload carries the media reference and optional caption of an image event.
type ImagePayload struct {
	MediaRef string
	Caption  string
}

// MediaRefPayload carries the media reference of an audio or video event.
type MediaRefPayload struct {
	MediaRef string
}

// InboundEvent is the normalized envelope for one webhook delivery.
// Exactly one payload field matching ContentType is populated.
type InboundEvent struct {
	ID            string
	ParticipantID string
	DisplayName   string
	ContentType   ContentType
	Text          TextPayload
	Image         ImagePayload
	Media         MediaRefPayload
}

// Validate checks the payload-variant invariant for the event.
func (e InboundEvent) Validate() error {
	if strings.TrimSpace(e.ParticipantID) == "" {
		return fmt.Errorf("participant id is required")
	}
	switch e.ContentType {
	case ContentText:
		if e.Text.Body == "" {
			return fmt.Errorf("text event has empty body")
		}
	case ContentImage:
		if e.Image.MediaRef == "" {
			return fmt.Errorf("image event has no media reference")
		}
	case ContentAudio, ContentVideo:
		if e.Media.MediaRef == "" {
			return fmt.Errorf("%s event has no media reference", e.ContentType)
		}
	case ContentUnhandled:
	default:
		return fmt.Errorf("unknown content type: %s", e.ContentType)
	}
	return nil
}

// Attachment is a binary payload embedded in a transcript entry.
type Attachment struct {
	Data     []byte
	Filename string
	MimeType string
}

// TranscriptEntry is one immutable record of a message exchanged in a
// conversation, tagged by sender role. Append-only, never mutated.
type TranscriptEntry struct {
	SenderRole    SenderRole
	ParticipantID string
	DisplayName   string
	Content       string
	Attachment    *Attachment
}

// MediaPayload is a downloaded platform binary. It lives for the duration of
// one event's processing and is not persisted standalone.
type MediaPayload struct {
	Data     []byte
	MimeType string
}

// Filename derives an attachment filename for the payload from its media
// reference and declared mime type.
func (p MediaPayload) Filename(mediaRef string) string {
	return mediaRef + extensionForMime(p.MimeType)
}

func extensionForMime(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/aac":
		return ".aac"
	case "audio/amr":
		return ".amr"
	case "video/mp4":
		return ".mp4"
	case "video/3gpp":
		return ".3gp"
	}
	if idx := strings.Index(base, "/"); idx >= 0 && idx+1 < len(base) {
		return "." + base[idx+1:]
	}
	return ".bin"
}

// GateResult is the conversation-control decision for one event.
type GateResult struct {
	HumanControlled bool
	ConversationID  string
	Exists          bool
	// Degraded marks a failed lookup that fell back to the AI-active default.
	Degraded bool
}

// State names a position in the per-event state machine.
type State string

const (
	StateReceived      State = "received"
	StateRecorded      State = "recorded"
	StateGated         State = "gated"
	StateTerminated    State = "terminated"
	StateRouted        State = "routed"
	StateResponded     State = "responded"
	StateRecordedReply State = "recorded_reply"
	StateAlerted       State = "alerted"
	StateDone          State = "done"
	StateDoneWithError State = "done_with_error"
)

// Outcome summarizes one event's processing for logging and observability.
// No field in here ever blocks the upstream acknowledgment.
type Outcome struct {
	State          State
	Terminated     bool
	GateDegraded   bool
	RecordFailures int
	DispatchFailed bool
	AlertFailed    bool
	Category       ImageCategory
	Err            error
}

// OperatorReply is an operator-initiated outbound message. Sending as admin is
// itself the override signal, so no gate check applies.
type OperatorReply struct {
	ParticipantID string
	Content       string
	Attachment    *Attachment
}
