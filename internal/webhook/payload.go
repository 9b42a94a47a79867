package webhook

import (
	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
)

// DefaultDisplayName is used when the delivery carries no contact profile.
const DefaultDisplayName = "Usuario"

// envelope is the Meta webhook delivery format. Only the fields this service
// reads are declared.
type envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	Changes []change `json:"changes"`
}

type change struct {
	Value changeValue `json:"value"`
}

type changeValue struct {
	Contacts []contact `json:"contacts"`
	Messages []message `json:"messages"`
}

type contact struct {
	Profile profile `json:"profile"`
}

type profile struct {
	Name string `json:"name"`
}

type message struct {
	From  string      `json:"from"`
	Type  string      `json:"type"`
	Text  *textValue  `json:"text"`
	Image *mediaValue `json:"image"`
	Audio *mediaValue `json:"audio"`
	Video *mediaValue `json:"video"`
}

type textValue struct {
	Body string `json:"body"`
}

type mediaValue struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

// firstMessage digs the first message and its contact name out of the
// delivery. Status-only deliveries have no message.
func (e envelope) firstMessage() (message, string, bool) {
	for _, en := range e.Entry {
		for _, ch := range en.Changes {
			if len(ch.Value.Messages) == 0 {
				continue
			}
			name := DefaultDisplayName
			if len(ch.Value.Contacts) > 0 && ch.Value.Contacts[0].Profile.Name != "" {
				name = ch.Value.Contacts[0].Profile.Name
			}
			return ch.Value.Messages[0], name, true
		}
	}
	return message{}, "", false
}

// toEvent normalizes one platform message into the orchestrator's envelope.
func toEvent(id string, msg message, displayName string) orchestrator.InboundEvent {
	event := orchestrator.InboundEvent{
		ID:            id,
		ParticipantID: msg.From,
		DisplayName:   displayName,
	}

	switch {
	case msg.Type == "text" && msg.Text != nil:
		event.ContentType = orchestrator.ContentText
		event.Text = orchestrator.TextPayload{Body: msg.Text.Body}
	case msg.Type == "image" && msg.Image != nil:
		event.ContentType = orchestrator.ContentImage
		event.Image = orchestrator.ImagePayload{MediaRef: msg.Image.ID, Caption: msg.Image.Caption}
	case msg.Type == "audio" && msg.Audio != nil:
		event.ContentType = orchestrator.ContentAudio
		event.Media = orchestrator.MediaRefPayload{MediaRef: msg.Audio.ID}
	case msg.Type == "video" && msg.Video != nil:
		event.ContentType = orchestrator.ContentVideo
		event.Media = orchestrator.MediaRefPayload{MediaRef: msg.Video.ID}
	default:
		event.ContentType = orchestrator.ContentUnhandled
	}
	return event
}
