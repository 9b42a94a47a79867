package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImageCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label string
		want  ImageCategory
	}{
		{label: "COMPROBANTE", want: CategoryReceipt},
		{label: "PROPIEDAD", want: CategoryListing},
		{label: "OTRO", want: CategoryOther},
		{label: "comprobante", want: CategoryReceipt},
		{label: "  PROPIEDAD\n", want: CategoryListing},
		{label: "RECIBO", want: CategoryFallback},
		{label: "", want: CategoryFallback},
	}

	for _, tc := range cases {
		got := ParseImageCategory(tc.label)
		if got != tc.want {
			t.Fatalf("label=%q want=%s got=%s", tc.label, tc.want, got)
		}
	}
}

func TestMediaPayloadFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		want string
	}{
		{mime: "image/jpeg", want: "m1.jpg"},
		{mime: "image/png", want: "m1.png"},
		{mime: "audio/ogg; codecs=opus", want: "m1.ogg"},
		{mime: "video/mp4", want: "m1.mp4"},
		{mime: "application/pdf", want: "m1.pdf"},
		{mime: "", want: "m1.bin"},
	}

	for _, tc := range cases {
		p := MediaPayload{MimeType: tc.mime}
		assert.Equal(t, tc.want, p.Filename("m1"), "mime=%q", tc.mime)
	}
}

func TestInboundEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		event   InboundEvent
		wantErr bool
	}{
		{
			name:  "text with body",
			event: InboundEvent{ParticipantID: "1", ContentType: ContentText, Text: TextPayload{Body: "hola"}},
		},
		{
			name:    "text without body",
			event:   InboundEvent{ParticipantID: "1", ContentType: ContentText},
			wantErr: true,
		},
		{
			name:    "image without media ref",
			event:   InboundEvent{ParticipantID: "1", ContentType: ContentImage},
			wantErr: true,
		},
		{
			name:  "audio with media ref",
			event: InboundEvent{ParticipantID: "1", ContentType: ContentAudio, Media: MediaRefPayload{MediaRef: "m"}},
		},
		{
			name:    "video without media ref",
			event:   InboundEvent{ParticipantID: "1", ContentType: ContentVideo},
			wantErr: true,
		},
		{
			name:  "unhandled needs nothing",
			event: InboundEvent{ParticipantID: "1", ContentType: ContentUnhandled},
		},
		{
			name:    "missing participant",
			event:   InboundEvent{ContentType: ContentText, Text: TextPayload{Body: "hola"}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.event.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
