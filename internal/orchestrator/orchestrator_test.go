package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct {
	result GateResult
}

func (f *fakeGate) Check(ctx context.Context, participantID string) GateResult {
	return f.result
}

type fakeRecorder struct {
	calls *[]string
	fail  bool
	saved []TranscriptEntry
}

func (f *fakeRecorder) Append(ctx context.Context, entry TranscriptEntry) (string, error) {
	*f.calls = append(*f.calls, "record:"+string(entry.SenderRole))
	if f.fail {
		return "", errors.New("backend down")
	}
	f.saved = append(f.saved, entry)
	return "msg-1", nil
}

type fakeResolver struct {
	calls   *[]string
	fail    bool
	payload MediaPayload
}

func (f *fakeResolver) ResolveMedia(ctx context.Context, mediaRef string) (MediaPayload, error) {
	*f.calls = append(*f.calls, "resolve")
	if f.fail {
		return MediaPayload{}, errors.New("media gone")
	}
	return f.payload, nil
}

type fakeGenerator struct {
	calls    *[]string
	reply    string
	category ImageCategory
	panics   bool
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) string {
	*f.calls = append(*f.calls, "generate")
	if f.panics {
		panic("generator blew up")
	}
	return f.reply
}

func (f *fakeGenerator) GenerateGroundedText(ctx context.Context, prompt string) string {
	*f.calls = append(*f.calls, "generate_grounded")
	return f.reply
}

func (f *fakeGenerator) ClassifyImage(ctx context.Context, data []byte, mimeType string) ImageCategory {
	*f.calls = append(*f.calls, "classify")
	return f.category
}

func (f *fakeGenerator) GenerateImageGroundedText(ctx context.Context, caption string, data []byte, mimeType string) string {
	*f.calls = append(*f.calls, "generate_image")
	return f.reply
}

type fakeDispatcher struct {
	calls *[]string
	fail  bool
	sent  []string
}

func (f *fakeDispatcher) SendText(ctx context.Context, to, body string) error {
	*f.calls = append(*f.calls, "send")
	if f.fail {
		return errors.New("platform rejected")
	}
	f.sent = append(f.sent, body)
	return nil
}

type fakeAlerter struct {
	calls  *[]string
	fail   bool
	raised []string
}

func (f *fakeAlerter) RaiseAlert(ctx context.Context, conversationID, reason string) error {
	*f.calls = append(*f.calls, "alert")
	if f.fail {
		return errors.New("alerts down")
	}
	f.raised = append(f.raised, conversationID)
	return nil
}

type fixture struct {
	calls     []string
	gate      *fakeGate
	recorder  *fakeRecorder
	resolver  *fakeResolver
	generator *fakeGenerator
	outbound  *fakeDispatcher
	alerts    *fakeAlerter
}

func newFixture() *fixture {
	f := &fixture{}
	f.gate = &fakeGate{result: GateResult{ConversationID: "conv-1", Exists: true}}
	f.recorder = &fakeRecorder{calls: &f.calls}
	f.resolver = &fakeResolver{calls: &f.calls, payload: MediaPayload{Data: []byte{1, 2}, MimeType: "image/jpeg"}}
	f.generator = &fakeGenerator{calls: &f.calls, reply: "hola", category: CategoryOther}
	f.outbound = &fakeDispatcher{calls: &f.calls}
	f.alerts = &fakeAlerter{calls: &f.calls}
	return f
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	return New(nil, f.gate, f.recorder, f.resolver, f.generator, f.outbound, f.alerts, opts)
}

func textEvent() InboundEvent {
	return InboundEvent{
		ID:            "evt-1",
		ParticipantID: "56911111111",
		DisplayName:   "Ana",
		ContentType:   ContentText,
		Text:          TextPayload{Body: "hola, tengo una consulta"},
	}
}

func imageEvent(caption string) InboundEvent {
	return InboundEvent{
		ID:            "evt-2",
		ParticipantID: "56922222222",
		DisplayName:   "Luis",
		ContentType:   ContentImage,
		Image:         ImagePayload{MediaRef: "media-9", Caption: caption},
	}
}

func TestProcessText(t *testing.T) {
	t.Parallel()

	t.Run("happy path records, generates, sends, records reply in order", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.Equal(t, StateDone, out.State)
		assert.False(t, out.Terminated)
		assert.Equal(t, []string{"record:user", "generate", "send", "record:ai"}, f.calls)
		require.Len(t, f.recorder.saved, 2)
		assert.Equal(t, "hola, tengo una consulta", f.recorder.saved[0].Content)
		assert.Equal(t, "Ana", f.recorder.saved[0].DisplayName)
		assert.Equal(t, RoleAI, f.recorder.saved[1].SenderRole)
		assert.Equal(t, "hola", f.recorder.saved[1].Content)
	})

	t.Run("human control records inbound then stops", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.gate.result = GateResult{HumanControlled: true, ConversationID: "conv-1", Exists: true}
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.True(t, out.Terminated)
		assert.Equal(t, StateDone, out.State)
		assert.Equal(t, []string{"record:user"}, f.calls)
	})

	t.Run("grounded option routes through grounded generation", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.orchestrator(Options{GroundedGeneration: true}).Process(context.Background(), textEvent())

		assert.Contains(t, f.calls, "generate_grounded")
		assert.NotContains(t, f.calls, "generate")
	})

	t.Run("record failure does not block the reply", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.recorder.fail = true
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.Equal(t, StateDone, out.State)
		assert.Equal(t, 2, out.RecordFailures)
		assert.Contains(t, f.calls, "send")
	})

	t.Run("dispatch failure is flagged and the reply still recorded", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.outbound.fail = true
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.Equal(t, StateDone, out.State)
		assert.True(t, out.DispatchFailed)
		assert.Equal(t, []string{"record:user", "generate", "send", "record:ai"}, f.calls)
	})

	t.Run("degraded gate keeps the ai active", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.gate.result = GateResult{HumanControlled: false, Degraded: true}
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.True(t, out.GateDegraded)
		assert.False(t, out.Terminated)
		assert.Contains(t, f.calls, "send")
	})

	t.Run("collaborator panic is contained", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.panics = true
		out := f.orchestrator(Options{}).Process(context.Background(), textEvent())

		assert.Equal(t, StateDoneWithError, out.State)
		assert.Error(t, out.Err)
	})
}

func TestProcessImage(t *testing.T) {
	t.Parallel()

	t.Run("receipt sends fixed ack, records it, raises alert", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryReceipt
		out := f.orchestrator(Options{}).Process(context.Background(), imageEvent(""))

		assert.Equal(t, StateDone, out.State)
		assert.Equal(t, CategoryReceipt, out.Category)
		assert.Equal(t, []string{"resolve", "record:user", "classify", "send", "record:ai", "alert"}, f.calls)
		assert.Equal(t, []string{ReceiptAck}, f.outbound.sent)
		assert.Equal(t, []string{"conv-1"}, f.alerts.raised)
	})

	t.Run("receipt without conversation id skips the alert", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryReceipt
		f.gate.result = GateResult{}
		out := f.orchestrator(Options{}).Process(context.Background(), imageEvent(""))

		assert.True(t, out.AlertFailed)
		assert.NotContains(t, f.calls, "alert")
		assert.Equal(t, []string{ReceiptAck}, f.outbound.sent)
	})

	t.Run("receipt alert failure does not fail the event", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryReceipt
		f.alerts.fail = true
		out := f.orchestrator(Options{}).Process(context.Background(), imageEvent(""))

		assert.Equal(t, StateDone, out.State)
		assert.True(t, out.AlertFailed)
	})

	t.Run("listing without caption sends the fixed prompt", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryListing
		f.orchestrator(Options{}).Process(context.Background(), imageEvent(""))

		assert.Equal(t, []string{ListingPrompt}, f.outbound.sent)
		assert.NotContains(t, f.calls, "generate_image")
	})

	t.Run("listing with caption answers from the image", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryListing
		f.generator.reply = "la propiedad tiene tres dormitorios"
		f.orchestrator(Options{}).Process(context.Background(), imageEvent("¿cuántos dormitorios?"))

		assert.Contains(t, f.calls, "generate_image")
		assert.Equal(t, []string{"la propiedad tiene tres dormitorios"}, f.outbound.sent)
		// The generated answer is what lands in the transcript, not the prompt text.
		last := f.recorder.saved[len(f.recorder.saved)-1]
		assert.Equal(t, "la propiedad tiene tres dormitorios", last.Content)
	})

	t.Run("other category sends the unsure reply", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.generator.category = CategoryOther
		f.orchestrator(Options{}).Process(context.Background(), imageEvent(""))

		assert.Equal(t, []string{UnsureReply}, f.outbound.sent)
	})

	t.Run("resolve failure abandons the branch", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.resolver.fail = true
		out := f.orchestrator(Options{}).Process(context.Background(), imageEvent("hola"))

		assert.Equal(t, StateDoneWithError, out.State)
		assert.Error(t, out.Err)
		assert.Equal(t, []string{"resolve"}, f.calls)
	})

	t.Run("human control records the image then stops before classification", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.gate.result = GateResult{HumanControlled: true, ConversationID: "conv-1", Exists: true}
		out := f.orchestrator(Options{}).Process(context.Background(), imageEvent("mira"))

		assert.True(t, out.Terminated)
		assert.Equal(t, []string{"resolve", "record:user"}, f.calls)
		require.Len(t, f.recorder.saved, 1)
		require.NotNil(t, f.recorder.saved[0].Attachment)
		assert.Equal(t, "media-9.jpg", f.recorder.saved[0].Attachment.Filename)
	})
}

func TestProcessMedia(t *testing.T) {
	t.Parallel()

	for _, ct := range []ContentType{ContentAudio, ContentVideo} {
		t.Run(string(ct)+" is archived and never answered", func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.resolver.payload = MediaPayload{Data: []byte{7}, MimeType: "audio/ogg"}
			out := f.orchestrator(Options{}).Process(context.Background(), InboundEvent{
				ID:            "evt-3",
				ParticipantID: "56933333333",
				ContentType:   ct,
				Media:         MediaRefPayload{MediaRef: "media-3"},
			})

			assert.True(t, out.Terminated)
			assert.Equal(t, StateDone, out.State)
			assert.Equal(t, []string{"resolve", "record:user"}, f.calls)
			require.NotNil(t, f.recorder.saved[0].Attachment)
		})
	}
}

func TestProcessUnhandled(t *testing.T) {
	t.Parallel()

	f := newFixture()
	out := f.orchestrator(Options{}).Process(context.Background(), InboundEvent{
		ID:            "evt-4",
		ParticipantID: "56944444444",
		ContentType:   ContentUnhandled,
	})

	assert.Equal(t, StateDone, out.State)
	assert.Empty(t, f.calls)
}

func TestProcessInvalidEvent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	out := f.orchestrator(Options{}).Process(context.Background(), InboundEvent{
		ID:          "evt-5",
		ContentType: ContentText,
	})

	assert.Equal(t, StateDoneWithError, out.State)
	assert.Error(t, out.Err)
	assert.Empty(t, f.calls)
}

func TestSendOperatorReply(t *testing.T) {
	t.Parallel()

	t.Run("dispatches then records under the admin role without a gate check", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.gate.result = GateResult{HumanControlled: true, Exists: true}
		err := f.orchestrator(Options{AdminDisplayName: "soporte"}).SendOperatorReply(context.Background(), OperatorReply{
			ParticipantID: "56955555555",
			Content:       "te llamo en 5 minutos",
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"send", "record:admin"}, f.calls)
		assert.Equal(t, "soporte", f.recorder.saved[0].DisplayName)
	})

	t.Run("dispatch failure is the caller's error and nothing is recorded", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.outbound.fail = true
		err := f.orchestrator(Options{}).SendOperatorReply(context.Background(), OperatorReply{
			ParticipantID: "56955555555",
			Content:       "hola",
		})

		assert.Error(t, err)
		assert.Equal(t, []string{"send"}, f.calls)
	})

	t.Run("record failure does not undo the delivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.recorder.fail = true
		err := f.orchestrator(Options{}).SendOperatorReply(context.Background(), OperatorReply{
			ParticipantID: "56955555555",
			Content:       "hola",
		})

		assert.NoError(t, err)
	})
}
