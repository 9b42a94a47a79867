// Package gate decides per event whether the AI responds or a human operator
// has taken over the conversation.
package gate

import (
	"context"
	"log/slog"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/transcript"
)

// FailOpenHumanControlled is the answer when the backend lookup fails: the AI
// stays active so a backend outage degrades response quality, not liveness.
const FailOpenHumanControlled = false

// ConversationFetcher looks up conversation state in the persistence backend.
type ConversationFetcher interface {
	FetchConversation(ctx context.Context, participantID string) (transcript.ConversationState, error)
}

// Gate answers the control question for a conversation. No caching; every
// event asks the backend so an operator takeover applies immediately.
type Gate struct {
	log     *slog.Logger
	backend ConversationFetcher
}

func New(log *slog.Logger, backend ConversationFetcher) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		log:     log.With(slog.String("service", "gate")),
		backend: backend,
	}
}

// Check resolves who controls the conversation for this participant.
// Unknown participants get the AI; lookup failures fall back to the AI with
// the result marked degraded.
func (g *Gate) Check(ctx context.Context, participantID string) orchestrator.GateResult {
	state, err := g.backend.FetchConversation(ctx, participantID)
	if err != nil {
		g.log.Warn("conversation lookup failed, assuming ai control",
			slog.String("participant_id", participantID),
			slog.String("error", err.Error()),
		)
		return orchestrator.GateResult{
			HumanControlled: FailOpenHumanControlled,
			Degraded:        true,
		}
	}

	if !state.Exists {
		return orchestrator.GateResult{HumanControlled: false}
	}

	return orchestrator.GateResult{
		HumanControlled: state.HumanOverride,
		ConversationID:  state.ID,
		Exists:          true,
	}
}
