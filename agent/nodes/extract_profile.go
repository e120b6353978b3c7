package agentnode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

// ExtractProfile mines the finished turn for durable preferences and facts
// and writes them. Extraction failure never fails the turn; the reply is
// already committed.
func ExtractProfile(ctx context.Context, in *GraphState, extractor contractx.Extractor, memory contractx.Memory) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if extractor == nil {
		return in, nil
	}

	records, err := extractor.Extract(ctx, in.Utterance, in.Reply)
	if err != nil {
		log.Warn().Err(err).Str("user_id", in.Utterance.UserID).Msg("profile extraction failed")
		return in, nil
	}

	for _, rec := range records {
		if err := memory.WriteRecord(ctx, rec); err != nil {
			log.Warn().Err(err).Str("key", rec.Key).Msg("profile record write failed")
		}
	}
	return in, nil
}
