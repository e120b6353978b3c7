package agentnode

import (
	"context"
	"fmt"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

func ResolveIntent(ctx context.Context, in *GraphState, resolver contractx.Resolver) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	intents, err := resolver.Resolve(ctx, in.Utterance, in.Recent)
	if err != nil {
		return nil, err
	}
	in.Intents = intents
	return in, nil
}
