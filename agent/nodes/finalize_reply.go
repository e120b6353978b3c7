package agentnode

import (
	"fmt"
	"strings"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Plan == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is missing a plan", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		reply = "I wasn't able to produce a result for that."
	}
	return GraphOutput{
		Reply:  reply,
		TurnID: in.Plan.TurnID,
		Plan:   in.Plan,
	}, nil
}
