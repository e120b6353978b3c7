package agentnode

import (
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	now := nowFn().UTC()
	return &GraphState{
		Utterance: contractx.Utterance{
			ID:         uuid.NewString(),
			UserID:     userID,
			SessionID:  strings.TrimSpace(in.SessionID),
			Text:       text,
			ReceivedAt: now,
		},
		Now: now,
	}, nil
}
