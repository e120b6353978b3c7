package agentnode

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

const (
	recentWindow  = 5
	searchResults = 3
)

// ReadContext loads the user's profile, the recent history window, and any
// semantically related older turns, and renders them into the context string
// the model-facing stages consume.
func ReadContext(ctx context.Context, in *GraphState, memory contractx.Memory) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	profile, err := memory.Profile(ctx, in.Utterance.UserID)
	if err != nil {
		return nil, err
	}
	in.Profile = profile

	recent, err := memory.RecentTurns(ctx, in.Utterance.UserID, recentWindow)
	if err != nil {
		return nil, err
	}
	// RecentTurns is newest-first; the context reads oldest-first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	in.Recent = recent

	hits, err := memory.Search(ctx, in.Utterance.UserID, in.Utterance.Text, searchResults)
	if err != nil {
		log.Debug().Err(err).Str("user_id", in.Utterance.UserID).Msg("history search unavailable")
		hits = nil
	}

	in.MemoryContext = renderContext(profile, recent, hits)
	return in, nil
}

func renderContext(profile contractx.UserProfile, recent []contractx.HistoryTurn, hits []contractx.SearchHit) string {
	var b strings.Builder

	if len(profile.Preferences) > 0 {
		b.WriteString("User preferences:\n")
		writeSortedPairs(&b, profile.Preferences)
	}
	if len(profile.Facts) > 0 {
		b.WriteString("Known facts:\n")
		writeSortedPairs(&b, profile.Facts)
	}

	seen := make(map[string]struct{}, len(recent))
	if len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range recent {
			seen[turn.TurnID] = struct{}{}
			writeTurn(&b, turn)
		}
	}

	related := make([]contractx.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.Turn.TurnID]; dup {
			continue
		}
		related = append(related, hit)
	}
	if len(related) > 0 {
		b.WriteString("Related earlier exchanges:\n")
		for _, hit := range related {
			writeTurn(&b, hit.Turn)
		}
	}

	return strings.TrimSpace(b.String())
}

func writeSortedPairs(b *strings.Builder, kv map[string]string) {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, kv[k])
	}
}

func writeTurn(b *strings.Builder, turn contractx.HistoryTurn) {
	fmt.Fprintf(b, "- user: %s\n  assistant: %s\n", turn.UserMessage, turn.AssistantReply)
}
