package intent

import (
	"regexp"
	"strings"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

// Rule-based classification, tried before the model. Mirrors how users phrase
// the handful of local skills; everything else is conversational.

type clause struct {
	text          string
	dependsOnPrev bool
}

var sequentialSeparators = []string{" and then ", " then ", " after that "}

// splitClauses breaks an utterance into ordered clauses. Sequential
// separators mark the later clause as dependent on the previous one;
// plain conjunctions split only when both sides classify as actionable,
// so "search for fish and chips" stays one clause.
func splitClauses(text string) []clause {
	parts := []clause{{text: strings.TrimSpace(text)}}

	for _, sep := range sequentialSeparators {
		next := make([]clause, 0, len(parts))
		for _, c := range parts {
			pieces := strings.Split(c.text, sep)
			for i, piece := range pieces {
				piece = strings.TrimSpace(piece)
				if piece == "" {
					continue
				}
				next = append(next, clause{
					text:          piece,
					dependsOnPrev: c.dependsOnPrev && i == 0 || i > 0,
				})
			}
		}
		parts = next
	}

	out := make([]clause, 0, len(parts))
	for _, c := range parts {
		out = append(out, splitConjunctive(c)...)
	}
	return out
}

func splitConjunctive(c clause) []clause {
	pieces := strings.Split(c.text, " and ")
	if len(pieces) < 2 {
		return []clause{c}
	}

	for _, piece := range pieces {
		if !isActionable(classifyClause(strings.TrimSpace(piece))) {
			return []clause{c}
		}
	}

	out := make([]clause, 0, len(pieces))
	for i, piece := range pieces {
		out = append(out, clause{
			text:          strings.TrimSpace(piece),
			dependsOnPrev: c.dependsOnPrev && i == 0,
		})
	}
	return out
}

func isActionable(in contractx.Intent) bool {
	return in.Label != contractx.IntentConversational
}

var (
	filePathPattern   = regexp.MustCompile(`(?:"([^"]+\.\w+)"|'([^']+\.\w+)'|(\S*[/\\]\S+\.\w+)|(\S+\.(?:txt|py|go|json|md|yaml|yml|xml|html|css|js|java|log|csv)))`)
	arithmeticPattern = regexp.MustCompile(`^\s*[\d\s\+\-\*/%\^\(\)\.]+\s*$`)
	leadingArticles   = []string{"the ", "a ", "an ", "my "}
)

// classifyClause applies keyword heuristics to one clause and returns an
// intent with a rule-calibrated confidence. Unmatched text becomes a
// conversational intent at 0.5, below any sensible threshold, which routes
// it to the model.
func classifyClause(text string) contractx.Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return conversationalIntent(text)
	}

	if arithmeticPattern.MatchString(lower) && strings.ContainsAny(lower, "+-*/%^") {
		return contractx.Intent{
			Label:      "calculate",
			Confidence: 0.95,
			Slots:      []contractx.Slot{{Name: "expression", Value: strings.TrimSpace(text)}},
		}
	}

	if app, ok := afterKeyword(lower, "open ", "launch ", "start "); ok {
		return contractx.Intent{
			Label:      "open_app",
			Confidence: 0.9,
			Slots:      []contractx.Slot{{Name: "app_name", Value: firstWords(app, 2)}},
		}
	}

	if q, ok := afterKeyword(lower, "play "); ok {
		return contractx.Intent{
			Label:      "play_media",
			Confidence: 0.95,
			Slots:      []contractx.Slot{{Name: "query", Value: q}},
		}
	}

	if q, ok := afterKeyword(lower, "search for ", "search ", "look up ", "google ", "find "); ok {
		return contractx.Intent{
			Label:      "web_search",
			Confidence: 0.85,
			Slots:      []contractx.Slot{{Name: "query", Value: q}},
		}
	}

	if cmd, ok := afterKeyword(lower, "run ", "execute "); ok {
		return contractx.Intent{
			Label:      "run_command",
			Confidence: 0.9,
			Slots:      []contractx.Slot{{Name: "command", Value: cmd}},
		}
	}
	if strings.HasPrefix(text, "$") || strings.HasPrefix(text, "`") {
		return contractx.Intent{
			Label:      "run_command",
			Confidence: 0.9,
			Slots:      []contractx.Slot{{Name: "command", Value: strings.Trim(text, "$` ")}},
		}
	}

	if hasAny(lower, "read ", "show ", "display ", "open file") {
		if path := extractFilePath(text); path != "" {
			return contractx.Intent{
				Label:      "read_file",
				Confidence: 0.8,
				Slots:      []contractx.Slot{{Name: "file_path", Value: path}},
			}
		}
	}

	if hasAny(lower, "write ", "create file", "save to ") {
		if path := extractFilePath(text); path != "" {
			return contractx.Intent{
				Label:      "write_file",
				Confidence: 0.6,
				Slots:      []contractx.Slot{{Name: "file_path", Value: path}},
			}
		}
	}

	return conversationalIntent(text)
}

func conversationalIntent(text string) contractx.Intent {
	return contractx.Intent{
		Label:      contractx.IntentConversational,
		Confidence: 0.5,
		Slots:      []contractx.Slot{{Name: "text", Value: strings.TrimSpace(text)}},
	}
}

func afterKeyword(lower string, keywords ...string) (string, bool) {
	for _, kw := range keywords {
		idx := strings.Index(lower, kw)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(lower[idx+len(kw):])
		for _, article := range leadingArticles {
			rest = strings.TrimPrefix(rest, article)
		}
		if rest != "" {
			return rest, true
		}
	}
	return "", false
}

func hasAny(lower string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func extractFilePath(text string) string {
	m := filePathPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
