package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/resolver.txt
	resolverRaw string

	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/chat.txt
	chatRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Resolver  string
	Extractor string
	Chat      string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Resolver:  strings.TrimSpace(resolverRaw),
		Extractor: strings.TrimSpace(extractorRaw),
		Chat:      strings.TrimSpace(chatRaw),
	}
}
