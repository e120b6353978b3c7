package builtin

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

// Catalog bundles the dependencies the builtin skills need. A zero-value
// field disables the skills that require it.
type Catalog struct {
	ChatModel    einomodel.BaseChatModel
	ChatPrompt   string
	SerperConfig SerperConfig
}

// Register wires every builtin skill into the registry. Skills whose
// dependencies are missing are skipped with a log line instead of failing
// startup.
func (c Catalog) Register(ctx context.Context, registry *skillx.Registry) error {
	conversational, err := NewConversationalSkill(ctx, c.ChatModel, c.ChatPrompt)
	if err != nil {
		return fmt.Errorf("build conversational skill: %w", err)
	}
	if err := registry.Register(conversational); err != nil {
		return err
	}

	for _, sk := range []skillx.Skill{
		NewOpenAppSkill(),
		NewRunCommandSkill(),
		NewReadFileSkill(),
		NewWriteFileSkill(),
		NewCalculateSkill(),
	} {
		if err := registry.Register(sk); err != nil {
			return err
		}
	}

	if c.SerperConfig.APIKey != "" {
		search, err := NewWebSearchSkill(c.SerperConfig)
		if err != nil {
			return fmt.Errorf("build web search skill: %w", err)
		}
		if err := registry.Register(search); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("serper api key missing, web_search skill disabled")
	}

	return nil
}
