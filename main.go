package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	intentx "github.com/jarvisd/jarvis/agent/intent"
	llmx "github.com/jarvisd/jarvis/agent/llm"
	memoryx "github.com/jarvisd/jarvis/agent/memory"
	orchestratorx "github.com/jarvisd/jarvis/agent/orchestrator"
	personax "github.com/jarvisd/jarvis/agent/persona"
	plannerx "github.com/jarvisd/jarvis/agent/planner"
	promptx "github.com/jarvisd/jarvis/agent/prompt"
	skillx "github.com/jarvisd/jarvis/agent/skill"
	builtinx "github.com/jarvisd/jarvis/agent/skill/builtin"
	configx "github.com/jarvisd/jarvis/pkg/config"
	_ "github.com/jarvisd/jarvis/pkg/logger/autoload"
	openrouterx "github.com/jarvisd/jarvis/pkg/openrouter"
)

type AppConfig struct {
	UserID    string `envconfig:"USER_ID" split_words:"true" default:"local"`
	SessionID string `envconfig:"SESSION_ID" split_words:"true" default:"repl"`
	VectorDir string `envconfig:"VECTOR_DIR" split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("JARVIS")
	prompts := promptx.LoadPromptSet()

	llmCfg, llmErr := configx.New[llmx.Config]("LLM")
	if llmErr != nil {
		log.Warn().Err(llmErr).Msg("llm config incomplete, running without language models")
	}

	var (
		resolverModel  einomodel.BaseChatModel
		extractorModel einomodel.BaseChatModel
		chatModel      einomodel.BaseChatModel
	)
	if llmErr == nil {
		if err := llmCfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid llm config")
		}
		resolverModel = mustChatModel(ctx, llmCfg, llmx.RoleResolver)
		extractorModel = mustChatModel(ctx, llmCfg, llmx.RoleExtractor)
		chatModel = mustChatModel(ctx, llmCfg, llmx.RoleChat)
	}

	structured := buildStructuredStore(ctx)
	vector, embedder := buildVectorBackend(appCfg, llmCfg, llmErr)
	memory := memoryx.NewManager(structured, vector, embedder)
	defer func() {
		if err := memory.Close(); err != nil {
			log.Warn().Err(err).Msg("memory close failed")
		}
	}()

	registry := skillx.NewRegistry()
	serperCfg := configx.MustNew[builtinx.SerperConfig]("SERPER")
	catalog := builtinx.Catalog{
		ChatModel:    chatModel,
		ChatPrompt:   prompts.Chat,
		SerperConfig: *serperCfg,
	}
	if err := catalog.Register(ctx, registry); err != nil {
		log.Fatal().Err(err).Msg("failed to register builtin skills")
	}

	resolver, err := intentx.NewResolver(ctx, resolverModel, prompts.Resolver, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build resolver")
	}
	planner, err := plannerx.New(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build planner")
	}
	dispatcher, err := skillx.NewDispatcher(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dispatcher")
	}
	extractor, err := personax.NewExtractor(ctx, extractorModel, prompts.Extractor)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build extractor")
	}

	opts := []orchestratorx.Option{}
	if chatModel != nil {
		chatRunner, err := llmx.CompileChatGraph(ctx, chatModel, "main.reply_graph")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to compile reply graph")
		}
		opts = append(opts, orchestratorx.WithChatRunner(chatRunner, prompts.Chat))
	}

	agent, err := orchestratorx.New(memory, resolver, planner, dispatcher, extractor, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	runREPL(ctx, agent, appCfg)
}

func mustChatModel(ctx context.Context, cfg *llmx.Config, role llmx.Role) einomodel.BaseChatModel {
	providerCfg := cfg.OpenRouterFor(role)
	m, err := providerCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("role", string(role)).Msg("failed to create chat model")
	}
	return m
}

func buildStructuredStore(ctx context.Context) memoryx.StructuredStore {
	pgCfg, err := configx.New[memoryx.PostgresConfig]("POSTGRES")
	if err != nil {
		log.Warn().Err(err).Msg("postgres config missing, using in-memory store")
		return memoryx.NewInMemoryStore()
	}

	store, err := memoryx.NewPostgresStore(*pgCfg)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, using in-memory store")
		return memoryx.NewInMemoryStore()
	}
	if err := store.InitSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("postgres schema init failed, using in-memory store")
		_ = store.Close()
		return memoryx.NewInMemoryStore()
	}
	return store
}

func buildVectorBackend(appCfg *AppConfig, llmCfg *llmx.Config, llmErr error) (memoryx.VectorIndex, memoryx.Embedder) {
	if llmErr != nil {
		return nil, nil
	}

	client := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleChat))
	if client == nil {
		return nil, nil
	}
	embedder := memoryx.NewOpenAIEmbedder(client, llmCfg.EmbeddingModel)

	if dir := strings.TrimSpace(appCfg.VectorDir); dir != "" {
		index, err := memoryx.NewPersistentChromemIndex(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("persistent vector index unavailable, using in-memory index")
			return memoryx.NewChromemIndex(), embedder
		}
		return index, embedder
	}
	return memoryx.NewChromemIndex(), embedder
}

const (
	searchLimit  = 5
	historyLimit = 10
)

func runREPL(ctx context.Context, agent *orchestratorx.Orchestrator, appCfg *AppConfig) {
	fmt.Println("jarvis ready. Type a request, \"/search <query>\", \"/history\", \"/clear\", or \"exit\" to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == "/clear" {
			if err := agent.ClearHistory(ctx, appCfg.UserID); err != nil {
				fmt.Println("could not clear history:", err)
				continue
			}
			fmt.Println("history cleared")
			continue
		}
		if query, ok := strings.CutPrefix(line, "/search "); ok {
			hits, err := agent.SearchHistory(ctx, appCfg.UserID, strings.TrimSpace(query), searchLimit)
			if err != nil {
				fmt.Println("could not search history:", err)
				continue
			}
			fmt.Println(formatSearchHits(hits))
			continue
		}
		if line == "/history" {
			turns, err := agent.History(ctx, appCfg.UserID, historyLimit)
			if err != nil {
				fmt.Println("could not read history:", err)
				continue
			}
			fmt.Println(formatHistory(turns))
			continue
		}

		result, err := agent.HandleMessage(ctx, appCfg.UserID, appCfg.SessionID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(result.Reply)
	}

	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin read failed")
	}
	fmt.Println("bye")
}

func formatSearchHits(hits []contractx.SearchHit) string {
	if len(hits) == 0 {
		return "no matching history"
	}
	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [%.2f] %s\n", i+1, hit.Score, hit.Turn.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "   you: %s\n", hit.Turn.UserMessage)
		fmt.Fprintf(&b, "   jarvis: %s", hit.Turn.AssistantReply)
		if i < len(hits)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatHistory(turns []contractx.HistoryTurn) string {
	if len(turns) == 0 {
		return "no history yet"
	}
	var b strings.Builder
	for i, turn := range turns {
		fmt.Fprintf(&b, "%s", turn.CreatedAt.Format("2006-01-02 15:04"))
		if turn.IntentLabel != "" {
			fmt.Fprintf(&b, " (%s)", turn.IntentLabel)
		}
		b.WriteByte('\n')
		fmt.Fprintf(&b, "  you: %s\n", turn.UserMessage)
		fmt.Fprintf(&b, "  jarvis: %s", turn.AssistantReply)
		if i < len(turns)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
