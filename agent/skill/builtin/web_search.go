package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

const (
	defaultSerperURL     = "https://google.serper.dev/search"
	maxResponseSizeBytes = 2 << 20
	defaultResultCount   = 5
	maxResultCount       = 10
)

type SerperConfig struct {
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	URL     string        `envconfig:"URL" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type SearchOutput struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	AnswerBox struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// WebSearchSkill queries the Serper search API.
type WebSearchSkill struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ skillx.Skill = (*WebSearchSkill)(nil)

func NewWebSearchSkill(cfg SerperConfig) (*WebSearchSkill, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("serper api key is required")
	}

	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = defaultSerperURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebSearchSkill{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *WebSearchSkill) Name() string { return "web_search" }

func (s *WebSearchSkill) Description() string {
	return "Search the web and return the top results with snippets."
}

func (s *WebSearchSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"query":       {Type: skillx.TypeString, Desc: "search query", Required: true},
		"num_results": {Type: skillx.TypeNumber, Desc: "number of results to return", Default: float64(defaultResultCount)},
	}
}

func (s *WebSearchSkill) Invoke(ctx context.Context, params map[string]any) (any, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}

	num := int(numberParam(params, "num_results", defaultResultCount))
	if num <= 0 {
		num = defaultResultCount
	}
	if num > maxResultCount {
		num = maxResultCount
	}

	payload, err := json.Marshal(serperRequest{Q: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := SearchOutput{Query: query}
	if parsed.AnswerBox.Answer != "" {
		out.Answer = parsed.AnswerBox.Answer
	} else if parsed.AnswerBox.Snippet != "" {
		out.Answer = parsed.AnswerBox.Snippet
	}
	for _, item := range parsed.Organic {
		out.Results = append(out.Results, SearchResult(item))
		if len(out.Results) >= num {
			break
		}
	}
	return out, nil
}
