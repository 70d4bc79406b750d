package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/poolmind/poolmind/internal/cases"
	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

// Client calls OpenAI-compatible chat-completions endpoints with a single
// function tool per request. Propose and Assess share the transport: the
// primary provider, then the secondary, behind one circuit breaker for the
// advisory as a whole.
type Client struct {
	cfg        Config
	httpClient *http.Client
	memory     cases.Store
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds an advisory client. memory may be nil, in which case no
// precedent is recalled into prompts.
func NewClient(cfg Config, memory cases.Store) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		memory:     memory,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "oracle",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("oracle breaker state change")
			},
		}),
	}
}

// Propose asks the advisory for a strategy over the given opportunities and
// validates the reply against them. Any transport, schema, or validation
// failure is returned so the caller can fall back.
func (c *Client) Propose(ctx context.Context, pool ledger.PoolMetrics, snap domain.Snapshot, opps []domain.Opportunity) (domain.Proposal, error) {
	if c.cfg.APIKey == "" {
		return domain.Proposal{}, ErrNotConfigured
	}

	precedent := recallPrecedent(ctx, c.memory, pool, opps)
	user := strategyUserPrompt(pool, snap, opps, precedent)

	args, err := c.functionCall(ctx, strategySystemPrompt, user, strategyTool)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("strategy call: %w", err)
	}

	var proposal domain.Proposal
	if err := json.Unmarshal(args, &proposal); err != nil {
		return domain.Proposal{}, fmt.Errorf("decode strategy: %w", err)
	}
	if err := proposal.Validate(len(opps)); err != nil {
		return domain.Proposal{}, fmt.Errorf("invalid strategy: %w", err)
	}
	return proposal, nil
}

// Assess asks the advisory to score a proposal from 1 (lowest risk) to 10.
func (c *Client) Assess(ctx context.Context, pool ledger.PoolMetrics, proposal domain.Proposal, opps []domain.Opportunity) (domain.Assessment, error) {
	if c.cfg.APIKey == "" {
		return domain.Assessment{}, ErrNotConfigured
	}

	user := riskUserPrompt(pool, proposal, selectedOpportunities(proposal, opps))

	args, err := c.functionCall(ctx, riskSystemPrompt, user, riskTool)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("risk call: %w", err)
	}

	var assessment domain.Assessment
	if err := json.Unmarshal(args, &assessment); err != nil {
		return domain.Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	if assessment.Score < 1 || assessment.Score > 10 {
		return domain.Assessment{}, fmt.Errorf("risk score %d out of range", assessment.Score)
	}
	return assessment, nil
}

// provider is one advisory endpoint in the chain.
type provider struct {
	baseURL string
	apiKey  string
	model   string
}

// providers returns the chain to try in order. Secondary fields left empty
// inherit from the primary, so a lone FallbackModel reuses the primary
// endpoint while a full secondary config reaches a different vendor.
func (c *Client) providers() []provider {
	primary := provider{baseURL: c.cfg.BaseURL, apiKey: c.cfg.APIKey, model: c.cfg.Model}

	secondary := provider{
		baseURL: c.cfg.SecondaryBaseURL,
		apiKey:  c.cfg.SecondaryAPIKey,
		model:   c.cfg.FallbackModel,
	}
	if secondary == (provider{}) {
		return []provider{primary}
	}
	if secondary.baseURL == "" {
		secondary.baseURL = primary.baseURL
	}
	if secondary.apiKey == "" {
		secondary.apiKey = primary.apiKey
	}
	if secondary.model == "" {
		secondary.model = primary.model
	}
	if secondary == primary {
		return []provider{primary}
	}
	return []provider{primary, secondary}
}

// functionCall tries each configured provider in order and returns the first
// successful tool-call arguments payload.
func (c *Client) functionCall(ctx context.Context, system, user string, tool chatTool) (json.RawMessage, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for _, p := range c.providers() {
			args, err := c.callProvider(ctx, p, system, user, tool)
			if err != nil {
				lastErr = err
				log.Warn().Err(err).Str("model", p.model).Msg("advisory provider failed")
				continue
			}
			return args, nil
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func (c *Client) callProvider(ctx context.Context, p provider, system, user string, tool chatTool) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Tools:       []chatTool{tool},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("advisory error: %d %s", resp.StatusCode, string(respBody))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}

	message := decoded.Choices[0].Message
	for _, call := range message.ToolCalls {
		if call.Function.Name == tool.Function.Name {
			return json.RawMessage(call.Function.Arguments), nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", tool.Function.Name)
}

func selectedOpportunities(proposal domain.Proposal, opps []domain.Opportunity) []domain.Opportunity {
	selected := make([]domain.Opportunity, 0, len(proposal.SelectedOpportunities))
	for _, idx := range proposal.SelectedOpportunities {
		if idx >= 0 && idx < len(opps) {
			selected = append(selected, opps[idx])
		}
	}
	return selected
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}
