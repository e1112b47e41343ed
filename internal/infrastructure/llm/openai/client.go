package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
	"github.com/finsightlab/equity-copilot/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL           string
	APIKey            string
	ChatModel         string
	EmbedModel        string
	RequestsPerSecond float64
	Burst             int
}

// Client talks to an OpenAI-compatible API. All calls go through a shared
// client-side rate limiter and the resilience executor.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	log        *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, log *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		executor:   executor,
		log:        log,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, operation, system, user string, jsonMode bool) (string, error) {
	request := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &formatSpec{Type: "json_object"}
	}

	var response chatResponse
	if err := c.postJSON(ctx, "/chat/completions", request, &response, operation); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", operation)
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// IntentClassifier routes questions through the chat model. Any failure
// degrades to the deterministic fallback decision so a request never dies on
// classification.
type IntentClassifier struct {
	client *Client
}

func NewIntentClassifier(client *Client) *IntentClassifier {
	return &IntentClassifier{client: client}
}

func (c *IntentClassifier) Classify(ctx context.Context, question string) domain.IntentDecision {
	raw, err := c.client.chat(ctx, "classify_intent", intentSystemPrompt, buildIntentUserPrompt(question), true)
	if err != nil {
		c.client.log.Warn("intent classification failed", "error", err)
		return domain.FallbackIntentDecision("classifier unavailable")
	}

	var parsed struct {
		Intent          string  `json:"intent"`
		CompanySpecific bool    `json:"company_specific"`
		Confidence      float64 `json:"confidence"`
		Reason          string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		c.client.log.Warn("intent response not parseable", "error", err)
		return domain.FallbackIntentDecision("classifier returned malformed output")
	}

	intent := normalizeIntent(parsed.Intent)
	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return domain.IntentDecision{
		Intent:          intent,
		RawIntent:       intent,
		CompanySpecific: parsed.CompanySpecific,
		Confidence:      confidence,
		Reason:          parsed.Reason,
	}
}

func normalizeIntent(raw string) domain.Intent {
	switch domain.Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.IntentEquityOnly:
		return domain.IntentEquityOnly
	case domain.IntentMacroOnly:
		return domain.IntentMacroOnly
	case domain.IntentHybrid:
		return domain.IntentHybrid
	default:
		return domain.IntentUnknown
	}
}

// SQLGenerator produces candidate SELECT statements. Its output is untrusted;
// the guardrail executor owns all enforcement.
type SQLGenerator struct {
	client      *Client
	schemaLines []string
}

func NewSQLGenerator(client *Client, schemaLines []string) *SQLGenerator {
	return &SQLGenerator{client: client, schemaLines: schemaLines}
}

func (g *SQLGenerator) Generate(ctx context.Context, question string, entities []domain.ResolvedEntity, companySpecific bool, intent domain.Intent) (domain.SQLGeneration, error) {
	raw, err := g.client.chat(ctx, "generate_sql",
		buildSQLSystemPrompt(g.schemaLines),
		buildSQLUserPrompt(question, entities, companySpecific, intent),
		true)
	if err != nil {
		return domain.SQLGeneration{}, err
	}

	var parsed struct {
		SQL   string `json:"sql"`
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.SQLGeneration{}, fmt.Errorf("parse sql generation json: %w", err)
	}
	return domain.SQLGeneration{SQL: strings.TrimSpace(parsed.SQL), Notes: parsed.Notes}, nil
}

// Composer writes the final answer from the branch outputs.
type Composer struct {
	client *Client
}

func NewComposer(client *Client) *Composer {
	return &Composer{client: client}
}

func (c *Composer) Compose(ctx context.Context, input ports.ComposeInput) (string, error) {
	user, err := buildComposeUserPrompt(input)
	if err != nil {
		return "", err
	}
	return c.client.chat(ctx, "compose_answer", composeSystemPrompt, user, false)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.cfg.EmbedModel,
		"input": []string{text},
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.postJSON(ctx, "/embeddings", request, &response, "embed_query"); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Data[0].Embedding, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
