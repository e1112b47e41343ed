package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

// Client searches an externally populated research-chunk collection over the
// Qdrant HTTP API. This service never writes to the collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if must := buildMustClauses(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, fmt.Errorf("qdrant search status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			PointID: fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: decodePayload(r.Payload),
		})
	}
	return out, nil
}

// buildMustClauses maps the search filter onto payload mention keys. Each
// field is a match-any over its values.
func buildMustClauses(filter domain.SearchFilter) []map[string]any {
	var must []map[string]any
	if len(filter.CompanyNamesNorm) > 0 {
		must = append(must, map[string]any{
			"key":   "mentions_company_names_norm",
			"match": map[string]any{"any": filter.CompanyNamesNorm},
		})
	}
	if len(filter.Tickers) > 0 {
		must = append(must, map[string]any{
			"key":   "mentions_tickers",
			"match": map[string]any{"any": filter.Tickers},
		})
	}
	return must
}

func decodePayload(payload map[string]any) domain.ChunkPayload {
	return domain.ChunkPayload{
		DocID:                    getString(payload, "doc_id"),
		Page:                     getInt(payload, "page"),
		Title:                    getString(payload, "title"),
		Publisher:                getString(payload, "publisher"),
		Year:                     getInt(payload, "year"),
		Text:                     getString(payload, "text"),
		QuoteSnippet:             getString(payload, "quote_snippet"),
		MentionsCompanyNamesNorm: getStringSlice(payload, "mentions_company_names_norm"),
		MentionsTickers:          getStringSlice(payload, "mentions_tickers"),
	}
}

func getString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func getStringSlice(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
