package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

func searchServer(t *testing.T, response string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/research/points/search" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		_, _ = w.Write([]byte(response))
	}))
}

func TestSearchDecodesPayload(t *testing.T) {
	response := `{"result":[{
		"id":"11111111-2222-3333-4444-555555555555",
		"score":0.87,
		"payload":{
			"doc_id":"doc-9","page":12,"title":"Sector Outlook","publisher":"Broker",
			"year":2026,"text":"Chunk text.","quote_snippet":"Quote.",
			"mentions_company_names_norm":["apple"],"mentions_tickers":["AAPL"]
		}
	}]}`
	server := searchServer(t, response, nil)
	defer server.Close()

	client := New(server.URL, "research")
	chunks, err := client.Search(context.Background(), []float32{0.1, 0.2}, 8, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %+v", chunks)
	}
	chunk := chunks[0]
	if chunk.PointID != "11111111-2222-3333-4444-555555555555" || chunk.Score != 0.87 {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if chunk.Payload.Page != 12 || chunk.Payload.Year != 2026 {
		t.Fatalf("numeric payload fields mismatch: %+v", chunk.Payload)
	}
	if len(chunk.Payload.MentionsTickers) != 1 || chunk.Payload.MentionsTickers[0] != "AAPL" {
		t.Fatalf("mentions not decoded: %+v", chunk.Payload)
	}
}

func TestSearchSendsMatchAnyFilters(t *testing.T) {
	var captured map[string]any
	server := searchServer(t, `{"result":[]}`, &captured)
	defer server.Close()

	client := New(server.URL, "research")
	_, err := client.Search(context.Background(), []float32{0.1}, 8, domain.SearchFilter{
		CompanyNamesNorm: []string{"apple", "microsoft"},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, _ := captured["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("expected one must clause, got %v", captured["filter"])
	}
	clause, _ := must[0].(map[string]any)
	if clause["key"] != "mentions_company_names_norm" {
		t.Fatalf("unexpected filter key: %v", clause)
	}
	match, _ := clause["match"].(map[string]any)
	values, _ := match["any"].([]any)
	if len(values) != 2 || values[0] != "apple" {
		t.Fatalf("unexpected match-any values: %v", match)
	}
}

func TestSearchOmitsFilterWhenEmpty(t *testing.T) {
	var captured map[string]any
	server := searchServer(t, `{"result":[]}`, &captured)
	defer server.Close()

	client := New(server.URL, "research")
	if _, err := client.Search(context.Background(), []float32{0.1}, 8, domain.SearchFilter{}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("empty filter must not be sent: %v", captured)
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "research")
	_, err := client.Search(context.Background(), []float32{0.1}, 8, domain.SearchFilter{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection not found") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
