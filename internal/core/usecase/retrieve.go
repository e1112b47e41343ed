package usecase

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
)

var sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]`)

type RetrieverConfig struct {
	TopK            int
	MaxSources      int
	DedupSimilarity float64
	MinSourceScore  float64
	MaxSnippets     int
	MaxSnippetChars int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:            8,
		MaxSources:      3,
		DedupSimilarity: 0.95,
		MinSourceScore:  0.25,
		MaxSnippets:     5,
		MaxSnippetChars: 4000,
	}
}

// Retriever runs the research branch: embed the entity-anchored query, search
// the vector index with an entity-filter fallback chain, deduplicate, and
// project the survivors into citations and composer context.
type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	cfg      RetrieverConfig
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRetrieverConfig().TopK
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

func (r *Retriever) Retrieve(ctx context.Context, question string, entities []domain.ResolvedEntity) (domain.RetrievalResult, error) {
	queryText := buildQueryText(question, entities)

	vector, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return domain.RetrievalResult{QueryText: queryText}, fmt.Errorf("embed query: %w", err)
	}

	retrieved, err := r.search(ctx, vector, entities)
	if err != nil {
		return domain.RetrievalResult{QueryText: queryText}, fmt.Errorf("vector search: %w", err)
	}

	deduplicated := r.deduplicate(retrieved)

	return domain.RetrievalResult{
		QueryText:          queryText,
		RetrievedChunks:    retrieved,
		DeduplicatedChunks: deduplicated,
		Sources:            r.buildSources(deduplicated),
		ContextSnippets:    r.buildSnippets(deduplicated),
	}, nil
}

// search prefers chunks whose payload mentions the resolved companies; the
// name filter falls back to tickers, then to an unfiltered search. A partially
// filled filtered set is topped up with unfiltered hits, never replaced.
func (r *Retriever) search(ctx context.Context, vector []float32, entities []domain.ResolvedEntity) ([]domain.RetrievedChunk, error) {
	limit := r.cfg.TopK

	var filtered []domain.RetrievedChunk
	if len(entities) > 0 {
		if names := normalizedEntityNames(entities); len(names) > 0 {
			var err error
			filtered, err = r.index.Search(ctx, vector, limit, domain.SearchFilter{CompanyNamesNorm: names})
			if err != nil {
				return nil, err
			}
		}
		if len(filtered) == 0 {
			if tickers := entityTickers(entities); len(tickers) > 0 {
				var err error
				filtered, err = r.index.Search(ctx, vector, limit, domain.SearchFilter{Tickers: tickers})
				if err != nil {
					return nil, err
				}
			}
		}
		if len(filtered) >= limit {
			return filtered[:limit], nil
		}
	}

	unfiltered, err := r.index.Search(ctx, vector, limit, domain.SearchFilter{})
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		if len(unfiltered) > limit {
			unfiltered = unfiltered[:limit]
		}
		return unfiltered, nil
	}

	merged := make([]domain.RetrievedChunk, 0, limit)
	seen := map[string]struct{}{}
	for _, chunk := range append(filtered, unfiltered...) {
		if _, ok := seen[chunk.PointID]; ok {
			continue
		}
		seen[chunk.PointID] = struct{}{}
		merged = append(merged, chunk)
		if len(merged) >= limit {
			break
		}
	}
	return merged, nil
}

// deduplicate keeps the best-scored representative of duplicated content:
// same (doc_id, page) or near-identical text against any kept chunk.
func (r *Retriever) deduplicate(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	if len(chunks) == 0 {
		return nil
	}

	ordered := make([]domain.RetrievedChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	type pageKey struct {
		docID string
		page  int
	}
	seenPages := map[pageKey]struct{}{}
	var kept []domain.RetrievedChunk
	var keptTexts []string

	for _, chunk := range ordered {
		// Page identity is meaningless without a document id; chunks lacking
		// one are deduplicated by text similarity only.
		pageSeen := false
		if chunk.Payload.DocID != "" {
			_, pageSeen = seenPages[pageKey{docID: chunk.Payload.DocID, page: chunk.Payload.Page}]
		}

		text := normalizeChunkText(chunk.Payload.Text)
		similar := false
		for _, keptText := range keptTexts {
			if text == "" || keptText == "" {
				continue
			}
			if indelRatio(text, keptText)/100.0 >= r.cfg.DedupSimilarity {
				similar = true
				break
			}
		}

		if pageSeen || similar {
			continue
		}
		if chunk.Payload.DocID != "" {
			seenPages[pageKey{docID: chunk.Payload.DocID, page: chunk.Payload.Page}] = struct{}{}
		}
		kept = append(kept, chunk)
		keptTexts = append(keptTexts, text)
	}
	return kept
}

func (r *Retriever) buildSources(chunks []domain.RetrievedChunk) []domain.Source {
	var sources []domain.Source
	for _, chunk := range chunks {
		if chunk.Score < r.cfg.MinSourceScore {
			continue
		}
		sources = append(sources, domain.Source{
			Title:        chunk.Payload.Title,
			Publisher:    chunk.Payload.Publisher,
			Year:         chunk.Payload.Year,
			Page:         chunk.Payload.Page,
			QuoteSnippet: quoteSnippet(chunk.Payload),
		})
		if len(sources) >= r.cfg.MaxSources {
			break
		}
	}
	return sources
}

func (r *Retriever) buildSnippets(chunks []domain.RetrievedChunk) []domain.ContextSnippet {
	var snippets []domain.ContextSnippet
	for _, chunk := range chunks {
		if len(snippets) >= r.cfg.MaxSnippets {
			break
		}
		snippets = append(snippets, domain.ContextSnippet{
			DocID:     chunk.Payload.DocID,
			Page:      chunk.Payload.Page,
			Title:     chunk.Payload.Title,
			Publisher: chunk.Payload.Publisher,
			Year:      chunk.Payload.Year,
			Score:     math.Round(chunk.Score*1e6) / 1e6,
			Text:      truncateRunes(collapseSpaces(chunk.Payload.Text), r.cfg.MaxSnippetChars),
		})
	}
	return snippets
}

// buildQueryText anchors the embedding query on the canonical entity rows so
// that near-synonym company mentions embed consistently.
func buildQueryText(question string, entities []domain.ResolvedEntity) string {
	base := collapseSpaces(question)
	if len(entities) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nEntity context (canonical):\n")
	for _, entity := range entities {
		b.WriteString("- ")
		b.WriteString(entity.CompanyName)
		b.WriteString(" | ")
		b.WriteString(orNull(entity.Ticker))
		b.WriteString(" | ")
		b.WriteString(orNull(entity.ISIN))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func normalizedEntityNames(entities []domain.ResolvedEntity) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, entity := range entities {
		name := normalizeCompanyName(entity.CompanyName, true)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func entityTickers(entities []domain.ResolvedEntity) []string {
	seen := map[string]struct{}{}
	var tickers []string
	for _, entity := range entities {
		ticker := strings.ToUpper(strings.TrimSpace(entity.Ticker))
		if ticker == "" {
			continue
		}
		if _, ok := seen[ticker]; ok {
			continue
		}
		seen[ticker] = struct{}{}
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

func normalizeChunkText(text string) string {
	return collapseSpaces(strings.ToLower(text))
}

const maxQuoteSnippetChars = 320

// quoteSnippet prefers the precomputed payload snippet and otherwise falls
// back to the chunk text. Either source is capped to its first two sentences
// and 320 characters; payload snippets are not trusted to respect the cap.
func quoteSnippet(payload domain.ChunkPayload) string {
	if snippet := capQuoteSnippet(payload.QuoteSnippet); snippet != "" {
		return snippet
	}
	return capQuoteSnippet(payload.Text)
}

func capQuoteSnippet(raw string) string {
	text := collapseSpaces(raw)
	if text == "" {
		return ""
	}
	sentences := sentencePattern.FindAllString(text, 2)
	if len(sentences) > 0 {
		text = strings.TrimSpace(strings.Join(sentences, ""))
	}
	return truncateRunes(text, maxQuoteSnippetChars)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func orNull(s string) string {
	if strings.TrimSpace(s) == "" {
		return "null"
	}
	return s
}
