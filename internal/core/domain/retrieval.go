package domain

// ChunkPayload is the payload contract of the externally populated vector
// index. Field names mirror the index payload keys.
type ChunkPayload struct {
	DocID                    string   `json:"doc_id,omitempty"`
	Page                     int      `json:"page,omitempty"`
	Title                    string   `json:"title,omitempty"`
	Publisher                string   `json:"publisher,omitempty"`
	Year                     int      `json:"year,omitempty"`
	Text                     string   `json:"text,omitempty"`
	QuoteSnippet             string   `json:"quote_snippet,omitempty"`
	MentionsCompanyNamesNorm []string `json:"mentions_company_names_norm,omitempty"`
	MentionsTickers          []string `json:"mentions_tickers,omitempty"`
}

// RetrievedChunk is one scored vector-search hit. Owned by the retrieval
// stage until converted into sources and context snippets.
type RetrievedChunk struct {
	PointID string       `json:"point_id"`
	Score   float64      `json:"score"`
	Payload ChunkPayload `json:"payload"`
}

// SearchFilter restricts a vector search by payload mentions. Empty filter
// means unfiltered.
type SearchFilter struct {
	CompanyNamesNorm []string
	Tickers          []string
}

func (f SearchFilter) IsZero() bool {
	return len(f.CompanyNamesNorm) == 0 && len(f.Tickers) == 0
}

// Source is a citation entry built from a deduplicated chunk.
type Source struct {
	Title        string `json:"title,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	Year         int    `json:"year,omitempty"`
	Page         int    `json:"page,omitempty"`
	QuoteSnippet string `json:"quote_snippet,omitempty"`
}

// ContextSnippet is composition context, not a citation.
type ContextSnippet struct {
	DocID     string  `json:"doc_id,omitempty"`
	Page      int     `json:"page,omitempty"`
	Title     string  `json:"title,omitempty"`
	Publisher string  `json:"publisher,omitempty"`
	Year      int     `json:"year,omitempty"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

type RetrievalResult struct {
	QueryText          string           `json:"query_text"`
	RetrievedChunks    []RetrievedChunk `json:"retrieved_chunks"`
	DeduplicatedChunks []RetrievedChunk `json:"deduplicated_chunks"`
	Sources            []Source         `json:"sources"`
	ContextSnippets    []ContextSnippet `json:"context_snippets"`
}
