package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	EquitiesDBPath string

	QdrantURL        string
	QdrantCollection string

	LLMBaseURL           string
	LLMAPIKey            string
	LLMChatModel         string
	LLMEmbedModel        string
	LLMRequestsPerSecond float64
	LLMBurst             int

	EntityConfidenceThreshold float64
	EntityFuzzyMinScore       float64
	EntityAmbiguityMargin     float64
	EntityMaxEntities         int

	RAGTopK               int
	RAGMaxSources         int
	RAGDedupSimilarity    float64
	RAGMinScore           float64
	RAGContextMaxSnippets int
	RAGContextMaxChars    int

	SQLPreviewLimit int
	SQLMaxLimit     int

	IntentOverrideThreshold   float64
	EntityNotFoundTemplate    string
	ComposerMaxAnswerChars    int
	ComposerDebugFlagsEnabled bool
	APIDebugResponse          bool

	APIRateLimitRPS      float64
	APIRateLimitBurst    int
	APIMaxInFlight       int
	APIBackpressureWaitMS int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8020"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		EquitiesDBPath: mustEnv("EQUITIES_DB_PATH", "db/equities.db"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "pdf_chunks"),

		LLMBaseURL:           mustEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            mustEnv("LLM_API_KEY", ""),
		LLMChatModel:         mustEnv("LLM_CHAT_MODEL", "gpt-5-mini"),
		LLMEmbedModel:        mustEnv("LLM_EMBED_MODEL", "text-embedding-3-large"),
		LLMRequestsPerSecond: mustEnvFloat("LLM_REQUESTS_PER_SECOND", 5),
		LLMBurst:             mustEnvInt("LLM_BURST", 2),

		EntityConfidenceThreshold: mustEnvFloat("ENTITY_CONFIDENCE_THRESHOLD", 0.80),
		EntityFuzzyMinScore:       mustEnvFloat("ENTITY_FUZZY_MIN_SCORE", 80),
		EntityAmbiguityMargin:     mustEnvFloat("ENTITY_AMBIGUITY_MARGIN", 0.05),
		EntityMaxEntities:         mustEnvInt("ENTITY_MAX_ENTITIES", 5),

		RAGTopK:               mustEnvInt("RAG_TOP_K", 8),
		RAGMaxSources:         mustEnvInt("RAG_MAX_SOURCES", 3),
		RAGDedupSimilarity:    mustEnvFloat("RAG_DEDUP_SIMILARITY_THRESHOLD", 0.95),
		RAGMinScore:           mustEnvFloat("RAG_MIN_SCORE", 0.25),
		RAGContextMaxSnippets: mustEnvInt("RAG_CONTEXT_MAX_SNIPPETS", 5),
		RAGContextMaxChars:    mustEnvInt("RAG_CONTEXT_MAX_CHARS", 4000),

		SQLPreviewLimit: mustEnvInt("SQL_ROWS_PREVIEW_LIMIT", 5),
		SQLMaxLimit:     mustEnvInt("SQL_MAX_LIMIT", 50),

		IntentOverrideThreshold: mustEnvFloat("NON_COMPANY_INTENT_OVERRIDE_THRESHOLD", 0.70),
		EntityNotFoundTemplate: mustEnv(
			"ENTITY_NOT_FOUND_TEMPLATE",
			"I couldn't find any matching companies in the provided equities dataset for: %s",
		),
		ComposerMaxAnswerChars:    mustEnvInt("COMPOSER_MAX_ANSWER_CHARS", 3000),
		ComposerDebugFlagsEnabled: mustEnvBool("COMPOSER_DEBUG_FLAGS_ENABLED", true),
		APIDebugResponse:          mustEnvBool("API_DEBUG_RESPONSE", false),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 200),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
