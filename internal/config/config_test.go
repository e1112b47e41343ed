package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8020" {
		t.Fatalf("expected default API port 8020, got %s", cfg.APIPort)
	}
	if cfg.EntityMaxEntities != 5 {
		t.Fatalf("expected default max entities 5, got %d", cfg.EntityMaxEntities)
	}
	if cfg.RAGTopK != 8 {
		t.Fatalf("expected default RAG top_k 8, got %d", cfg.RAGTopK)
	}
	if cfg.SQLMaxLimit != 50 {
		t.Fatalf("expected default SQL max limit 50, got %d", cfg.SQLMaxLimit)
	}
	if cfg.RAGDedupSimilarity != 0.95 {
		t.Fatalf("expected default dedup similarity 0.95, got %v", cfg.RAGDedupSimilarity)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENTITY_MAX_ENTITIES", "3")
	t.Setenv("ENTITY_AMBIGUITY_MARGIN", "0.10")
	t.Setenv("COMPOSER_DEBUG_FLAGS_ENABLED", "false")

	cfg := Load()
	if cfg.EntityMaxEntities != 3 {
		t.Fatalf("expected max entities override 3, got %d", cfg.EntityMaxEntities)
	}
	if cfg.EntityAmbiguityMargin != 0.10 {
		t.Fatalf("expected ambiguity margin override 0.10, got %v", cfg.EntityAmbiguityMargin)
	}
	if cfg.ComposerDebugFlagsEnabled {
		t.Fatalf("expected composer debug flags disabled")
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("ENTITY_MAX_ENTITIES", "not-a-number")
	t.Setenv("RAG_MIN_SCORE", "abc")

	cfg := Load()
	if cfg.EntityMaxEntities != 5 {
		t.Fatalf("expected fallback max entities 5, got %d", cfg.EntityMaxEntities)
	}
	if cfg.RAGMinScore != 0.25 {
		t.Fatalf("expected fallback min score 0.25, got %v", cfg.RAGMinScore)
	}
}
