package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
)

const fallbackNoDataAnswer = "I don't have enough reliable data to answer confidently. " +
	"Please provide a more specific question or additional context."

// Keys surfaced by the deterministic fallback composer, in display order.
var fallbackPreviewKeys = []string{
	"company_name", "ticker", "price", "target_price",
	"dividend_yield", "recommendation", "sector_level_1", "region",
}

type AskConfig struct {
	IntentOverrideThreshold float64
	EntityNotFoundTemplate  string
	MaxAnswerChars          int
	ComposerDebugFlags      bool
	IncludeDebug            bool
}

func DefaultAskConfig() AskConfig {
	return AskConfig{
		IntentOverrideThreshold: 0.70,
		EntityNotFoundTemplate:  "I couldn't find any matching companies in the provided equities dataset for: %s",
		MaxAnswerChars:          3000,
		ComposerDebugFlags:      true,
	}
}

// AskPipeline is the request state machine: classify, resolve, route, run the
// structured and research branches, compose. Stage failures degrade into
// findings; the pipeline itself only fails on invalid input.
type AskPipeline struct {
	classifier ports.IntentClassifier
	resolver   *EntityResolver
	sqlGen     ports.SQLGenerator
	sqlExec    ports.GuardedSQLExecutor
	retriever  *Retriever
	composer   ports.AnswerComposer
	cfg        AskConfig
	log        *slog.Logger
}

func NewAskPipeline(
	classifier ports.IntentClassifier,
	resolver *EntityResolver,
	sqlGen ports.SQLGenerator,
	sqlExec ports.GuardedSQLExecutor,
	retriever *Retriever,
	composer ports.AnswerComposer,
	cfg AskConfig,
	log *slog.Logger,
) *AskPipeline {
	if cfg.MaxAnswerChars <= 0 {
		cfg.MaxAnswerChars = DefaultAskConfig().MaxAnswerChars
	}
	if cfg.EntityNotFoundTemplate == "" {
		cfg.EntityNotFoundTemplate = DefaultAskConfig().EntityNotFoundTemplate
	}
	return &AskPipeline{
		classifier: classifier,
		resolver:   resolver,
		sqlGen:     sqlGen,
		sqlExec:    sqlExec,
		retriever:  retriever,
		composer:   composer,
		cfg:        cfg,
		log:        log,
	}
}

func (p *AskPipeline) Ask(ctx context.Context, question string) (*domain.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("empty question"))
	}

	state := domain.NewAskState(question)

	decision := p.classifier.Classify(ctx, question)
	state.Intent = decision.Intent
	state.RawIntent = decision.RawIntent
	state.CompanySpecific = decision.CompanySpecific
	state.IntentConfidence = decision.Confidence

	resolution := p.resolver.Resolve(question)
	state.Entities = resolution.Entities
	if len(resolution.Rejected) > 0 {
		state.AddFinding(
			domain.FindingRejectedCandidatesDebug,
			"Some candidate company matches were rejected.",
			map[string]any{"rejected_candidates": resolution.Rejected},
		)
	}

	p.applyRouting(state)

	p.log.Info("question routed",
		"intent", state.Intent,
		"raw_intent", state.RawIntent,
		"company_specific", state.CompanySpecific,
		"intent_confidence", state.IntentConfidence,
		"entities", len(state.Entities),
	)

	if state.CompanySpecific && len(state.Entities) == 0 {
		state.PrependFinding(
			domain.FindingEntityNotFound,
			"No companies from the equities dataset matched the question.",
			nil,
		)
		state.Answer = fmt.Sprintf(p.cfg.EntityNotFoundTemplate, question)
		state.UsedSQL = false
		state.UsedRAG = false
		return p.buildResult(state), nil
	}

	state.UsedSQL, state.UsedRAG = domain.BranchUsage(state.Intent)
	if !state.CompanySpecific {
		state.Entities = nil
	}

	if state.UsedSQL {
		p.runSQLStage(ctx, state)
	}
	if state.UsedRAG {
		p.runRAGStage(ctx, state)
	}
	p.runComposeStage(ctx, state)

	if p.cfg.ComposerDebugFlags {
		state.AddFinding(domain.FindingComposerDebugFlags, "Composer input flags.", map[string]any{
			"had_sql_rows":     len(state.SQLResult.RowsPreview) > 0,
			"had_rag_snippets": len(state.RAGResult.ContextSnippets) > 0,
			"entities_used":    len(state.Entities),
		})
	}

	return p.buildResult(state), nil
}

// applyRouting reconciles the classifier decision with the local keyword
// heuristics. Overrides are recorded ahead of the stage findings.
func (p *AskPipeline) applyRouting(state *domain.AskState) {
	if !state.CompanySpecific && state.IntentConfidence == 0.0 &&
		looksCompanySpecific(state.Question, state.Entities) {
		state.CompanySpecific = true
		state.PrependFinding(
			domain.FindingRouterFallbackCompanySpecific,
			"Classifier fallback; question treated as company-specific by heuristic.",
			nil,
		)
	}

	if state.CompanySpecific {
		return
	}

	heuristic := inferNonCompanyIntent(state.Question)

	if state.Intent == domain.IntentUnknown {
		if heuristic != domain.IntentUnknown {
			state.Intent = heuristic
			state.PrependFinding(
				domain.FindingNonCompanyUnknownByHeuristic,
				fmt.Sprintf("Unknown intent defaulted to %s by keyword heuristic.", heuristic),
				nil,
			)
			return
		}
		state.Intent = domain.IntentMacroOnly
		state.PrependFinding(
			domain.FindingNonCompanyUnknownDefaultedMacro,
			"Unknown non-company intent defaulted to macro_only.",
			nil,
		)
		return
	}

	if heuristic != domain.IntentUnknown && heuristic != state.Intent &&
		state.IntentConfidence < p.cfg.IntentOverrideThreshold {
		previous := state.Intent
		state.Intent = heuristic
		state.PrependFinding(
			domain.FindingNonCompanyLowConfidenceOverride,
			fmt.Sprintf("Low-confidence intent %s overridden to %s by keyword heuristic.", previous, heuristic),
			nil,
		)
	}
}

func (p *AskPipeline) runSQLStage(ctx context.Context, state *domain.AskState) {
	generation, err := p.sqlGen.Generate(ctx, state.Question, state.Entities, state.CompanySpecific, state.Intent)
	if err != nil {
		p.log.Warn("sql generation failed", "error", err)
		state.AddFinding(domain.FindingSQLGenerationFailed, "SQL generation failed.", nil)
		return
	}

	isins := make([]string, 0, len(state.Entities))
	for _, entity := range state.Entities {
		isins = append(isins, entity.ISIN)
	}

	execution := p.sqlExec.ValidateAndExecute(ctx, generation.SQL, state.CompanySpecific, isins)

	state.SQLResult = domain.SQLBranchResult{
		SQL:         execution.SQL,
		RowsPreview: execution.RowsPreview,
		Success:     execution.OK(),
	}

	if execution.OK() {
		return
	}
	if domain.IsGuardrailCode(execution.ErrorCode) {
		state.AddFinding(
			domain.FindingSQLGuardrailBlocked,
			execution.ErrorMessage,
			map[string]any{"error_code": execution.ErrorCode},
		)
		return
	}
	state.AddFinding(domain.FindingSQLExecutionFailed, execution.ErrorMessage, nil)
}

func (p *AskPipeline) runRAGStage(ctx context.Context, state *domain.AskState) {
	result, err := p.retriever.Retrieve(ctx, state.Question, state.Entities)
	if err != nil {
		p.log.Warn("retrieval failed", "error", err)
		state.AddFinding(domain.FindingRAGRetrievalFailed, "Research retrieval failed.", nil)
		return
	}

	state.RAGResult = domain.RAGBranchResult{
		Sources:         result.Sources,
		ContextSnippets: result.ContextSnippets,
		Success:         len(result.DeduplicatedChunks) > 0,
	}
	if p.cfg.IncludeDebug {
		state.Debug["retrieval_query_text"] = result.QueryText
		state.Debug["retrieved_chunks"] = len(result.RetrievedChunks)
		state.Debug["deduplicated_chunks"] = len(result.DeduplicatedChunks)
	}

	if len(result.DeduplicatedChunks) == 0 {
		state.AddFinding(domain.FindingRAGNoRelevantChunks, "No relevant research chunks found.", nil)
	}
}

func (p *AskPipeline) runComposeStage(ctx context.Context, state *domain.AskState) {
	input := ports.ComposeInput{
		Question:        state.Question,
		Intent:          state.Intent,
		UsedSQL:         state.UsedSQL,
		UsedRAG:         state.UsedRAG,
		Entities:        state.Entities,
		SQLRowsPreview:  state.SQLResult.RowsPreview,
		ContextSnippets: state.RAGResult.ContextSnippets,
		MaxAnswerChars:  p.cfg.MaxAnswerChars,
	}

	answer, err := p.composer.Compose(ctx, input)
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		if err != nil {
			p.log.Warn("composer failed", "error", err)
		}
		answer = p.composeFallback(state)
		state.AddFinding(domain.FindingComposerFallback, "Deterministic fallback answer used.", nil)
	}

	state.Answer = truncateRunes(answer, p.cfg.MaxAnswerChars)
}

// composeFallback builds a deterministic answer from whatever the branches
// produced, so a dead LLM never turns into an empty response.
func (p *AskPipeline) composeFallback(state *domain.AskState) string {
	var parts []string

	if len(state.Entities) > 0 {
		seen := map[string]struct{}{}
		var names []string
		for _, entity := range state.Entities {
			if _, ok := seen[entity.CompanyName]; ok {
				continue
			}
			seen[entity.CompanyName] = struct{}{}
			names = append(names, entity.CompanyName)
			if len(names) >= 5 {
				break
			}
		}
		parts = append(parts, fmt.Sprintf("This answer focuses on: %s.", strings.Join(names, ", ")))
	}

	if len(state.SQLResult.RowsPreview) > 0 {
		row := state.SQLResult.RowsPreview[0]
		var pairs []string
		for _, key := range fallbackPreviewKeys {
			value, ok := row[key]
			if !ok || value == nil {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
			if len(pairs) >= 4 {
				break
			}
		}
		if len(pairs) > 0 {
			parts = append(parts, fmt.Sprintf("Structured data highlights: %s.", strings.Join(pairs, ", ")))
		}
	}

	if len(state.RAGResult.ContextSnippets) > 0 {
		snippet := truncateRunes(state.RAGResult.ContextSnippets[0].Text, 320)
		if snippet != "" {
			parts = append(parts, fmt.Sprintf("Research context: %s.", snippet))
		}
	}

	if len(parts) == 0 {
		return fallbackNoDataAnswer
	}
	return truncateRunes(strings.Join(parts, " "), p.cfg.MaxAnswerChars)
}

func (p *AskPipeline) buildResult(state *domain.AskState) *domain.AskResult {
	result := &domain.AskResult{
		Question:         state.Question,
		Intent:           state.Intent,
		RawIntent:        state.RawIntent,
		CompanySpecific:  state.CompanySpecific,
		IntentConfidence: state.IntentConfidence,
		Entities:         state.Entities,
		UsedSQL:          state.UsedSQL,
		UsedRAG:          state.UsedRAG,
		SQL:              state.SQLResult.SQL,
		SQLRowsPreview:   state.SQLResult.RowsPreview,
		Answer:           state.Answer,
		Sources:          state.RAGResult.Sources,
		Findings:         state.Findings,
	}
	if result.Entities == nil {
		result.Entities = []domain.ResolvedEntity{}
	}
	if result.SQLRowsPreview == nil {
		result.SQLRowsPreview = []map[string]any{}
	}
	if result.Sources == nil {
		result.Sources = []domain.Source{}
	}
	if result.Findings == nil {
		result.Findings = []domain.Finding{}
	}
	if p.cfg.IncludeDebug && len(state.Debug) > 0 {
		result.Debug = state.Debug
	}
	return result
}
