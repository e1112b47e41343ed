package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
)

const intentSystemPrompt = `You are an intent router for a financial research assistant.
Classify the user question and return a strict JSON object with keys:
intent (one of "equity_only", "macro_only", "hybrid", "unknown"),
company_specific (boolean: the question is about one or more specific companies),
confidence (number from 0 to 1),
reason (short string).

Guidance:
- "equity_only": answerable from a structured equities table (prices, target prices, dividend yields, sectors, regions, rankings, screens).
- "macro_only": macroeconomic or thematic research questions answered from analyst reports.
- "hybrid": needs both structured equity data and research context.
- "unknown": none of the above fits.
No markdown, no extra keys.`

func buildIntentUserPrompt(question string) string {
	return "Question:\n" + question
}

func buildSQLSystemPrompt(schemaLines []string) string {
	var b strings.Builder
	b.WriteString(`You write SQLite SELECT statements for a financial research assistant.
Rules:
- Exactly one SELECT statement, no other statement kinds.
- Query only the table "equities".
- Never invent columns. Available columns:
`)
	for _, line := range schemaLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(`Return a strict JSON object: {"sql": "<the statement>", "notes": "<short rationale>"}.
No markdown, no extra keys.`)
	return b.String()
}

func buildSQLUserPrompt(question string, entities []domain.ResolvedEntity, companySpecific bool, intent domain.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nIntent: %s\nCompany-specific: %t\n", question, intent, companySpecific)
	if len(entities) > 0 {
		b.WriteString("\nResolved companies (name | ticker | isin):\n")
		for _, entity := range entities {
			fmt.Fprintf(&b, "- %s | %s | %s\n", entity.CompanyName, entity.Ticker, entity.ISIN)
		}
		b.WriteString("\nWhen filtering by company, filter on the isin column with the values above.\n")
	}
	return b.String()
}

const composeSystemPrompt = `You are a financial research assistant.
Answer the user question using ONLY the structured rows and research snippets provided.
Rules:
- Do not invent figures; every number must come from the provided data.
- If the data is insufficient, say so plainly.
- Be concise and factual; no investment advice disclaimers beyond one short sentence when relevant.
- Plain text only, no markdown.`

func buildComposeUserPrompt(input ports.ComposeInput) (string, error) {
	rows, err := json.Marshal(input.SQLRowsPreview)
	if err != nil {
		return "", fmt.Errorf("marshal sql rows: %w", err)
	}
	snippets, err := json.Marshal(input.ContextSnippets)
	if err != nil {
		return "", fmt.Errorf("marshal snippets: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nIntent: %s\n", input.Question, input.Intent)
	if len(input.Entities) > 0 {
		b.WriteString("\nCompanies in scope:\n")
		for _, entity := range input.Entities {
			fmt.Fprintf(&b, "- %s (%s)\n", entity.CompanyName, entity.ISIN)
		}
	}
	fmt.Fprintf(&b, "\nStructured rows (JSON):\n%s\n", rows)
	fmt.Fprintf(&b, "\nResearch snippets (JSON):\n%s\n", snippets)
	fmt.Fprintf(&b, "\nKeep the answer under %d characters.\n", input.MaxAnswerChars)
	return b.String(), nil
}
