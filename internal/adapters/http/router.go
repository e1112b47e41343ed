package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/finsightlab/equity-copilot/internal/config"
	"github.com/finsightlab/equity-copilot/internal/core/domain"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
	"github.com/finsightlab/equity-copilot/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ask     ports.AskService
	metrics *metrics.HTTPServerMetrics
	cfg     config.Config
}

func NewRouter(cfg config.Config, ask ports.AskService, serverMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		ask:     ask,
		metrics: serverMetrics,
		cfg:     cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.askQuestion)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.ask.Ask(r.Context(), req.Question)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.recordAskMetrics(result, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordAskMetrics(result *domain.AskResult, duration time.Duration) {
	if rt.metrics == nil {
		return
	}

	rt.metrics.RecordAskObservation(
		serviceName,
		string(result.Intent),
		result.CompanySpecific,
		len(result.Entities),
		len(result.Sources),
		duration,
	)
	if result.UsedSQL {
		rt.metrics.RecordBranchOutcome(serviceName, "sql", !hasFinding(result,
			domain.FindingSQLGenerationFailed,
			domain.FindingSQLGuardrailBlocked,
			domain.FindingSQLExecutionFailed,
		))
	}
	if result.UsedRAG {
		rt.metrics.RecordBranchOutcome(serviceName, "rag", !hasFinding(result,
			domain.FindingRAGRetrievalFailed,
			domain.FindingRAGNoRelevantChunks,
		))
	}
	for _, finding := range result.Findings {
		rt.metrics.RecordFinding(serviceName, string(finding.Code))
		if finding.Code == domain.FindingSQLGuardrailBlocked {
			rt.metrics.RecordGuardrailBlock(serviceName, guardrailErrorCode(finding.Details))
		}
	}
}

func hasFinding(result *domain.AskResult, codes ...domain.FindingCode) bool {
	for _, finding := range result.Findings {
		for _, code := range codes {
			if finding.Code == code {
				return true
			}
		}
	}
	return false
}

func guardrailErrorCode(details any) string {
	payload, ok := details.(map[string]any)
	if !ok {
		return ""
	}
	code, _ := payload["error_code"].(string)
	return code
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
