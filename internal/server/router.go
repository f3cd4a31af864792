package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/gateway"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Gateway  *gateway.Gateway
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Tools
	mux.HandleFunc("GET /v1/tools", deps.handleListTools)
	mux.HandleFunc("POST /v1/tools/call", deps.handleCallTool)

	// Proposals
	mux.HandleFunc("POST /v1/proposals", deps.handleCreateProposal)
	mux.HandleFunc("GET /v1/proposals/{proposal_id}", deps.handleGetProposal)
	mux.HandleFunc("POST /v1/proposals/{proposal_id}/approve", deps.handleApproveProposal)
	mux.HandleFunc("POST /v1/proposals/{proposal_id}/reject", deps.handleRejectProposal)
	mux.HandleFunc("POST /v1/proposals/{proposal_id}/execute", deps.handleExecuteProposal)

	// Audit
	mux.HandleFunc("GET /v1/audit", deps.handleListAudit)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return recoverer(requestLogging(mux, deps.Logger), deps.Logger)
}
