package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/executor"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/gateway"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/proposal"
	"go.uber.org/zap"
)

// handleListTools implements GET /v1/tools.
func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolListResp{Tools: d.Gateway.ListTools()})
}

// handleCallTool implements POST /v1/tools/call.
func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req gateway.CallRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	res := d.Gateway.CallTool(r.Context(), req)
	writeJSON(w, resultStatusCode(res), res)
}

// handleCreateProposal implements POST /v1/proposals.
func (d *Dependencies) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req gateway.ProposalRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	p, err := d.Gateway.CreateProposal(r.Context(), req)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProposal implements GET /v1/proposals/{proposal_id}.
func (d *Dependencies) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := d.Gateway.GetProposal(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleApproveProposal implements POST /v1/proposals/{proposal_id}/approve.
// The body is optional.
func (d *Dependencies) handleApproveProposal(w http.ResponseWriter, r *http.Request) {
	var req ApproveReq
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
			return
		}
	}

	p, err := d.Gateway.ApproveProposal(r.Context(), r.PathValue("proposal_id"), req.ConfirmationToken)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRejectProposal implements POST /v1/proposals/{proposal_id}/reject.
func (d *Dependencies) handleRejectProposal(w http.ResponseWriter, r *http.Request) {
	p, err := d.Gateway.RejectProposal(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleExecuteProposal implements POST /v1/proposals/{proposal_id}/execute.
func (d *Dependencies) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	res := d.Gateway.ExecuteProposal(r.Context(), r.PathValue("proposal_id"))
	writeJSON(w, resultStatusCode(res), res)
}

// handleListAudit implements GET /v1/audit.
func (d *Dependencies) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query(), "limit", audit.DefaultListLimit)
	writeJSON(w, http.StatusOK, AuditListResp{Entries: d.Gateway.AuditList(limit)})
}

// resultStatusCode maps a call outcome onto an HTTP status. The body always
// carries the full ExecutionResult.
func resultStatusCode(res *executor.ExecutionResult) int {
	switch res.Status {
	case executor.StatusOK:
		return http.StatusOK
	case executor.StatusConfirmationRequired:
		return http.StatusAccepted
	case executor.StatusDenied:
		return http.StatusForbidden
	}
	switch res.Error {
	case gateway.ErrUnknownTool.Error(), proposal.ErrProposalNotFound.Error():
		return http.StatusNotFound
	case proposal.ErrProposalNotApproved.Error():
		return http.StatusConflict
	case executor.ErrToolTimeout.Error():
		return http.StatusGatewayTimeout
	}
	return http.StatusUnprocessableEntity
}

// writeError maps gateway errors onto HTTP statuses.
func (d *Dependencies) writeError(w http.ResponseWriter, err error) {
	var ve *params.ValidationError
	switch {
	case errors.Is(err, proposal.ErrProposalNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: proposal.ErrProposalNotFound.Error()})
	case errors.Is(err, gateway.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: gateway.ErrUnknownTool.Error()})
	case errors.Is(err, proposal.ErrInvalidProposalState):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: proposal.ErrInvalidProposalState.Error()})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: ve.Error()})
	default:
		d.Logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "internal error"})
	}
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
