package server

import (
	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
)

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// ToolListResp is the body of GET /v1/tools.
type ToolListResp struct {
	Tools []registry.ToolSummary `json:"tools"`
}

// ApproveReq is the optional body of POST /v1/proposals/{proposal_id}/approve.
type ApproveReq struct {
	ConfirmationToken string `json:"confirmation_token,omitempty"`
}

// AuditListResp is the body of GET /v1/audit.
type AuditListResp struct {
	Entries []audit.Entry `json:"entries"`
}
