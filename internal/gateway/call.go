package gateway

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/engine"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/executor"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/proposal"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// CallRequest is one invocation attempt.
type CallRequest struct {
	ToolName       string           `json:"tool_name"`
	Params         map[string]any   `json:"params"`
	Actor          registry.Actor   `json:"actor"`
	Signals        registry.Signals `json:"signals"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	DryRun         bool             `json:"dry_run,omitempty"`
}

// CallTool resolves, validates, evaluates and then executes or parks the call.
// It never returns a nil result and never panics; every outcome is audited.
func (g *Gateway) CallTool(ctx context.Context, req CallRequest) (res *executor.ExecutionResult) {
	paramsHash := params.Hash(req.Params)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			g.logger.Error("tool call panicked",
				zap.String("tool_name", req.ToolName),
				zap.String("params_hash", paramsHash),
				zap.Any("panic", r),
			)
			g.audit.Append(audit.Entry{
				ToolName:   req.ToolName,
				Actor:      req.Actor,
				ParamsHash: paramsHash,
				Status:     string(executor.StatusError),
				Error:      msg,
			})
			res = executor.ErrorResult(msg)
		}
		g.metrics.ObserveCall(req.ToolName, string(res.Status))
	}()

	tool := g.registry.Get(req.ToolName)
	if tool == nil {
		return g.fail(req, paramsHash, ErrUnknownTool.Error())
	}

	if err := params.Validate(tool.CompiledSchema(), req.Params); err != nil {
		return g.fail(req, paramsHash, err.Error())
	}

	decision := g.policyEngine().Evaluate(ctx, &engine.Request{
		Tool:    tool,
		Params:  req.Params,
		Signals: req.Signals,
		Actor:   req.Actor,
	})
	g.metrics.ObserveDecision(tool.Name, string(decision.Decision))

	switch decision.Decision {
	case registry.DecisionAllow:
		return g.executor.Execute(ctx, executor.Request{
			Tool:           tool,
			Params:         req.Params,
			Actor:          req.Actor,
			Signals:        req.Signals,
			IdempotencyKey: req.IdempotencyKey,
			DryRun:         req.DryRun,
			Decision:       decision.Decision,
			Reasons:        decision.Reasons,
		})
	case registry.DecisionDeny:
		return g.deny(req, tool, paramsHash, decision)
	case registry.DecisionRequireConfirm:
		return g.requireConfirm(ctx, req, tool, paramsHash, decision)
	}
	return g.fail(req, paramsHash, fmt.Sprintf("invalid policy decision %q", decision.Decision))
}

// fail records and returns a terminal ERROR that happened before execution.
func (g *Gateway) fail(req CallRequest, paramsHash, msg string) *executor.ExecutionResult {
	g.audit.Append(audit.Entry{
		ToolName:   req.ToolName,
		Actor:      req.Actor,
		ParamsHash: paramsHash,
		Status:     string(executor.StatusError),
		Error:      msg,
	})
	g.logger.Info("tool call rejected",
		zap.String("tool_name", req.ToolName),
		zap.String("params_hash", paramsHash),
		zap.String("error", msg),
	)
	return executor.ErrorResult(msg)
}

func (g *Gateway) deny(req CallRequest, tool *registry.ToolDefinition, paramsHash string, decision engine.Result) *executor.ExecutionResult {
	g.audit.Append(audit.Entry{
		ToolName:   tool.Name,
		Actor:      req.Actor,
		ParamsHash: paramsHash,
		Status:     string(executor.StatusDenied),
		Decision:   decision.Decision,
		Reasons:    decision.Reasons,
	})
	g.logger.Info("tool call denied",
		zap.String("tool_name", tool.Name),
		zap.Strings("reasons", decision.Reasons),
	)
	return &executor.ExecutionResult{
		Status:        executor.StatusDenied,
		HumanSummary:  tool.HumanSummary(req.Params),
		MachineEvents: []any{},
		Error:         string(executor.StatusDenied),
		Reason:        decision.Reasons,
	}
}

func (g *Gateway) requireConfirm(ctx context.Context, req CallRequest, tool *registry.ToolDefinition, paramsHash string, decision engine.Result) *executor.ExecutionResult {
	p, err := g.createProposal(ctx, tool, req.Params, req.Actor, decision.Reasons)
	if err != nil {
		return g.fail(req, paramsHash, err.Error())
	}

	g.audit.Append(audit.Entry{
		ToolName:   tool.Name,
		Actor:      req.Actor,
		ParamsHash: p.ParamsHash,
		Status:     string(executor.StatusConfirmationRequired),
		Decision:   decision.Decision,
		Reasons:    decision.Reasons,
		ProposalID: p.ID,
	})
	return &executor.ExecutionResult{
		Status:        executor.StatusConfirmationRequired,
		HumanSummary:  p.SummaryHuman,
		MachineEvents: []any{},
		Reason:        decision.Reasons,
		ProposalID:    p.ID,
	}
}

// createProposal builds and stores a NEEDS_CONFIRMATION proposal.
func (g *Gateway) createProposal(ctx context.Context, tool *registry.ToolDefinition, p map[string]any, actor registry.Actor, reasons []string) (*proposal.Proposal, error) {
	prop := proposal.New(g.ids("prop"), g.now(), tool, p, actor, reasons)
	if err := g.proposals.Create(ctx, prop); err != nil {
		g.logger.Error("failed to store proposal",
			zap.String("tool_name", tool.Name),
			zap.String("proposal_id", prop.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("createProposal: %w", err)
	}
	g.metrics.ObserveProposal(string(proposal.StatusNeedsConfirmation))
	g.logger.Info("proposal created",
		zap.String("tool_name", tool.Name),
		zap.String("proposal_id", prop.ID),
		zap.Strings("reasons", reasons),
	)
	return prop, nil
}
