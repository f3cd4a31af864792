package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/executor"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/proposal"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// ProposalRequest asks for a proposal without consulting the policy engine.
// Signals are accepted for parity with CallRequest but not stored.
type ProposalRequest struct {
	ToolName string           `json:"tool_name"`
	Params   map[string]any   `json:"params"`
	Actor    registry.Actor   `json:"actor"`
	Signals  registry.Signals `json:"signals"`
}

// CreateProposal parks a call for confirmation with risk report ["manual"].
// Unknown tools yield ErrUnknownTool; invalid params yield the validation error.
func (g *Gateway) CreateProposal(ctx context.Context, req ProposalRequest) (*proposal.Proposal, error) {
	tool := g.registry.Get(req.ToolName)
	if tool == nil {
		return nil, fmt.Errorf("CreateProposal: %s: %w", req.ToolName, ErrUnknownTool)
	}
	if err := params.Validate(tool.CompiledSchema(), req.Params); err != nil {
		return nil, fmt.Errorf("CreateProposal: %w", err)
	}

	p, err := g.createProposal(ctx, tool, req.Params, req.Actor, []string{proposal.ReasonManual})
	if err != nil {
		return nil, fmt.Errorf("CreateProposal: %w", err)
	}
	g.audit.Append(audit.Entry{
		ToolName:   tool.Name,
		Actor:      req.Actor,
		ParamsHash: p.ParamsHash,
		Status:     string(executor.StatusConfirmationRequired),
		Decision:   registry.DecisionRequireConfirm,
		Reasons:    p.RiskReport,
		ProposalID: p.ID,
	})
	return p, nil
}

// GetProposal returns the proposal or proposal.ErrProposalNotFound.
func (g *Gateway) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := g.proposals.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetProposal: %w", err)
	}
	return p, nil
}

// ApproveProposal moves a NEEDS_CONFIRMATION proposal to APPROVED.
// A non-empty confirmation token is kept as a bcrypt hash.
func (g *Gateway) ApproveProposal(ctx context.Context, id, confirmationToken string) (*proposal.Proposal, error) {
	hash, err := proposal.HashConfirmationToken(confirmationToken)
	if err != nil {
		return nil, fmt.Errorf("ApproveProposal: %w", err)
	}
	p, err := g.transition(ctx, id, proposal.Transition{
		From:      proposal.StatusNeedsConfirmation,
		To:        proposal.StatusApproved,
		At:        g.now(),
		TokenHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("ApproveProposal: %w", err)
	}
	return p, nil
}

// RejectProposal moves a NEEDS_CONFIRMATION proposal to REJECTED.
func (g *Gateway) RejectProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := g.transition(ctx, id, proposal.Transition{
		From: proposal.StatusNeedsConfirmation,
		To:   proposal.StatusRejected,
		At:   g.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("RejectProposal: %w", err)
	}
	return p, nil
}

// ExecuteProposal runs an APPROVED proposal through the executor, keyed by its
// params hash, then records EXECUTED or FAILED.
func (g *Gateway) ExecuteProposal(ctx context.Context, id string) (res *executor.ExecutionResult) {
	var toolName string
	defer func() {
		if toolName != "" {
			g.metrics.ObserveCall(toolName, string(res.Status))
		}
	}()

	p, err := g.proposals.Get(ctx, id)
	if err != nil {
		g.logger.Info("proposal execute rejected", zap.String("proposal_id", id), zap.Error(err))
		if errors.Is(err, proposal.ErrProposalNotFound) {
			return executor.ErrorResult(proposal.ErrProposalNotFound.Error())
		}
		return executor.ErrorResult(err.Error())
	}
	toolName = p.ToolName

	if p.Status != proposal.StatusApproved {
		return g.failProposal(p, proposal.ErrProposalNotApproved.Error())
	}
	tool := g.registry.Get(p.ToolName)
	if tool == nil {
		return g.failProposal(p, ErrUnknownTool.Error())
	}

	res = g.executor.Execute(ctx, executor.Request{
		Tool:           tool,
		Params:         p.Params,
		Actor:          p.RequestedBy,
		Signals:        registry.Signals{},
		IdempotencyKey: p.ParamsHash,
		Decision:       registry.DecisionRequireConfirm,
		Reasons:        p.RiskReport,
		ProposalID:     p.ID,
	})

	to := proposal.StatusExecuted
	if res.Status != executor.StatusOK {
		to = proposal.StatusFailed
	}
	if _, err := g.transition(ctx, id, proposal.Transition{From: proposal.StatusApproved, To: to, At: g.now()}); err != nil {
		// A concurrent execute already settled the proposal.
		g.logger.Warn("proposal status not updated after execution",
			zap.String("proposal_id", id),
			zap.String("status", string(to)),
			zap.Error(err),
		)
	}
	return res
}

func (g *Gateway) failProposal(p *proposal.Proposal, msg string) *executor.ExecutionResult {
	g.audit.Append(audit.Entry{
		ToolName:   p.ToolName,
		Actor:      p.RequestedBy,
		ParamsHash: p.ParamsHash,
		Status:     string(executor.StatusError),
		Error:      msg,
		ProposalID: p.ID,
	})
	g.logger.Info("proposal execute rejected",
		zap.String("proposal_id", p.ID),
		zap.String("tool_name", p.ToolName),
		zap.String("status", string(p.Status)),
		zap.String("error", msg),
	)
	return executor.ErrorResult(msg)
}

func (g *Gateway) transition(ctx context.Context, id string, t proposal.Transition) (*proposal.Proposal, error) {
	p, err := g.proposals.Apply(ctx, id, t)
	if err != nil {
		return nil, err
	}
	g.metrics.ObserveProposal(string(t.To))
	g.logger.Info("proposal transitioned",
		zap.String("proposal_id", id),
		zap.String("tool_name", p.ToolName),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	return p, nil
}
