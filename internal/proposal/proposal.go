package proposal

import (
	"errors"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrProposalNotFound     = errors.New("PROPOSAL_NOT_FOUND")
	ErrProposalNotApproved  = errors.New("PROPOSAL_NOT_APPROVED")
	ErrInvalidProposalState = errors.New("INVALID_PROPOSAL_STATE")
)

// Status is a proposal lifecycle state.
type Status string

const (
	StatusNeedsConfirmation Status = "NEEDS_CONFIRMATION"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusExecuted          Status = "EXECUTED"
	StatusFailed            Status = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// ConfirmMethodUser is the only confirmation method the gateway issues.
const ConfirmMethodUser = "user_confirm"

// ReasonManual is the risk report of proposals created through the manual API.
const ReasonManual = "manual"

// RequiredConfirmation tells the confirming party what is being asked of them.
type RequiredConfirmation struct {
	Method string             `json:"method"`
	Level  registry.RiskLevel `json:"level"`
}

// Proposal is a call parked until a human approves or rejects it.
type Proposal struct {
	ID                   string               `json:"proposal_id"`
	CreatedAt            time.Time            `json:"created_at"`
	ExpiresAt            *time.Time           `json:"expires_at"`
	RequestedBy          registry.Actor       `json:"requested_by"`
	ToolName             string               `json:"tool_name"`
	Params               map[string]any       `json:"params"`
	ParamsHash           string               `json:"params_hash"`
	SummaryHuman         string               `json:"summary_human"`
	RiskReport           []string             `json:"risk_report"`
	RequiredConfirmation RequiredConfirmation `json:"required_confirmation"`
	Status               Status               `json:"status"`
	ApprovedAt           *time.Time           `json:"approved_at"`
	RejectedAt           *time.Time           `json:"rejected_at"`
	ExecutedAt           *time.Time           `json:"executed_at"`

	// ConfirmationTokenHash is the bcrypt hash of the token supplied on approve,
	// kept only as an at-rest record. It is never compared or serialized.
	ConfirmationTokenHash string `json:"-"`
}

// New builds a NEEDS_CONFIRMATION proposal. The hash and summary are computed
// eagerly so the record describes itself without touching the handler.
func New(id string, now time.Time, tool *registry.ToolDefinition, p map[string]any, actor registry.Actor, reasons []string) *Proposal {
	p = params.Clone(p)
	if p == nil {
		p = map[string]any{}
	}
	report := make([]string, len(reasons))
	copy(report, reasons)
	return &Proposal{
		ID:           id,
		CreatedAt:    now,
		RequestedBy:  params.Clone(actor),
		ToolName:     tool.Name,
		Params:       p,
		ParamsHash:   params.Hash(p),
		SummaryHuman: tool.HumanSummary(p),
		RiskReport:   report,
		RequiredConfirmation: RequiredConfirmation{
			Method: ConfirmMethodUser,
			Level:  tool.RiskLevel,
		},
		Status: StatusNeedsConfirmation,
	}
}

// Clone returns a copy that shares no mutable state with p.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.Params = params.Clone(p.Params)
	c.RequestedBy = params.Clone(p.RequestedBy)
	c.RiskReport = append(make([]string, 0, len(p.RiskReport)), p.RiskReport...)
	c.ExpiresAt = cloneTime(p.ExpiresAt)
	c.ApprovedAt = cloneTime(p.ApprovedAt)
	c.RejectedAt = cloneTime(p.RejectedAt)
	c.ExecutedAt = cloneTime(p.ExecutedAt)
	return &c
}

// HashConfirmationToken returns the stored form of a confirmation token. Empty stays empty.
func HashConfirmationToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Transition describes one lifecycle step applied atomically by a Store.
type Transition struct {
	From      Status
	To        Status
	At        time.Time
	TokenHash string // only recorded on approve
}

// stamp sets the timestamp field belonging to the target state.
func (t Transition) stamp(p *Proposal) {
	at := t.At
	switch t.To {
	case StatusApproved:
		p.ApprovedAt = &at
		if t.TokenHash != "" {
			p.ConfirmationTokenHash = t.TokenHash
		}
	case StatusRejected:
		p.RejectedAt = &at
	case StatusExecuted, StatusFailed:
		p.ExecutedAt = &at
	}
	p.Status = t.To
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
