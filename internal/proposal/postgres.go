package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// Schema creates the proposals table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_proposals (
	proposal_id             TEXT PRIMARY KEY,
	created_at              TIMESTAMPTZ NOT NULL,
	expires_at              TIMESTAMPTZ,
	requested_by            JSONB NOT NULL DEFAULT '{}',
	tool_name               TEXT NOT NULL,
	params                  JSONB NOT NULL DEFAULT '{}',
	params_hash             TEXT NOT NULL,
	summary_human           TEXT NOT NULL,
	risk_report             JSONB NOT NULL DEFAULT '[]',
	confirm_method          TEXT NOT NULL,
	confirm_level           TEXT NOT NULL,
	status                  TEXT NOT NULL,
	approved_at             TIMESTAMPTZ,
	rejected_at             TIMESTAMPTZ,
	executed_at             TIMESTAMPTZ,
	confirmation_token_hash TEXT
)`

const selectColumns = `proposal_id, created_at, expires_at, requested_by, tool_name,
	       params, params_hash, summary_human, risk_report, confirm_method,
	       confirm_level, status, approved_at, rejected_at, executed_at,
	       confirmation_token_hash`

// PostgresStore persists proposals in the tool_proposals table.
// Open the *sql.DB with the pgx stdlib driver.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore over an open database.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p *Proposal) error {
	actor, err := marshalJSON(p.RequestedBy, "{}")
	if err != nil {
		return fmt.Errorf("Create: requested_by: %w", err)
	}
	prm, err := marshalJSON(p.Params, "{}")
	if err != nil {
		return fmt.Errorf("Create: params: %w", err)
	}
	report, err := marshalJSON(p.RiskReport, "[]")
	if err != nil {
		return fmt.Errorf("Create: risk_report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_proposals (
			proposal_id, created_at, expires_at, requested_by, tool_name,
			params, params_hash, summary_human, risk_report, confirm_method,
			confirm_level, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		p.ID, p.CreatedAt, nullTime(p.ExpiresAt), actor, p.ToolName,
		prm, p.ParamsHash, p.SummaryHuman, report, p.RequiredConfirmation.Method,
		string(p.RequiredConfirmation.Level), string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM tool_proposals
		WHERE proposal_id = $1
	`, id)

	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get: %w", ErrProposalNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return p, nil
}

// Apply runs the transition as a single conditional UPDATE so concurrent
// callers cannot both move a proposal out of the same state.
func (s *PostgresStore) Apply(ctx context.Context, id string, t Transition) (*Proposal, error) {
	column, err := stampColumn(t.To)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE tool_proposals
		SET status = $1,
		    `+column+` = $2,
		    confirmation_token_hash = COALESCE(NULLIF($3, ''), confirmation_token_hash)
		WHERE proposal_id = $4 AND status = $5
		RETURNING `+selectColumns,
		string(t.To), t.At, t.TokenHash, id, string(t.From),
	)

	p, err := scanProposal(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	// No row updated: either the id is unknown or the status moved on.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, fmt.Errorf("Apply: %w", getErr)
	}
	s.logger.Debug("proposal transition rejected",
		zap.String("proposal_id", id),
		zap.String("status", string(current.Status)),
		zap.String("want", string(t.From)),
	)
	return nil, fmt.Errorf("Apply: %s is %s, want %s: %w", id, current.Status, t.From, ErrInvalidProposalState)
}

func stampColumn(to Status) (string, error) {
	switch to {
	case StatusApproved:
		return "approved_at", nil
	case StatusRejected:
		return "rejected_at", nil
	case StatusExecuted, StatusFailed:
		return "executed_at", nil
	}
	return "", fmt.Errorf("no transition into %s: %w", to, ErrInvalidProposalState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var (
		p                      Proposal
		expiresAt, approvedAt  sql.NullTime
		rejectedAt, executedAt sql.NullTime
		actor, prm, report     []byte
		method, level, status  string
		tokenHash              sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.CreatedAt, &expiresAt, &actor, &p.ToolName,
		&prm, &p.ParamsHash, &p.SummaryHuman, &report, &method,
		&level, &status, &approvedAt, &rejectedAt, &executedAt,
		&tokenHash,
	); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(actor, &p.RequestedBy); err != nil {
		return nil, fmt.Errorf("scanProposal: requested_by: %w", err)
	}
	if err := unmarshalJSON(prm, &p.Params); err != nil {
		return nil, fmt.Errorf("scanProposal: params: %w", err)
	}
	if err := unmarshalJSON(report, &p.RiskReport); err != nil {
		return nil, fmt.Errorf("scanProposal: risk_report: %w", err)
	}
	if p.Params == nil {
		p.Params = map[string]any{}
	}
	if p.RiskReport == nil {
		p.RiskReport = []string{}
	}

	p.RequiredConfirmation = RequiredConfirmation{Method: method, Level: registry.RiskLevel(level)}
	p.Status = Status(status)
	p.ExpiresAt = timePtr(expiresAt)
	p.ApprovedAt = timePtr(approvedAt)
	p.RejectedAt = timePtr(rejectedAt)
	p.ExecutedAt = timePtr(executedAt)
	if tokenHash.Valid {
		p.ConfirmationTokenHash = tokenHash.String
	}
	return &p, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
