package executor

import "slices"

// Status is the outcome class of a call.
type Status string

const (
	StatusOK                   Status = "OK"
	StatusConfirmationRequired Status = "CONFIRMATION_REQUIRED"
	StatusDenied               Status = "DENIED"
	StatusError                Status = "ERROR"
)

// Valid reports whether s is one of the four recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusConfirmationRequired, StatusDenied, StatusError:
		return true
	}
	return false
}

// ExecutionResult is the normalized answer to every call.
// HumanSummary is always set; MachineEvents is never nil.
type ExecutionResult struct {
	Status        Status   `json:"status"`
	Result        any      `json:"result,omitempty"`
	HumanSummary  string   `json:"human_summary"`
	MachineEvents []any    `json:"machine_events"`
	Error         string   `json:"error,omitempty"`
	Reason        []string `json:"reason,omitempty"`
	ProposalID    string   `json:"proposal_id,omitempty"`
}

// ErrorResult builds an ERROR result carrying msg as both error and summary.
func ErrorResult(msg string) *ExecutionResult {
	return &ExecutionResult{
		Status:        StatusError,
		HumanSummary:  msg,
		MachineEvents: []any{},
		Error:         msg,
	}
}

// Normalize shapes a handler's return value. An ExecutionResult, or a map with
// a recognized "status", passes through; anything else is wrapped as OK.
// summary fills HumanSummary when the value brings none.
func Normalize(v any, summary string) *ExecutionResult {
	var res *ExecutionResult
	switch r := v.(type) {
	case *ExecutionResult:
		if r != nil && r.Status.Valid() {
			c := *r
			c.MachineEvents = slices.Clone(r.MachineEvents)
			c.Reason = slices.Clone(r.Reason)
			res = &c
		}
	case ExecutionResult:
		if r.Status.Valid() {
			r.MachineEvents = slices.Clone(r.MachineEvents)
			r.Reason = slices.Clone(r.Reason)
			res = &r
		}
	case map[string]any:
		res = fromMap(r)
	}
	if res == nil {
		res = &ExecutionResult{Status: StatusOK, Result: v}
	}

	if res.HumanSummary == "" {
		res.HumanSummary = summary
	}
	if res.MachineEvents == nil {
		res.MachineEvents = []any{}
	}
	return res
}

func fromMap(m map[string]any) *ExecutionResult {
	raw, _ := m["status"].(string)
	status := Status(raw)
	if !status.Valid() {
		return nil
	}
	res := &ExecutionResult{Status: status, Result: m["result"]}
	res.HumanSummary, _ = m["human_summary"].(string)
	res.Error, _ = m["error"].(string)
	res.ProposalID, _ = m["proposal_id"].(string)
	switch events := m["machine_events"].(type) {
	case []any:
		res.MachineEvents = slices.Clone(events)
	case []map[string]any:
		for _, e := range events {
			res.MachineEvents = append(res.MachineEvents, e)
		}
	}
	switch reason := m["reason"].(type) {
	case []string:
		res.Reason = slices.Clone(reason)
	case []any:
		for _, r := range reason {
			if s, ok := r.(string); ok {
				res.Reason = append(res.Reason, s)
			}
		}
	case string:
		res.Reason = []string{reason}
	}
	return res
}
