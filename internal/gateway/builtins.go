package gateway

import (
	"context"
	"encoding/json"
	"math"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/registry"
	"go.uber.org/zap"
)

// ToolAuditRecent lists recent audit entries through the gateway itself.
const ToolAuditRecent = "audit.get_recent_actions"

func (g *Gateway) registerBuiltins() {
	_, err := g.registry.Register(registry.ToolDefinition{
		Name:         ToolAuditRecent,
		Description:  "Read recent audit actions",
		Capabilities: []string{"audit.read"},
		RiskLevel:    registry.RiskLow,
		ParamsSchema: &params.Schema{
			Properties: map[string]params.Property{
				"limit": {Type: params.TypeNumber},
			},
		},
		Handler: g.recentActions,
		Summary: func(map[string]any) string { return "Read recent audit actions" },
	})
	if err != nil {
		g.logger.Error("failed to register built-in tool", zap.String("tool_name", ToolAuditRecent), zap.Error(err))
	}
}

// recentActions returns the newest audit entries. A limit of 0, or one beyond
// any realistic log size, returns every entry; a missing or negative limit
// uses the default.
func (g *Gateway) recentActions(_ context.Context, p map[string]any, _ registry.Invocation) (any, error) {
	limit := audit.DefaultListLimit
	if n, ok := numberParam(p["limit"]); ok && n >= 0 {
		if n == 0 || n >= math.MaxInt32 {
			limit = math.MaxInt32
		} else {
			limit = int(n)
		}
	}
	return g.audit.List(limit), nil
}

// numberParam reads a JSON number in any of the forms params can carry.
// NaN is rejected.
func numberParam(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return f, !math.IsNaN(f)
}
