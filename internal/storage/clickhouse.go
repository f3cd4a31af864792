package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/triage-ai/palisade/services/tool_gateway/internal/audit"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// AuditEventsSchema creates the table ClickHouseWriter inserts into.
const AuditEventsSchema = `
CREATE TABLE IF NOT EXISTS tool_audit_events (
	timestamp   DateTime64(3),
	tool_name   LowCardinality(String),
	actor_json  String,
	params_hash String,
	status      LowCardinality(String),
	decision    LowCardinality(String),
	reasons     Array(String),
	error       String,
	proposal_id String,
	trace_id    String,
	intent_id   String,
	replayed    UInt8
) ENGINE = MergeTree
ORDER BY (tool_name, timestamp)`

// ClickHouseWriter writes audit entries to ClickHouse asynchronously.
// Write() is non-blocking: entries are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *audit.Entry
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects, ensures the table exists and starts the flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, AuditEventsSchema); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *audit.Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an entry for async insertion. Drops it if the buffer is full.
func (w *ClickHouseWriter) Write(e *audit.Entry) {
	select {
	case w.buffer <- e:
	default:
		w.logger.Warn("clickhouse buffer full, dropping audit entry",
			zap.String("tool_name", e.ToolName),
			zap.String("trace_id", e.TraceID),
		)
	}
}

// Close signals the flush loop to drain remaining entries and waits for it.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*audit.Entry, 0, flushBatch)

	for {
		select {
		case e := <-w.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-w.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(entries []*audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO tool_audit_events (
			timestamp, tool_name, actor_json, params_hash, status,
			decision, reasons, error, proposal_id, trace_id,
			intent_id, replayed
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		if err := batch.Append(row(e)...); err != nil {
			w.logger.Error("clickhouse append audit entry failed",
				zap.String("trace_id", e.TraceID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

// row maps an entry onto the tool_audit_events column order.
func row(e *audit.Entry) []any {
	actorJSON := "{}"
	if len(e.Actor) > 0 {
		if b, err := json.Marshal(e.Actor); err == nil {
			actorJSON = string(b)
		}
	}
	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	var replayed uint8
	if e.Replayed {
		replayed = 1
	}
	return []any{
		e.Timestamp,
		e.ToolName,
		actorJSON,
		e.ParamsHash,
		e.Status,
		string(e.Decision),
		reasons,
		e.Error,
		e.ProposalID,
		e.TraceID,
		e.IntentID,
		replayed,
	}
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs entries to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(e *audit.Entry) {
	w.logger.Info("tool_audit_event",
		zap.Time("timestamp", e.Timestamp),
		zap.String("tool_name", e.ToolName),
		zap.String("status", e.Status),
		zap.String("decision", string(e.Decision)),
		zap.Strings("reasons", e.Reasons),
		zap.String("error", e.Error),
		zap.String("params_hash", e.ParamsHash),
		zap.String("proposal_id", e.ProposalID),
		zap.String("trace_id", e.TraceID),
		zap.String("intent_id", e.IntentID),
		zap.Bool("replayed", e.Replayed),
	)
}

func (w *LogWriter) Close() {}
