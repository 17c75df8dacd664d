package sessionauth

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessionauth/internal/audit"
)

// AuditEvent records the outcome of one flow. Type is the flow name, e.g.
// "login" or "reset_password".
type AuditEvent = audit.Event

// AuditSink receives audit events from a background goroutine.
type AuditSink = audit.Sink

// AuditOptions tunes the buffer between the flows and the sink.
type AuditOptions struct {
	// BufferSize defaults to 256.
	BufferSize int
	// DropIfFull discards events rather than blocking the flow when the
	// buffer is full.
	DropIfFull bool
}

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogAuditSink writes events to logger under the "audit" name.
func NewLogAuditSink(logger *zap.Logger) AuditSink {
	return audit.NewLogSink(logger)
}

// WithAudit enables audit events. Call [Engine.Close] to flush them.
func (b *Builder) WithAudit(sink AuditSink, opts AuditOptions) *Builder {
	b.auditSink = sink
	b.auditOpts = opts
	return b
}

// Close flushes queued audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// AuditDropped reports how many audit events never reached the sink, either
// discarded at the queue or lost to a panicking sink.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped() + e.audit.Failed()
}

func (e *Engine) auditEvent(ctx context.Context, flow, userID string) *audit.Event {
	return &audit.Event{
		Type:      flow,
		UserID:    userID,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}
}

func (e *Engine) emitAudit(ctx context.Context, ev *audit.Event, err error) {
	if e.audit == nil {
		return
	}
	ev.Timestamp = e.now()
	ev.Success = err == nil
	if err != nil {
		ev.Code = AsError(err).Code
	}
	e.audit.Emit(ctx, *ev)
}
