package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	auditEventTokenIssue    = "token_issue"
	auditEventTokenValidate = "token_validate"
	auditEventTokenConsume  = "token_consume"
	auditEventRefreshRotate = "refresh_rotate"
	auditEventRefreshRevoke = "refresh_revoke"
	auditEventAuthenticate  = "bearer_authenticate"
)

// auditDispatcher decouples request paths from the sink: Emit enqueues,
// a single pump goroutine delivers. A nil dispatcher (auditing disabled)
// is a valid no-op receiver for every method.
type auditDispatcher struct {
	sink    AuditSink
	queue   chan AuditEvent
	block   bool
	dropped atomic.Uint64
	drained chan struct{}

	// mu gates queue sends against Close: Emit holds it shared, Close
	// exclusively, so the channel is never written after it is closed.
	mu     sync.RWMutex
	closed bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:    sink,
		queue:   make(chan AuditEvent, cfg.BufferSize),
		block:   !cfg.DropIfFull,
		drained: make(chan struct{}),
	}
	go d.pump()
	return d
}

// pump delivers until the queue is closed, then signals the drain done.
func (d *auditDispatcher) pump() {
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
	close(d.drained)
}

// Emit enqueues one event. In drop mode a full queue increments the drop
// counter; in blocking mode Emit waits for space or context cancellation.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Dropped reports how many events were lost to backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops intake, delivers everything already queued, and returns once
// the pump has drained. Subsequent Emit and Close calls are no-ops.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.queue)
	<-d.drained
}
