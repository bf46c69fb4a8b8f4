package authcore

import (
	"context"
	"time"

	"github.com/carebridge/authcore/bearer"
	"github.com/redis/go-redis/v9"
)

// Engine is the authentication core. Construct it once with New and share
// it; all methods are safe for concurrent use. The Engine never mutates
// accounts or links; its only writes are its own token rows.
type Engine struct {
	config    Config
	store     TokenStore
	directory Directory
	hasher    secretHasher
	bearer    *bearer.Manager
	audit     *auditDispatcher
	metrics   *Metrics
	now       func() time.Time
}

// Deps carries the engine's collaborators. Redis supplies the default
// TokenStore when Store is nil. Clock defaults to time.Now and exists for
// tests that simulate expiry.
type Deps struct {
	Redis     *redis.Client
	Store     TokenStore
	Directory Directory
	AuditSink AuditSink
	Clock     func() time.Time
}

// New validates the configuration and wires the engine. Configuration
// violations (undersized pepper or signing key) are returned here, at
// process start, never at request time.
func New(cfg Config, deps Deps) (*Engine, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store := deps.Store
	if store == nil {
		if deps.Redis == nil {
			return nil, ErrEngineNotReady
		}
		store = NewRedisTokenStore(deps.Redis, cfg.RedisPrefix)
	}
	if deps.Directory == nil {
		return nil, ErrEngineNotReady
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	bearerManager, err := bearer.NewManager(bearer.Config{
		SigningKey: cfg.Bearer.SigningKey,
		AccessTTL:  cfg.Bearer.AccessTTL,
		Issuer:     cfg.Bearer.Issuer,
		Audience:   cfg.Bearer.Audience,
		Leeway:     cfg.Bearer.Leeway,
		Now:        clock,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:    cfg,
		store:     store,
		directory: deps.Directory,
		hasher:    newSecretHasher(cfg.Pepper),
		bearer:    bearerManager,
		audit:     newAuditDispatcher(cfg.Audit, deps.AuditSink),
		metrics:   NewMetrics(cfg.Metrics),
		now:       clock,
	}, nil
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a deep copy of the engine's metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID, lookupID string,
	failure error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:   e.now(),
		EventType:   eventType,
		PrincipalID: principalID,
		OrgID:       orgIDFromContext(ctx),
		LookupID:    lookupID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
