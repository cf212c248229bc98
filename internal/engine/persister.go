package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/automation/internal/kv"
	"github.com/gyaneshwarpardhi/automation/internal/metrics"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

// DefaultKey is the key the rule document is stored under.
const DefaultKey = "AUTOMATION_EVENTS"

// Persister moves the rule set between the store and a kv.Store.
type Persister struct {
	saveMu sync.Mutex // orders snapshot+write pairs so a stale snapshot never lands last

	kv     kv.Store
	key    string
	store  *store.Store
	logger *slog.Logger
}

func NewPersister(kvs kv.Store, key string, st *store.Store, logger *slog.Logger) *Persister {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{kv: kvs, key: key, store: st, logger: logger}
}

// Load replaces the store's content with the stored document. An empty
// value seeds the built-in rule. A malformed document is logged and the
// rules decoded before the failure are kept.
func (p *Persister) Load(ctx context.Context) error {
	data, err := p.kv.Get(ctx, p.key, "")
	if err != nil {
		return fmt.Errorf("read %s: %w", p.key, err)
	}
	if data == "" {
		seed, err := rule.Seed()
		if err != nil {
			return fmt.Errorf("seed rule: %w", err)
		}
		p.store.Replace([]rule.Rule{seed})
		p.logger.Info("no stored rules, seeded default", "rule", seed.Title)
		return nil
	}
	rules, err := rule.DecodeDocument(data)
	if err != nil {
		p.logger.Error("rule document partially loaded", "err", err, "loaded", len(rules))
	}
	p.store.Replace(rules)
	p.logger.Info("rules loaded", "count", len(rules))
	return nil
}

// Save writes the current store content. Concurrent saves are serialized,
// each taking its snapshot once it holds the lock.
func (p *Persister) Save(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	data, err := rule.EncodeDocument(p.store.Snapshot())
	if err == nil {
		err = p.kv.Put(ctx, p.key, data)
	}
	if err != nil {
		metrics.PersistErrors.Inc()
		return fmt.Errorf("store %s: %w", p.key, err)
	}
	return nil
}
