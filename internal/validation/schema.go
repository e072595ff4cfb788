// Package validation implements the schema pass and business-rule pass that
// run before an outbound envelope is built and after an inbound one is
// parsed.
package validation

import (
	"context"
	"sync"
	"time"

	"htngsync/internal/model"
)

// SchemaTimeout is the per-kind schema validation timeout bound; callers pick a value in this range per kind.
const (
	MinSchemaTimeout = 5 * time.Second
	MaxSchemaTimeout = 20 * time.Second
)

// DefaultSchemaCacheTTL is the default in-memory schema cache lifetime.
const DefaultSchemaCacheTTL = 3600 * time.Second

// SchemaRule is a single structural check run against a message kind's body.
// The core has no XSD engine dependency in its corpus (no pack example
// imports one); the schema pass is therefore a structural stand-in — root
// element name and required namespace presence — documented in DESIGN.md.
type SchemaRule func(kind model.Kind, body []byte) error

// schemaCacheEntry holds a compiled (here: loaded) rule set plus its load time.
type schemaCacheEntry struct {
	rules    []SchemaRule
	loadedAt time.Time
}

// SchemaCache is a process-global, single-writer-many-reader cache of schema
// rule sets per kind, invalidated by TTL.
type SchemaCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	loader  func(kind model.Kind) []SchemaRule
	entries map[model.Kind]schemaCacheEntry
}

// NewSchemaCache builds a cache backed by loader, which returns the rule set
// for a kind (called at most once per TTL window per kind).
func NewSchemaCache(ttl time.Duration, loader func(kind model.Kind) []SchemaRule) *SchemaCache {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	return &SchemaCache{ttl: ttl, loader: loader, entries: map[model.Kind]schemaCacheEntry{}}
}

func (c *SchemaCache) rulesFor(kind model.Kind) []SchemaRule {
	c.mu.RLock()
	entry, ok := c.entries[kind]
	c.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < c.ttl {
		return entry.rules
	}

	rules := c.loader(kind)
	c.mu.Lock()
	c.entries[kind] = schemaCacheEntry{rules: rules, loadedAt: time.Now()}
	c.mu.Unlock()
	return rules
}

// Clear empties the cache, forcing the next lookup to reload. Used by the
// cache-config CLI command and by mapping-change invalidation.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	c.entries = map[model.Kind]schemaCacheEntry{}
	c.mu.Unlock()
}

// Stats reports the number of cached kinds, for the cache-config CLI's
// "stats" subcommand.
func (c *SchemaCache) Stats() (cachedKinds int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Validate runs kind's cached rule set against body with a bounded timeout.
// A timeout or rule failure is reported as a single error; the caller wraps
// it with the validation error kind.
func (c *SchemaCache) Validate(ctx context.Context, kind model.Kind, body []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = MaxSchemaTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		for _, rule := range c.rulesFor(kind) {
			if err := rule(kind, body); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
