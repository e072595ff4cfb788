// Package mapping owns property mappings and the per-property configuration
// derived from them. Config is rebuilt whenever the mapping changes and
// cached process-globally; cache invalidation is wired as an eventbus
// subscriber rather than a method the mapping store calls directly, the same
// observer-driven cascade the sync-status store uses for SyncStatusChanged.
package mapping

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"htngsync/internal/model"
)

// Store persists property mappings.
type Store interface {
	Get(ctx context.Context, internalPropertyID int64) (*model.PropertyMapping, error)
	GetByHotelCode(ctx context.Context, hotelCode string) (*model.PropertyMapping, error)
	Upsert(ctx context.Context, m *model.PropertyMapping) error
	SetActive(ctx context.Context, internalPropertyID int64, active bool) error
}

// SQLStore is a Postgres- or MySQL-backed Store.
type SQLStore struct {
	db     *sql.DB
	engine string
}

// NewSQLStore opens a connection for engine ("postgres" or "mysql").
func NewSQLStore(engine, dsn string) (*SQLStore, error) {
	var driver string
	switch engine {
	case "postgres":
		driver = "postgres"
	case "mysql":
		driver = "mysql"
	default:
		return nil, fmt.Errorf("mapping: unsupported engine %q", engine)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("mapping: open %s: %w", engine, err)
	}
	return &SQLStore{db: db, engine: engine}, nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.engine == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Get loads the active mapping for an internal property id, or nil.
func (s *SQLStore) Get(ctx context.Context, internalPropertyID int64) (*model.PropertyMapping, error) {
	query := fmt.Sprintf(`
		SELECT id, internal_property_id, external_hotel_code, active, room_type_map,
		       rate_plan_map, excludes, created_at, updated_at
		FROM property_mapping WHERE internal_property_id = %s AND active = true`,
		s.placeholder(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, internalPropertyID))
}

// GetByHotelCode loads the active mapping for an external hotel code, used
// on the inbound side to resolve the internal property for an envelope.
func (s *SQLStore) GetByHotelCode(ctx context.Context, hotelCode string) (*model.PropertyMapping, error) {
	query := fmt.Sprintf(`
		SELECT id, internal_property_id, external_hotel_code, active, room_type_map,
		       rate_plan_map, excludes, created_at, updated_at
		FROM property_mapping WHERE external_hotel_code = %s AND active = true`,
		s.placeholder(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, hotelCode))
}

func (s *SQLStore) scanOne(row *sql.Row) (*model.PropertyMapping, error) {
	var m model.PropertyMapping
	var roomTypeMapJSON, ratePlanMapJSON, excludesJSON []byte
	err := row.Scan(&m.ID, &m.InternalPropertyID, &m.ExternalHotelCode, &m.Active,
		&roomTypeMapJSON, &ratePlanMapJSON, &excludesJSON, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mapping: scan: %w", err)
	}
	_ = json.Unmarshal(roomTypeMapJSON, &m.RoomTypeMap)
	_ = json.Unmarshal(ratePlanMapJSON, &m.RatePlanMap)
	_ = json.Unmarshal(excludesJSON, &m.Excludes)
	return &m, nil
}

// Upsert inserts or updates a mapping, enforcing the at-most-one-active
// invariant at the application layer by deactivating any other active
// mapping sharing the internal property id or the external hotel code
// before writing the new one.
func (s *SQLStore) Upsert(ctx context.Context, m *model.PropertyMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mapping: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if m.Active {
		deactivate := fmt.Sprintf(
			`UPDATE property_mapping SET active = false
			 WHERE active = true AND (internal_property_id = %s OR external_hotel_code = %s) AND id != %s`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3))
		if _, err = tx.ExecContext(ctx, deactivate, m.InternalPropertyID, m.ExternalHotelCode, m.ID); err != nil {
			return fmt.Errorf("mapping: deactivate conflicting rows: %w", err)
		}
	}

	roomTypeMapJSON, _ := json.Marshal(m.RoomTypeMap)
	ratePlanMapJSON, _ := json.Marshal(m.RatePlanMap)
	excludesJSON, _ := json.Marshal(m.Excludes)

	var query string
	if s.engine == "postgres" {
		query = `
			INSERT INTO property_mapping
				(internal_property_id, external_hotel_code, active, room_type_map, rate_plan_map,
				 excludes, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (internal_property_id, external_hotel_code) DO UPDATE SET
				active = EXCLUDED.active, room_type_map = EXCLUDED.room_type_map,
				rate_plan_map = EXCLUDED.rate_plan_map, excludes = EXCLUDED.excludes,
				updated_at = EXCLUDED.updated_at`
	} else {
		query = `
			INSERT INTO property_mapping
				(internal_property_id, external_hotel_code, active, room_type_map, rate_plan_map,
				 excludes, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?)
			ON DUPLICATE KEY UPDATE
				active = VALUES(active), room_type_map = VALUES(room_type_map),
				rate_plan_map = VALUES(rate_plan_map), excludes = VALUES(excludes),
				updated_at = VALUES(updated_at)`
	}
	if _, err = tx.ExecContext(ctx, query, m.InternalPropertyID, m.ExternalHotelCode, m.Active,
		roomTypeMapJSON, ratePlanMapJSON, excludesJSON, m.CreatedAt, m.UpdatedAt); err != nil {
		return fmt.Errorf("mapping: upsert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("mapping: commit: %w", err)
	}
	return nil
}

// SetActive flips the active flag for a mapping.
func (s *SQLStore) SetActive(ctx context.Context, internalPropertyID int64, active bool) error {
	query := fmt.Sprintf(`UPDATE property_mapping SET active = %s WHERE internal_property_id = %s`,
		s.placeholder(1), s.placeholder(2))
	_, err := s.db.ExecContext(ctx, query, active, internalPropertyID)
	if err != nil {
		return fmt.Errorf("mapping: set active: %w", err)
	}
	return nil
}

// ConfigFromMapping derives a model.PropertyConfig from a mapping plus the
// credential/override fields that live alongside it.
func ConfigFromMapping(m model.PropertyMapping, username, password, endpointOverride string, features model.FeatureFlags, sync model.SyncSettings) model.PropertyConfig {
	return model.PropertyConfig{
		PropertyID:       m.InternalPropertyID,
		Username:         username,
		Password:         password,
		WSSEHotelCode:    m.ExternalHotelCode,
		EndpointOverride: endpointOverride,
		Features:         features,
		Sync:             sync,
	}
}

// ConfigCache is the process-global, single-writer-many-reader configuration
// cache, invalidated only by mapping events — never by TTL, unlike
// internal/validation.SchemaCache.
type ConfigCache struct {
	mu      sync.RWMutex
	entries map[int64]model.PropertyConfig
}

// NewConfigCache builds an empty cache.
func NewConfigCache() *ConfigCache {
	return &ConfigCache{entries: map[int64]model.PropertyConfig{}}
}

// Get returns the cached config for propertyID, if present.
func (c *ConfigCache) Get(propertyID int64) (model.PropertyConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[propertyID]
	return cfg, ok
}

// Put stores or replaces the cached config for propertyID.
func (c *ConfigCache) Put(cfg model.PropertyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cfg.PropertyID] = cfg
}

// Invalidate drops the cached config for propertyID, forcing the next Get to
// miss and the caller to rebuild from the mapping store.
func (c *ConfigCache) Invalidate(propertyID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, propertyID)
}

// Stats reports cache size for the cache-config CLI command.
func (c *ConfigCache) Stats() (size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear empties the cache.
func (c *ConfigCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[int64]model.PropertyConfig{}
}
