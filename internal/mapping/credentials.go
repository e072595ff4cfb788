package mapping

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"htngsync/internal/model"
)

// CredentialStore persists the per-property WSSE username/password plus the
// rest of model.PropertyConfig, with the password encrypted at rest using
// AES-256-GCM. Two lookups cover both directions: by WSSE username for
// inbound authentication and by property id for outbound envelope
// construction.
type CredentialStore struct {
	db  *sql.DB
	key []byte // 32-byte AES-256 key
}

// NewCredentialStore wraps db with a 32-byte AES-256 key.
func NewCredentialStore(db *sql.DB, key []byte) (*CredentialStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("mapping: AES key must be exactly 32 bytes, got %d", len(key))
	}
	return &CredentialStore{db: db, key: key}, nil
}

// Upsert stores or replaces the credentials and feature/sync settings for a
// property, overwriting any existing row for the same property id.
func (s *CredentialStore) Upsert(ctx context.Context, cfg model.PropertyConfig) error {
	ciphertext, err := s.encrypt([]byte(cfg.Password))
	if err != nil {
		return fmt.Errorf("mapping: encrypt credential: %w", err)
	}
	featuresJSON, _ := json.Marshal(cfg.Features)
	syncJSON, _ := json.Marshal(cfg.Sync)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO property_credential
			(property_id, username, encrypted_password, wsse_hotel_code, endpoint_override, features, sync_settings)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (property_id) DO UPDATE SET
			username = EXCLUDED.username, encrypted_password = EXCLUDED.encrypted_password,
			wsse_hotel_code = EXCLUDED.wsse_hotel_code, endpoint_override = EXCLUDED.endpoint_override,
			features = EXCLUDED.features, sync_settings = EXCLUDED.sync_settings`,
		cfg.PropertyID, cfg.Username, ciphertext, cfg.WSSEHotelCode, cfg.EndpointOverride, featuresJSON, syncJSON)
	if err != nil {
		return fmt.Errorf("mapping: upsert credential for property %d: %w", cfg.PropertyID, err)
	}
	return nil
}

// FindByUsername implements internal/inbound.CredentialResolver: the lookup
// the inbound dispatcher runs against the WSSE UsernameToken. Returns
// ok=false, no error, when no property has that username.
func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (model.PropertyConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT property_id, username, encrypted_password, wsse_hotel_code, endpoint_override, features, sync_settings
		FROM property_credential WHERE username = $1`, username)
	return s.scan(row)
}

// FindByPropertyID is the outbound-side counterpart, used to build the WSSE
// header and endpoint override for a given property's dispatch.
func (s *CredentialStore) FindByPropertyID(ctx context.Context, propertyID int64) (model.PropertyConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT property_id, username, encrypted_password, wsse_hotel_code, endpoint_override, features, sync_settings
		FROM property_credential WHERE property_id = $1`, propertyID)
	return s.scan(row)
}

// ListPropertyConfigs returns every stored property configuration. Used by
// the htngctl CLI (validate-config --all, cache-config warm) and by syncd's
// periodic full-sync scheduling.
func (s *CredentialStore) ListPropertyConfigs(ctx context.Context) ([]model.PropertyConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, username, encrypted_password, wsse_hotel_code, endpoint_override, features, sync_settings
		FROM property_credential ORDER BY property_id`)
	if err != nil {
		return nil, fmt.Errorf("mapping: list credentials: %w", err)
	}
	defer rows.Close()

	var configs []model.PropertyConfig
	for rows.Next() {
		var cfg model.PropertyConfig
		var ciphertext, featuresJSON, syncJSON []byte
		if err := rows.Scan(&cfg.PropertyID, &cfg.Username, &ciphertext, &cfg.WSSEHotelCode,
			&cfg.EndpointOverride, &featuresJSON, &syncJSON); err != nil {
			return nil, fmt.Errorf("mapping: scan credential row: %w", err)
		}
		plain, err := s.decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("mapping: decrypt credential for property %d: %w", cfg.PropertyID, err)
		}
		cfg.Password = string(plain)
		_ = json.Unmarshal(featuresJSON, &cfg.Features)
		_ = json.Unmarshal(syncJSON, &cfg.Sync)
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mapping: list credentials rows: %w", err)
	}
	return configs, nil
}

func (s *CredentialStore) scan(row *sql.Row) (model.PropertyConfig, bool, error) {
	var cfg model.PropertyConfig
	var ciphertext, featuresJSON, syncJSON []byte
	err := row.Scan(&cfg.PropertyID, &cfg.Username, &ciphertext, &cfg.WSSEHotelCode,
		&cfg.EndpointOverride, &featuresJSON, &syncJSON)
	if err == sql.ErrNoRows {
		return model.PropertyConfig{}, false, nil
	}
	if err != nil {
		return model.PropertyConfig{}, false, fmt.Errorf("mapping: scan credential: %w", err)
	}
	plain, err := s.decrypt(ciphertext)
	if err != nil {
		return model.PropertyConfig{}, false, fmt.Errorf("mapping: decrypt credential: %w", err)
	}
	cfg.Password = string(plain)
	_ = json.Unmarshal(featuresJSON, &cfg.Features)
	_ = json.Unmarshal(syncJSON, &cfg.Sync)
	return cfg, true, nil
}

// The nonce is prepended to the ciphertext so decrypt needs no separate
// nonce storage.
func (s *CredentialStore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *CredentialStore) decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("mapping: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
