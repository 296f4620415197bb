// Package settings persists user-facing configuration: the free-form
// settings key-value table, the codebase index exclusion config, and
// keyring-backed provider secrets.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/providers"
)

// Setting keys stored in the settings table.
const (
	KeyEmbeddingConfig     = "embedding_config"
	KeyCodebaseIndexConfig = "codebase_index_config"
)

// Store wraps the settings table.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Get reads a raw setting value. Missing keys return NotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &providers.CoreError{Kind: providers.KindNotFound, Component: "settings", Message: fmt.Sprintf("setting %q not found", key)}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting: %w", err)
	}
	return value, nil
}

// Set writes a raw setting value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	return nil
}

// PersistedEmbeddingConfig is the embedding configuration stored under
// embedding_config, with the secret held in the keyring rather than the
// database.
type PersistedEmbeddingConfig struct {
	Type      embedding.ProviderType `json:"type"`
	Model     string                 `json:"model,omitempty"`
	BaseURL   string                 `json:"base_url,omitempty"`
	Dimension int                    `json:"dimension,omitempty"`
	BatchSize int                    `json:"batch_size,omitempty"`

	// APIKeyAlias names the keyring entry holding the secret.
	APIKeyAlias string `json:"api_key_alias,omitempty"`
}

// GetEmbeddingConfig reads the persisted embedding configuration.
func (s *Store) GetEmbeddingConfig(ctx context.Context) (*PersistedEmbeddingConfig, error) {
	raw, err := s.Get(ctx, KeyEmbeddingConfig)
	if err != nil {
		return nil, err
	}
	var cfg PersistedEmbeddingConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "settings", Cause: err}
	}
	return &cfg, nil
}

// SetEmbeddingConfig persists the embedding configuration.
func (s *Store) SetEmbeddingConfig(ctx context.Context, cfg PersistedEmbeddingConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return &providers.CoreError{Kind: providers.KindParseError, Component: "settings", Cause: err}
	}
	return s.Set(ctx, KeyEmbeddingConfig, string(raw))
}

// CodebaseIndexConfig holds the user's extra exclusions on top of the
// built-ins.
type CodebaseIndexConfig struct {
	ExtraExcludedDirs     []string `json:"extra_excluded_dirs,omitempty"`
	ExtraBinaryExtensions []string `json:"extra_binary_extensions,omitempty"`
}

// GetCodebaseIndexConfig reads the index config; a missing row returns
// the empty config.
func (s *Store) GetCodebaseIndexConfig(ctx context.Context) (*CodebaseIndexConfig, error) {
	raw, err := s.Get(ctx, KeyCodebaseIndexConfig)
	if err != nil {
		if providers.KindOf(err) == providers.KindNotFound {
			return &CodebaseIndexConfig{}, nil
		}
		return nil, err
	}
	var cfg CodebaseIndexConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "settings", Cause: err}
	}
	return &cfg, nil
}

// SetCodebaseIndexConfig normalises and persists the user extras:
// directories deduped, extensions deduped, lowercased, and stripped of
// any leading dot.
func (s *Store) SetCodebaseIndexConfig(ctx context.Context, cfg CodebaseIndexConfig) error {
	cfg.ExtraExcludedDirs = dedupe(cfg.ExtraExcludedDirs, func(d string) string {
		return strings.TrimSpace(d)
	})
	cfg.ExtraBinaryExtensions = dedupe(cfg.ExtraBinaryExtensions, func(e string) string {
		return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
	})

	raw, err := json.Marshal(cfg)
	if err != nil {
		return &providers.CoreError{Kind: providers.KindParseError, Component: "settings", Cause: err}
	}
	return s.Set(ctx, KeyCodebaseIndexConfig, string(raw))
}

func dedupe(items []string, normalize func(string) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		n := normalize(item)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
