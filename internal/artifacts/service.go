// Package artifacts implements versioned, content-addressed artifact
// storage: metadata in SQLite, blobs on the filesystem under
// deterministic per-version paths.
package artifacts

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

// Service stores artifacts. Concurrent saves of the same (name, scope)
// tuple are not serialised; version allocation happens inside a
// transaction so each successful save observes a strictly larger version
// than any previously observed by the same client.
type Service struct {
	db     *sql.DB
	root   string
	logger *slog.Logger
}

// NewService creates a service writing blobs under root.
func NewService(db *sql.DB, root string, logger *slog.Logger) (*Service, error) {
	if root == "" {
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "artifacts", Message: "storage root is required"}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, root: root, logger: logger.With("component", "artifacts")}, nil
}

// contentTypeExtensions maps content types to blob file extensions;
// everything else stores as .bin.
var contentTypeExtensions = map[string]string{
	"text/markdown":    "md",
	"text/plain":       "txt",
	"text/html":        "html",
	"application/json": "json",
	"application/pdf":  "pdf",
	"image/png":        "png",
	"image/jpeg":       "jpg",
	"image/gif":        "gif",
	"image/webp":       "webp",
}

func extensionFor(contentType string) string {
	if ext, ok := contentTypeExtensions[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return ext
	}
	return "bin"
}

// SanitizeName replaces every character outside [A-Za-z0-9-_.] with an
// underscore, keeping blob paths predictable.
func SanitizeName(name string) string {
	var out strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			out.WriteRune(r)
		default:
			out.WriteRune('_')
		}
	}
	return out.String()
}

// blobPath is `<root>/<project_id>/<sanitized_name>/v<N>.<ext>`.
func (s *Service) blobPath(scope models.ArtifactScope, name string, version int, contentType string) string {
	return filepath.Join(s.root, scope.ProjectID, SanitizeName(name),
		fmt.Sprintf("v%d.%s", version, extensionFor(contentType)))
}

// Save stores data as the next version of (name, scope) and returns the
// new metadata. The version auto-increments from the highest stored one.
func (s *Service) Save(ctx context.Context, name string, scope models.ArtifactScope, contentType string, data []byte) (*models.ArtifactMeta, error) {
	if name == "" {
		return nil, &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "artifacts", Message: "artifact name is required"}
	}
	if scope.ProjectID == "" {
		return nil, &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "artifacts", Message: "project_id is required"}
	}

	checksum := sha256.Sum256(data)
	checksumHex := hex.EncodeToString(checksum[:])
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	var artifactID string
	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM artifacts WHERE name = ? AND project_id = ? AND session_id = ? AND user_id = ?`,
		name, scope.ProjectID, scope.SessionID, scope.UserID,
	).Scan(&artifactID, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		artifactID = uuid.NewString()
		version = 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (id, name, project_id, session_id, user_id, version, content_type, size_bytes, checksum, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			artifactID, name, scope.ProjectID, scope.SessionID, scope.UserID, version, contentType, len(data), checksumHex, now,
		); err != nil {
			return nil, fmt.Errorf("failed to insert artifact: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	default:
		version++
		if _, err := tx.ExecContext(ctx,
			`UPDATE artifacts SET version = ?, content_type = ?, size_bytes = ?, checksum = ?, created_at = ? WHERE id = ?`,
			version, contentType, len(data), checksumHex, now, artifactID,
		); err != nil {
			return nil, fmt.Errorf("failed to update artifact: %w", err)
		}
	}

	storagePath := s.blobPath(scope, name, version, contentType)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifact_versions (version_id, artifact_id, version, size_bytes, checksum, storage_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), artifactID, version, len(data), checksumHex, storagePath, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert artifact version: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(storagePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(storagePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit artifact save: %w", err)
	}

	return &models.ArtifactMeta{
		ID:          artifactID,
		Name:        name,
		Scope:       scope,
		Version:     version,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Checksum:    checksumHex,
		CreatedAt:   now,
	}, nil
}

// Load returns the metadata and bytes of an artifact, defaulting to the
// latest version when version is nil.
func (s *Service) Load(ctx context.Context, name string, scope models.ArtifactScope, version *int) (*models.ArtifactMeta, []byte, error) {
	meta, err := s.lookup(ctx, name, scope)
	if err != nil {
		return nil, nil, err
	}

	target := meta.Version
	if version != nil {
		target = *version
	}

	var storagePath string
	var size int64
	var checksum string
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT storage_path, size_bytes, checksum, created_at FROM artifact_versions WHERE artifact_id = ? AND version = ?`,
		meta.ID, target,
	).Scan(&storagePath, &size, &checksum, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &providers.CoreError{Kind: providers.KindNotFound, Component: "artifacts", Message: fmt.Sprintf("version %d of %q not found", target, name)}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query version: %w", err)
	}

	data, err := os.ReadFile(storagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read blob: %w", err)
	}

	loaded := *meta
	loaded.Version = target
	loaded.SizeBytes = size
	loaded.Checksum = checksum
	loaded.CreatedAt = createdAt
	return &loaded, data, nil
}

// List returns artifacts in scope. Empty SessionID or UserID on the
// filter scope act as wildcards.
func (s *Service) List(ctx context.Context, scope models.ArtifactScope) ([]models.ArtifactMeta, error) {
	query := `SELECT id, name, project_id, session_id, user_id, version, content_type, size_bytes, checksum, created_at
		FROM artifacts WHERE project_id = ?`
	args := []any{scope.ProjectID}
	if scope.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, scope.SessionID)
	}
	if scope.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, scope.UserID)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var metas []models.ArtifactMeta
	for rows.Next() {
		var m models.ArtifactMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.Scope.ProjectID, &m.Scope.SessionID, &m.Scope.UserID,
			&m.Version, &m.ContentType, &m.SizeBytes, &m.Checksum, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Versions returns every stored version of an artifact, newest first.
func (s *Service) Versions(ctx context.Context, name string, scope models.ArtifactScope) ([]models.ArtifactVersion, error) {
	meta, err := s.lookup(ctx, name, scope)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, artifact_id, version, size_bytes, checksum, storage_path, created_at
		 FROM artifact_versions WHERE artifact_id = ? ORDER BY version DESC`,
		meta.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []models.ArtifactVersion
	for rows.Next() {
		var v models.ArtifactVersion
		if err := rows.Scan(&v.VersionID, &v.ArtifactID, &v.Version, &v.SizeBytes, &v.Checksum, &v.StoragePath, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Delete removes an artifact's metadata (versions first, then the
// artifact row) and best-effort removes blobs and the per-artifact
// directory.
func (s *Service) Delete(ctx context.Context, name string, scope models.ArtifactScope) error {
	meta, err := s.lookup(ctx, name, scope)
	if err != nil {
		return err
	}

	versions, err := s.Versions(ctx, name, scope)
	if err != nil {
		return err
	}

	// Explicit version delete first for clarity, then the artifact row.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifact_versions WHERE artifact_id = ?`, meta.ID); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, meta.ID); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	for _, v := range versions {
		if err := os.Remove(v.StoragePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove blob", "path", v.StoragePath, "error", err)
		}
	}
	dir := filepath.Join(s.root, scope.ProjectID, SanitizeName(name))
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("artifact directory not removed", "dir", dir, "error", err)
	}

	return nil
}

func (s *Service) lookup(ctx context.Context, name string, scope models.ArtifactScope) (*models.ArtifactMeta, error) {
	var m models.ArtifactMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, project_id, session_id, user_id, version, content_type, size_bytes, checksum, created_at
		 FROM artifacts WHERE name = ? AND project_id = ? AND session_id = ? AND user_id = ?`,
		name, scope.ProjectID, scope.SessionID, scope.UserID,
	).Scan(&m.ID, &m.Name, &m.Scope.ProjectID, &m.Scope.SessionID, &m.Scope.UserID,
		&m.Version, &m.ContentType, &m.SizeBytes, &m.Checksum, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &providers.CoreError{Kind: providers.KindNotFound, Component: "artifacts", Message: fmt.Sprintf("artifact %q not found", name)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}
	return &m, nil
}
