// Package index persists the per-project file, symbol, and embedding
// index in SQLite and serves symbol queries and in-memory semantic
// search over the stored chunk embeddings.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// Store wraps the shared SQLite handle. Symbol rows cascade away with
// their file row; embeddings are keyed independently by
// (project_path, file_path, chunk_index).
type Store struct {
	db *sql.DB
}

// NewStore wraps the database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// UpsertFileIndex inserts or replaces one file's row and symbol set. On
// update, the previous symbols are deleted before the new set is
// inserted.
func (s *Store) UpsertFileIndex(ctx context.Context, projectPath string, item models.FileInventoryItem, contentHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	now := time.Now().UTC()

	var fileID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM file_index WHERE project_path = ? AND file_path = ?`,
		projectPath, item.Path,
	).Scan(&fileID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx,
			`INSERT INTO file_index (project_path, file_path, component, language, extension, size_bytes, line_count, is_test, content_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectPath, item.Path, item.Component, item.Language, item.Extension,
			item.SizeBytes, item.LineCount, boolToInt(item.IsTest), contentHash, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file row: %w", err)
		}
		fileID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read file row id: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to query file row: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE file_index SET component = ?, language = ?, extension = ?, size_bytes = ?, line_count = ?, is_test = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
			item.Component, item.Language, item.Extension, item.SizeBytes, item.LineCount,
			boolToInt(item.IsTest), contentHash, now, fileID,
		); err != nil {
			return fmt.Errorf("failed to update file row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_symbols WHERE file_index_id = ?`, fileID); err != nil {
			return fmt.Errorf("failed to clear symbols: %w", err)
		}
	}

	if len(item.Symbols) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO file_symbols (file_index_id, name, kind, line, parent_symbol, signature, doc_comment, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare symbol insert: %w", err)
		}
		defer stmt.Close()

		for _, sym := range item.Symbols {
			if _, err := stmt.ExecContext(ctx,
				fileID, sym.Name, string(sym.Kind), sym.Line,
				sym.Parent, sym.Signature, sym.DocComment, sym.Line, sym.EndLine,
			); err != nil {
				return fmt.Errorf("failed to insert symbol %s: %w", sym.Name, err)
			}
		}
	}

	return tx.Commit()
}

// SymbolMatch pairs a symbol with the file it lives in.
type SymbolMatch struct {
	FilePath string            `json:"file_path"`
	Symbol   models.SymbolInfo `json:"symbol"`
}

// QuerySymbols finds symbols by SQL LIKE pattern on the name.
func (s *Store) QuerySymbols(ctx context.Context, projectPath, namePattern string) ([]SymbolMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.file_path, s.name, s.kind, s.line, s.parent_symbol, s.signature, s.doc_comment, s.end_line
		 FROM file_symbols s JOIN file_index f ON f.id = s.file_index_id
		 WHERE f.project_path = ? AND s.name LIKE ?
		 ORDER BY f.file_path, s.line`,
		projectPath, namePattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var matches []SymbolMatch
	for rows.Next() {
		var m SymbolMatch
		var kind string
		var parent, signature, doc sql.NullString
		var endLine sql.NullInt64
		if err := rows.Scan(&m.FilePath, &m.Symbol.Name, &kind, &m.Symbol.Line, &parent, &signature, &doc, &endLine); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		m.Symbol.Kind = models.SymbolKind(kind)
		m.Symbol.Parent = parent.String
		m.Symbol.Signature = signature.String
		m.Symbol.DocComment = doc.String
		m.Symbol.EndLine = int(endLine.Int64)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// QueryFilesByComponent lists file paths of one component.
func (s *Store) QueryFilesByComponent(ctx context.Context, projectPath, component string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path FROM file_index WHERE project_path = ? AND component = ? ORDER BY file_path`,
		projectPath, component,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// IsIndexStale reports whether a file is absent from the index or its
// stored hash differs from contentHash.
func (s *Store) IsIndexStale(ctx context.Context, projectPath, filePath, contentHash string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM file_index WHERE project_path = ? AND file_path = ?`,
		projectPath, filePath,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query hash: %w", err)
	}
	return stored != contentHash, nil
}

// DeleteFile drops a file row; its symbols cascade away.
func (s *Store) DeleteFile(ctx context.Context, projectPath, filePath string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM file_index WHERE project_path = ? AND file_path = ?`,
		projectPath, filePath,
	); err != nil {
		return fmt.Errorf("failed to delete file row: %w", err)
	}
	return nil
}

// ProjectSummary aggregates the indexed view of one project.
type ProjectSummary struct {
	TotalFiles      int            `json:"total_files"`
	Languages       []string       `json:"languages"`
	ComponentCounts map[string]int `json:"component_counts"`
	KeyEntryPoints  []string       `json:"key_entry_points"`
	TotalSymbols    int            `json:"total_symbols"`
	EmbeddingChunks int            `json:"embedding_chunks"`
}

// entryPointNames are symbol names treated as canonical entry points.
var entryPointNames = map[string]bool{
	"main": true, "app": true, "index": true, "run": true,
	"start": true, "setup": true, "init": true,
}

// entryPointFilePrefixes match filenames that are entry points by name.
var entryPointFilePrefixes = []string{"main.", "index.", "app.", "lib."}

// GetProjectSummary aggregates totals, languages, components, heuristic
// entry points (limit 20), symbol and embedding counts.
func (s *Store) GetProjectSummary(ctx context.Context, projectPath string) (*ProjectSummary, error) {
	summary := &ProjectSummary{ComponentCounts: map[string]int{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_index WHERE project_path = ?`, projectPath,
	).Scan(&summary.TotalFiles); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	langRows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT language FROM file_index WHERE project_path = ? AND language != '' ORDER BY language`,
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer langRows.Close()
	for langRows.Next() {
		var lang string
		if err := langRows.Scan(&lang); err != nil {
			return nil, err
		}
		summary.Languages = append(summary.Languages, lang)
	}
	if err := langRows.Err(); err != nil {
		return nil, err
	}

	compRows, err := s.db.QueryContext(ctx,
		`SELECT component, COUNT(*) FROM file_index WHERE project_path = ? AND component != '' GROUP BY component`,
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer compRows.Close()
	for compRows.Next() {
		var comp string
		var count int
		if err := compRows.Scan(&comp, &count); err != nil {
			return nil, err
		}
		summary.ComponentCounts[comp] = count
	}
	if err := compRows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_symbols s JOIN file_index f ON f.id = s.file_index_id WHERE f.project_path = ?`,
		projectPath,
	).Scan(&summary.TotalSymbols); err != nil {
		return nil, fmt.Errorf("failed to count symbols: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_embeddings WHERE project_path = ?`, projectPath,
	).Scan(&summary.EmbeddingChunks); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	entryPoints, err := s.collectEntryPoints(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	summary.KeyEntryPoints = entryPoints

	return summary, nil
}

func (s *Store) collectEntryPoints(ctx context.Context, projectPath string) ([]string, error) {
	const limit = 20
	seen := map[string]bool{}
	var points []string

	add := func(p string) {
		if len(points) < limit && !seen[p] {
			seen[p] = true
			points = append(points, p)
		}
	}

	symRows, err := s.db.QueryContext(ctx,
		`SELECT f.file_path, s.name FROM file_symbols s JOIN file_index f ON f.id = s.file_index_id
		 WHERE f.project_path = ? ORDER BY f.file_path, s.line`,
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry symbols: %w", err)
	}
	defer symRows.Close()
	for symRows.Next() {
		var filePath, name string
		if err := symRows.Scan(&filePath, &name); err != nil {
			return nil, err
		}
		if entryPointNames[strings.ToLower(name)] {
			add(fmt.Sprintf("%s:%s", filePath, name))
		}
	}
	if err := symRows.Err(); err != nil {
		return nil, err
	}

	fileRows, err := s.db.QueryContext(ctx,
		`SELECT file_path FROM file_index WHERE project_path = ? ORDER BY file_path`, projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var filePath string
		if err := fileRows.Scan(&filePath); err != nil {
			return nil, err
		}
		base := strings.ToLower(filePath)
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		for _, prefix := range entryPointFilePrefixes {
			if strings.HasPrefix(base, prefix) {
				add(filePath)
				break
			}
		}
	}
	return points, fileRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
