package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dgallion1/casegest/internal/document"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// OpenSQLite opens or creates the database at path and applies the schema.
// Writes are announced on notifier, which may be nil.
func OpenSQLite(path string, notifier Notifier, log *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	s := &SQLiteStore{db: db, notifier: notifier, log: log, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			case_number TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			storage_path TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			original_file_type TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_case_number ON documents(case_number)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			result TEXT NOT NULL,
			processed_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	now := s.now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = document.StatusPending
	}
	if _, err := document.ParseStatus(string(rec.Status)); err != nil {
		return err
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, type, case_number, size, status, error_message,
			storage_path, url, original_file_type, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Content, rec.Type, rec.CaseNumber, rec.Size, string(rec.Status), rec.ErrorMessage,
		rec.StoragePath, rec.URL, rec.OriginalFileType, string(meta),
		rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", rec.ID, err)
	}

	s.publish(ctx, ChangeInsert, rec.ID, rec.Status)
	return nil
}

const selectColumns = `id, title, content, type, case_number, size, status, error_message,
	storage_path, url, original_file_type, metadata, created_at, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.CaseNumber != "" {
		where = append(where, "case_number = ?")
		args = append(args, filter.CaseNumber)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT ` + selectColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	s.publish(ctx, ChangeDelete, id, "")
	return nil
}

// UpdateStatus sets the processing status and error message. A non-error
// status clears any previous error message.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status document.Status, errMsg string) error {
	if _, err := document.ParseStatus(string(status)); err != nil {
		return err
	}
	if status != document.StatusError {
		errMsg = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, s.now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	s.publish(ctx, ChangeUpdate, id, status)
	return nil
}

// SaveAnalysis stores result, replacing any earlier analysis of the document.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, result *document.ProcessedDocument) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (document_id, status, confidence, result, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			status = excluded.status,
			confidence = excluded.confidence,
			result = excluded.result,
			processed_at = excluded.processed_at`,
		result.ID, string(result.Metadata.ProcessingStatus), result.Metadata.Confidence, string(data),
		result.Metadata.ProcessingDate.UTC().Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("document %s: %w", result.ID, ErrNotFound)
		}
		return fmt.Errorf("save analysis %s: %w", result.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*document.ProcessedDocument, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analyses WHERE document_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", id, err)
	}
	var result document.ProcessedDocument
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return &result, nil
}

func (s *SQLiteStore) publish(ctx context.Context, kind ChangeKind, id string, status document.Status) {
	if s.notifier == nil {
		return
	}
	ev := ChangeEvent{Kind: kind, DocumentID: id, Status: status, At: s.now().UTC()}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("change notification failed", "kind", kind, "doc_id", id, "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec                  Record
		status, meta         string
		createdAt, updatedAt string
	)
	err := sc.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.Type, &rec.CaseNumber, &rec.Size, &status,
		&rec.ErrorMessage, &rec.StoragePath, &rec.URL, &rec.OriginalFileType, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = document.Status(status)
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}
