package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteCaseStore keeps ingested case records keyed by case_id.
// Writes are upserts: ingestion is append/update only.
type SQLiteCaseStore struct {
	db   *sql.DB
	path string
}

var _ CaseSource = (*SQLiteCaseStore)(nil)

// OpenSQLiteCaseStore opens (creating if needed) the case database at path.
// An empty path opens a private in-memory database.
func OpenSQLiteCaseStore(path string) (*SQLiteCaseStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open case database: %w", err)
	}

	// Single connection: serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &SQLiteCaseStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCaseStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS cases (
	case_id          INTEGER PRIMARY KEY,
	case_number      TEXT NOT NULL DEFAULT '',
	case_title       TEXT NOT NULL DEFAULT '',
	court            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	parties          TEXT NOT NULL DEFAULT '[]',
	bench            TEXT NOT NULL DEFAULT '[]',
	advocates        TEXT NOT NULL DEFAULT '[]',
	subjects         TEXT NOT NULL DEFAULT '[]',
	institution_date TEXT NOT NULL DEFAULT '',
	hearing_date     TEXT NOT NULL DEFAULT '',
	disposal_date    TEXT NOT NULL DEFAULT '',
	full_text        TEXT NOT NULL DEFAULT '',
	updated_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_cases_case_number ON cases(case_number);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cases schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces records. Invalid records are skipped and
// reported in the returned error list; valid ones are still written.
func (s *SQLiteCaseStore) Upsert(ctx context.Context, records ...CaseRecord) (int, []error) {
	var errs []error

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO cases (case_id, case_number, case_title, court, status, parties, bench, advocates,
                   subjects, institution_date, hearing_date, disposal_date, full_text, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT(case_id) DO UPDATE SET
	case_number = excluded.case_number, case_title = excluded.case_title,
	court = excluded.court, status = excluded.status, parties = excluded.parties,
	bench = excluded.bench, advocates = excluded.advocates, subjects = excluded.subjects,
	institution_date = excluded.institution_date, hearing_date = excluded.hearing_date,
	disposal_date = excluded.disposal_date, full_text = excluded.full_text,
	updated_at = excluded.updated_at`)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to prepare upsert: %w", err)}
	}
	defer stmt.Close()

	written := 0
	for i := range records {
		r := &records[i]
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		_, err := stmt.ExecContext(ctx,
			int64(r.CaseID), r.CaseNumber, r.CaseTitle, r.Court, r.Status,
			encodeList(r.Parties), encodeList(r.Bench), encodeList(r.Advocates), encodeList(r.Subjects),
			r.InstitutionDate, r.HearingDate, r.DisposalDate, r.FullText)
		if err != nil {
			errs = append(errs, fmt.Errorf("case %d: %w", r.CaseID, err))
			continue
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, append(errs, fmt.Errorf("failed to commit upsert: %w", err))
	}
	return written, errs
}

// ImportJSONL reads one CaseRecord JSON object per line and upserts them.
// Malformed lines are reported and skipped.
func (s *SQLiteCaseStore) ImportJSONL(ctx context.Context, r io.Reader) (int, []error) {
	var (
		batch []CaseRecord
		errs  []error
		total int
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, batchErrs := s.Upsert(ctx, batch...)
		total += n
		errs = append(errs, batchErrs...)
		batch = batch[:0]
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec CaseRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= 500 {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read input: %w", err))
	}
	flush()

	slog.Info("cases_imported", slog.Int("written", total), slog.Int("errors", len(errs)))
	return total, errs
}

const selectColumns = `case_id, case_number, case_title, court, status, parties, bench, advocates,
subjects, institution_date, hearing_date, disposal_date, full_text`

// ListCases returns every record ordered by case_id.
func (s *SQLiteCaseStore) ListCases(ctx context.Context) ([]CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM cases ORDER BY case_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []CaseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one record, or ok=false if absent.
func (s *SQLiteCaseStore) Get(ctx context.Context, id CaseID) (CaseRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cases WHERE case_id = ?`, int64(id))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return CaseRecord{}, false, nil
	}
	if err != nil {
		return CaseRecord{}, false, err
	}
	return rec, true, nil
}

// Count returns the number of stored records.
func (s *SQLiteCaseStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteCaseStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (CaseRecord, error) {
	var (
		rec                                 CaseRecord
		id                                  int64
		parties, bench, advocates, subjects string
	)
	err := sc.Scan(&id, &rec.CaseNumber, &rec.CaseTitle, &rec.Court, &rec.Status,
		&parties, &bench, &advocates, &subjects,
		&rec.InstitutionDate, &rec.HearingDate, &rec.DisposalDate, &rec.FullText)
	if err != nil {
		if err == sql.ErrNoRows {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan case: %w", err)
	}
	rec.CaseID = CaseID(id)
	rec.Parties = decodeList(parties)
	rec.Bench = decodeList(bench)
	rec.Advocates = decodeList(advocates)
	rec.Subjects = decodeList(subjects)
	return rec, nil
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(s string) []string {
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil || len(items) == 0 {
		return nil
	}
	return items
}
