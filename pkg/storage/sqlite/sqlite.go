// Package sqlite provides a SQLite-backed storage driver.
//
// When the linked SQLite build ships the FTS5 extension, text queries run
// against a contentless-sync FTS5 virtual table ranked by bm25. When FTS5
// is unavailable the driver degrades to the shared fallback substring
// matcher with identical structural semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Driver implements storage.Driver using SQLite via mattn/go-sqlite3.
type Driver struct {
	db *sql.DB

	// nativeIndex is true when the FTS5 virtual table was created
	// successfully at open time.
	nativeIndex bool
}

// NewDriver opens or creates a SQLite database at dbPath. The path can be
// a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	d := &Driver{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id           TEXT PRIMARY KEY,
		namespace    TEXT NOT NULL,
		content      TEXT NOT NULL,
		summary      TEXT NOT NULL DEFAULT '',
		tags         TEXT,
		category     TEXT NOT NULL DEFAULT '',
		importance   REAL NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		consolidated INTEGER NOT NULL DEFAULT 0,
		meta         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_ns ON records(namespace);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_consolidated ON records(consolidated);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 availability is a build-time property of the linked SQLite.
	// Failure here flips the driver to fallback matching rather than
	// failing the open.
	_, err := d.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
		content,
		summary,
		tags,
		content=records,
		content_rowid=rowid
	)`)
	if err != nil {
		d.nativeIndex = false
		return nil
	}
	d.nativeIndex = true

	// Sync triggers keep the index consistent with the records table.
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
			INSERT INTO records_fts(rowid, content, summary, tags)
			VALUES (new.rowid, new.content, new.summary, coalesce(new.tags, ''));
		END`,
		`CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, content, summary, tags)
			VALUES ('delete', old.rowid, old.content, old.summary, coalesce(old.tags, ''));
		END`,
		`CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, content, summary, tags)
			VALUES ('delete', old.rowid, old.content, old.summary, coalesce(old.tags, ''));
			INSERT INTO records_fts(rowid, content, summary, tags)
			VALUES (new.rowid, new.content, new.summary, coalesce(new.tags, ''));
		END`,
	}
	for _, t := range triggers {
		if _, err := d.db.Exec(t); err != nil {
			return err
		}
	}

	return nil
}

// Insert stores a new record.
func (d *Driver) Insert(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record with id is required")
	}

	tags, meta, err := encodeAux(rec)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO records (id, namespace, content, summary, tags, category, importance, created_at, consolidated, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Namespace, rec.Content, rec.Summary, tags, rec.Category,
		rec.Importance, rec.CreatedAt.UTC().Format(time.RFC3339Nano), boolInt(rec.Consolidated), meta,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ConflictError{ID: rec.ID}
		}
		return fmt.Errorf("insert record: %w", err)
	}

	return nil
}

// Get retrieves a record by id.
func (d *Driver) Get(ctx context.Context, id string) (*record.Record, error) {
	return getRecord(ctx, d.db, id)
}

// QueryByText returns ranked live records matching the query text.
func (d *Driver) QueryByText(ctx context.Context, text, namespace string, limit int) ([]storage.TextMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	if d.nativeIndex {
		return d.queryFTS(ctx, text, namespace, limit)
	}

	return d.queryFallback(ctx, text, namespace, limit)
}

// queryFTS runs the query through the FTS5 index ranked by bm25.
func (d *Driver) queryFTS(ctx context.Context, text, namespace string, limit int) ([]storage.TextMatch, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}

	where := []string{"records_fts MATCH ?", "r.consolidated = 0"}
	args := []any{match}
	if namespace != "" {
		where = append(where, "r.namespace = ?")
		args = append(args, namespace)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s, bm25(records_fts) AS rank
		FROM records_fts
		JOIN records r ON r.rowid = records_fts.rowid
		WHERE %s
		ORDER BY rank ASC, r.created_at DESC, r.id ASC
		LIMIT ?`, recordColumns("r"), strings.Join(where, " AND "))

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var matches []storage.TextMatch
	for rows.Next() {
		rec, rank, err := scanRecordRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25 returns lower-is-better values; map onto [0,1).
		score := rank
		if score < 0 {
			score = -score
		}
		matches = append(matches, storage.TextMatch{
			Record: rec,
			Score:  score / (score + 1),
		})
	}

	return matches, rows.Err()
}

// queryFallback scans live rows in the namespace and scores them with the
// shared fallback matcher so results agree with the other fallback drivers.
func (d *Driver) queryFallback(ctx context.Context, text, namespace string, limit int) ([]storage.TextMatch, error) {
	terms := storage.FallbackTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}

	recs, err := d.List(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var matches []storage.TextMatch
	for _, rec := range recs {
		haystack := rec.Content + " " + rec.Summary + " " + strings.Join(rec.Tags, " ")
		score := storage.FallbackScore(haystack, terms)
		if score <= 0 {
			continue
		}
		matches = append(matches, storage.TextMatch{Record: rec, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// List returns all live records in the namespace, newest first.
func (d *Driver) List(ctx context.Context, namespace string) ([]*record.Record, error) {
	where := []string{"consolidated = 0"}
	var args []any
	if namespace != "" {
		where = append(where, "namespace = ?")
		args = append(args, namespace)
	}

	q := fmt.Sprintf(`
		SELECT %s FROM records
		WHERE %s
		ORDER BY created_at DESC, id ASC`, recordColumns(""), strings.Join(where, " AND "))

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// Update applies a partial update to a record.
func (d *Driver) Update(ctx context.Context, id string, patch record.Patch) error {
	return updateRecord(ctx, d.db, id, patch)
}

// Delete removes a record by id.
func (d *Driver) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// NativeIndex reports whether FTS5 was available at open time.
func (d *Driver) NativeIndex() bool {
	return d.nativeIndex
}

// WithTransaction runs fn inside a single SQL transaction. The transaction
// is rolled back when fn returns an error, so a failing fn leaves the store
// untouched.
func (d *Driver) WithTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// sqliteTx adapts *sql.Tx to the storage.Tx interface.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Get(ctx context.Context, id string) (*record.Record, error) {
	return getRecord(ctx, t.tx, id)
}

func (t *sqliteTx) Update(ctx context.Context, id string, patch record.Patch) error {
	return updateRecord(ctx, t.tx, id, patch)
}

func (t *sqliteTx) Delete(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// querier is the subset of *sql.DB / *sql.Tx the record helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordColumns(alias string) string {
	cols := []string{"id", "namespace", "content", "summary", "tags", "category", "importance", "created_at", "consolidated", "meta"}
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func getRecord(ctx context.Context, q querier, id string) (*record.Record, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM records WHERE id = ?`, recordColumns("")), id)
	rec, err := scanRecordRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func updateRecord(ctx context.Context, q querier, id string, patch record.Patch) error {
	// Read-modify-write keeps patch semantics in one place (record.Patch)
	// instead of duplicating them in SQL.
	rec, err := getRecord(ctx, q, id)
	if err != nil {
		return err
	}

	patch.Apply(rec)

	tags, meta, err := encodeAux(rec)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE records
		SET content = ?, summary = ?, tags = ?, category = ?, importance = ?, consolidated = ?, meta = ?
		WHERE id = ?`,
		rec.Content, rec.Summary, tags, rec.Category, rec.Importance, boolInt(rec.Consolidated), meta, id,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	return nil
}

func encodeAux(rec *record.Record) (tags, meta sql.NullString, err error) {
	if len(rec.Tags) > 0 {
		b, err := json.Marshal(rec.Tags)
		if err != nil {
			return tags, meta, fmt.Errorf("marshal tags: %w", err)
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return tags, meta, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	return tags, meta, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordInto(s rowScanner, rank *float64) (*record.Record, error) {
	var (
		rec          record.Record
		tags, meta   sql.NullString
		createdAt    string
		consolidated int
	)

	dest := []any{
		&rec.ID, &rec.Namespace, &rec.Content, &rec.Summary, &tags,
		&rec.Category, &rec.Importance, &createdAt, &consolidated, &meta,
	}
	if rank != nil {
		dest = append(dest, rank)
	}

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	rec.Consolidated = consolidated != 0

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

func scanRecord(rows *sql.Rows) (*record.Record, error) {
	return scanRecordInto(rows, nil)
}

func scanRecordRank(rows *sql.Rows) (*record.Record, float64, error) {
	var rank float64
	rec, err := scanRecordInto(rows, &rank)
	return rec, rank, err
}

func scanRecordRow(row *sql.Row) (*record.Record, error) {
	return scanRecordInto(row, nil)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so user
// input can never be parsed as FTS syntax.
func ftsQuery(text string) string {
	terms := storage.FallbackTerms(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
