// Package sink exports the change feed of a live view into external storage.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/json"
	_ "modernc.org/sqlite"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/view"
)

// ErrAttached is returned when a sink is attached to a second view.
var ErrAttached = errors.New("sink is already attached")

// Options configure a SQLite sink.
type Options struct {
	// Table is the name of the table holding the documents. Default: "documents".
	Table  string
	Logger logr.Logger
}

// SQLite mirrors the result set of a view into a SQLite table with one row per document: the
// canonical key of the identifier and the JSON encoding of the document.
type SQLite struct {
	db    *sql.DB
	table string
	sub   feed.Subscription
	log   logr.Logger
}

// Open opens (or creates) the database at path and prepares the table. Use ":memory:" for a
// private in-memory database.
func Open(ctx context.Context, path string, opts Options) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	table := opts.Table
	if table == "" {
		table = "documents"
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// an in-memory database lives as long as its single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &SQLite{db: db, table: table, log: logger.WithName("sink").WithValues("table", table)}, nil
}

// Attach replaces the content of the table with the documents of the view and keeps it in sync
// until Detach is called. Write errors are returned to whoever triggered the change.
func (s *SQLite) Attach(ctx context.Context, v view.View) error {
	if s.sub != nil {
		return ErrAttached
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("truncate table %s: %w", s.table, err)
	}

	sub, err := v.Observe(feed.Callbacks{
		Added:   func(doc document.Document) error { return s.put(ctx, doc) },
		Changed: func(doc, _ document.Document) error { return s.put(ctx, doc) },
		Removed: func(doc document.Document) error { return s.delete(ctx, doc) },
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.V(1).Info("attached", "view", strings.TrimSpace(v.Explain().String()))
	return nil
}

// Detach stops following the view. The table keeps its last content.
func (s *SQLite) Detach() {
	if s.sub != nil {
		s.sub.Stop()
		s.sub = nil
		s.log.V(1).Info("detached")
	}
}

// Count returns the number of documents in the table.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Get returns the document stored for an identifier, or nil if there is none. Identifiers of
// kind ObjectID come back in their {"$oid": hex} encoding.
func (s *SQLite) Get(ctx context.Context, id any) (document.Document, error) {
	key, err := document.CanonicalKey(id)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, s.table), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get row: %w", err)
	}
	return decode(raw)
}

// List returns every document in the table ordered by key.
func (s *SQLite) List(ctx context.Context) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	ret := []document.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		ret = append(ret, doc)
	}
	return ret, rows.Err()
}

// Close detaches the sink and closes the database.
func (s *SQLite) Close() error {
	s.Detach()
	return s.db.Close()
}

func (s *SQLite) put(ctx context.Context, doc document.Document) error {
	key, err := document.CanonicalKey(doc[document.IDField])
	if err != nil {
		return err
	}
	raw, err := json.Marshal(encodeValue(doc))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, s.table),
		key, string(raw)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	s.log.V(4).Info("put", "id", key)
	return nil
}

func (s *SQLite) delete(ctx context.Context, doc document.Document) error {
	key, err := document.CanonicalKey(doc[document.IDField])
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), key); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	s.log.V(4).Info("delete", "id", key)
	return nil
}

func decode(raw string) (document.Document, error) {
	doc := document.Document{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return decodeValue(doc).(document.Document), nil
}

// nonFinite are the extended JSON spellings of the floats JSON cannot represent.
var nonFinite = map[string]float64{
	"NaN":       math.NaN(),
	"Infinity":  math.Inf(1),
	"-Infinity": math.Inf(-1),
}

// encodeValue replaces NaN and infinities with their extended JSON form {"$numberDouble": "NaN"}.
func encodeValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		ret := make(map[string]any, len(v))
		for k, e := range v {
			ret[k] = encodeValue(e)
		}
		return ret
	case []any:
		ret := make([]any, len(v))
		for i, e := range v {
			ret[i] = encodeValue(e)
		}
		return ret
	case float64:
		switch {
		case math.IsNaN(v):
			return map[string]any{"$numberDouble": "NaN"}
		case math.IsInf(v, 1):
			return map[string]any{"$numberDouble": "Infinity"}
		case math.IsInf(v, -1):
			return map[string]any{"$numberDouble": "-Infinity"}
		}
	}
	return val
}

func decodeValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		if len(v) == 1 {
			if s, ok := v["$numberDouble"].(string); ok {
				if f, ok := nonFinite[s]; ok {
					return f
				}
			}
		}
		for k, e := range v {
			v[k] = decodeValue(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = decodeValue(e)
		}
		return v
	}
	return val
}

func validIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
