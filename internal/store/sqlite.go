package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"studyverse/internal/flashcards"
	"studyverse/internal/goaltree"
	appLog "studyverse/internal/log"
	"studyverse/internal/model"
)

const (
	goalsTable = "goals"
	decksTable = "decks"
)

// SQLiteStore persists goals and decks in a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	appLog.Info("store opened", "path", path, "schema_version", schemaVersion)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("store: write schema version: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- goals ----

func (s *SQLiteStore) ListGoals(ctx context.Context) ([]model.Goal, error) {
	rows, err := loadRows(ctx, s.db, goalsTable)
	if err != nil {
		return nil, err
	}
	goals, err := assemble(rows, decodeGoal)
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []model.Goal{}
	}
	return goals, nil
}

func (s *SQLiteStore) GetGoal(ctx context.Context, id string) (model.Goal, error) {
	goals, err := s.ListGoals(ctx)
	if err != nil {
		return model.Goal{}, err
	}
	g, ok := goaltree.Find(goals, id)
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g, nil
}

func (s *SQLiteStore) CreateGoal(ctx context.Context, parentID string, g model.Goal) (model.Goal, error) {
	if err := g.Validate(); err != nil {
		return model.Goal{}, err
	}
	g = assignGoalIDs(g.Clone())

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSubtree(ctx, tx, goalsTable, parentID, g, encodeGoal, s.now())
	})
	if err != nil {
		return model.Goal{}, err
	}
	return g, nil
}

func (s *SQLiteStore) UpdateGoal(ctx context.Context, g model.Goal) (model.Goal, error) {
	if err := g.Validate(); err != nil {
		return model.Goal{}, err
	}
	g = assignGoalIDs(g.Clone())

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceSubtree(ctx, tx, goalsTable, g, encodeGoal, s.now())
	})
	if err != nil {
		return model.Goal{}, err
	}
	return g, nil
}

func (s *SQLiteStore) DeleteGoal(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteSubtree(ctx, tx, goalsTable, id)
	})
}

func (s *SQLiteStore) AddException(ctx context.Context, goalID, date string) (model.Goal, error) {
	var out model.Goal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		series, err := loadGoalTree(ctx, tx, goalID)
		if err != nil {
			return err
		}
		updated, _, err := withException(series, date)
		if err != nil {
			return err
		}
		if err := updateDoc(ctx, tx, goalsTable, goalID, updated, encodeGoal, s.now()); err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DetachOccurrence(ctx context.Context, goalID, date string, patch model.Goal) (model.Goal, error) {
	var out model.Goal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		series, err := loadGoalTree(ctx, tx, goalID)
		if err != nil {
			return err
		}
		updated, key, err := withException(series, date)
		if err != nil {
			return err
		}
		detached := detachedGoal(series, key, patch)
		if err := detached.Validate(); err != nil {
			return err
		}
		if err := updateDoc(ctx, tx, goalsTable, goalID, updated, encodeGoal, s.now()); err != nil {
			return err
		}
		if err := insertSubtree(ctx, tx, goalsTable, "", detached, encodeGoal, s.now()); err != nil {
			return err
		}
		out = detached
		return nil
	})
	return out, err
}

func loadGoalTree(ctx context.Context, q queryer, id string) (model.Goal, error) {
	rows, err := loadRows(ctx, q, goalsTable)
	if err != nil {
		return model.Goal{}, err
	}
	goals, err := assemble(rows, decodeGoal)
	if err != nil {
		return model.Goal{}, err
	}
	g, ok := goaltree.Find(goals, id)
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g, nil
}

// ---- decks ----

func (s *SQLiteStore) ListDecks(ctx context.Context) ([]flashcards.Deck, error) {
	rows, err := loadRows(ctx, s.db, decksTable)
	if err != nil {
		return nil, err
	}
	decks, err := assemble(rows, decodeDeck)
	if err != nil {
		return nil, err
	}
	if decks == nil {
		decks = []flashcards.Deck{}
	}
	return decks, nil
}

func (s *SQLiteStore) GetDeck(ctx context.Context, id string) (flashcards.Deck, error) {
	decks, err := s.ListDecks(ctx)
	if err != nil {
		return flashcards.Deck{}, err
	}
	d, ok := goaltree.Find(decks, id)
	if !ok {
		return flashcards.Deck{}, fmt.Errorf("deck %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *SQLiteStore) CreateDeck(ctx context.Context, parentID string, d flashcards.Deck) (flashcards.Deck, error) {
	if err := d.Validate(); err != nil {
		return flashcards.Deck{}, err
	}
	d = assignDeckIDs(d)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSubtree(ctx, tx, decksTable, parentID, d, encodeDeck, s.now())
	})
	if err != nil {
		return flashcards.Deck{}, err
	}
	return d, nil
}

func (s *SQLiteStore) SaveDeck(ctx context.Context, d flashcards.Deck) (flashcards.Deck, error) {
	if err := d.Validate(); err != nil {
		return flashcards.Deck{}, err
	}
	d = assignDeckIDs(d)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceSubtree(ctx, tx, decksTable, d, encodeDeck, s.now())
	})
	if err != nil {
		return flashcards.Deck{}, err
	}
	return d, nil
}

func (s *SQLiteStore) DeleteDeck(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteSubtree(ctx, tx, decksTable, id)
	})
}

// ---- arena helpers ----

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type arenaRow struct {
	id       string
	parentID string
	position int
	doc      []byte
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func loadRows(ctx context.Context, q queryer, table string) ([]arenaRow, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT id, parent_id, position, doc FROM %s ORDER BY parent_id, position`, table))
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", table, err)
	}
	defer rows.Close()

	var out []arenaRow
	for rows.Next() {
		var r arenaRow
		var doc string
		if err := rows.Scan(&r.id, &r.parentID, &r.position, &doc); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", table, err)
		}
		r.doc = []byte(doc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", table, err)
	}
	return out, nil
}

// assemble rebuilds a forest from arena rows. Rows whose parent is missing
// are dropped with a log line.
func assemble[T goaltree.Node[T]](rows []arenaRow, decode func([]byte) (T, error)) ([]T, error) {
	byParent := make(map[string][]arenaRow)
	known := make(map[string]bool, len(rows))
	for _, r := range rows {
		byParent[r.parentID] = append(byParent[r.parentID], r)
		known[r.id] = true
	}
	for parent, kids := range byParent {
		if parent != "" && !known[parent] {
			appLog.Error("store: orphaned rows ignored", ErrNotFound, "parent_id", parent, "count", len(kids))
		}
	}

	var build func(parent string) ([]T, error)
	build = func(parent string) ([]T, error) {
		kids := byParent[parent]
		if len(kids) == 0 {
			return nil, nil
		}
		out := make([]T, 0, len(kids))
		for _, r := range kids {
			node, err := decode(r.doc)
			if err != nil {
				return nil, fmt.Errorf("store: decode %s: %w", r.id, err)
			}
			children, err := build(r.id)
			if err != nil {
				return nil, err
			}
			out = append(out, node.WithChildren(children))
		}
		return out, nil
	}
	return build("")
}

func insertSubtree[T goaltree.Node[T]](ctx context.Context, tx *sql.Tx, table, parentID string, node T, encode func(T) ([]byte, error), now time.Time) error {
	if parentID != "" {
		var exists int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table), parentID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("store: lookup parent: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
		}
	}
	var pos int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(position) + 1, 0) FROM %s WHERE parent_id = ?`, table), parentID).Scan(&pos)
	if err != nil {
		return fmt.Errorf("store: next position: %w", err)
	}
	return writeNode(ctx, tx, table, parentID, pos, node, encode, now)
}

func replaceSubtree[T goaltree.Node[T]](ctx context.Context, tx *sql.Tx, table string, node T, encode func(T) ([]byte, error), now time.Time) error {
	var parentID string
	var pos int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT parent_id, position FROM %s WHERE id = ?`, table), node.NodeID()).Scan(&parentID, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, node.NodeID(), ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: lookup %s: %w", node.NodeID(), err)
	}
	if err := deleteSubtree(ctx, tx, table, node.NodeID()); err != nil {
		return err
	}
	return writeNode(ctx, tx, table, parentID, pos, node, encode, now)
}

func writeNode[T goaltree.Node[T]](ctx context.Context, tx *sql.Tx, table, parentID string, pos int, node T, encode func(T) ([]byte, error), now time.Time) error {
	doc, err := encode(node.WithChildren(nil))
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", node.NodeID(), err)
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(id, parent_id, position, doc, updated_at) VALUES (?, ?, ?, ?, ?)`, table),
		node.NodeID(), parentID, pos, string(doc), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", node.NodeID(), err)
	}
	for i, child := range node.Children() {
		if err := writeNode(ctx, tx, table, node.NodeID(), i, child, encode, now); err != nil {
			return err
		}
	}
	return nil
}

func updateDoc[T goaltree.Node[T]](ctx context.Context, tx *sql.Tx, table, id string, node T, encode func(T) ([]byte, error), now time.Time) error {
	doc, err := encode(node.WithChildren(nil))
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET doc = ?, updated_at = ? WHERE id = ?`, table), string(doc), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func deleteSubtree(ctx context.Context, tx *sql.Tx, table, id string) error {
	query := fmt.Sprintf(`
WITH RECURSIVE sub(id) AS (
	SELECT id FROM %[1]s WHERE id = ?
	UNION ALL
	SELECT t.id FROM %[1]s t JOIN sub ON t.parent_id = sub.id
)
DELETE FROM %[1]s WHERE id IN (SELECT id FROM sub)`, table)
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func encodeGoal(g model.Goal) ([]byte, error) { return json.Marshal(g) }

func decodeGoal(b []byte) (model.Goal, error) {
	var g model.Goal
	err := json.Unmarshal(b, &g)
	return g, err
}

func encodeDeck(d flashcards.Deck) ([]byte, error) { return json.Marshal(d) }

func decodeDeck(b []byte) (flashcards.Deck, error) {
	var d flashcards.Deck
	err := json.Unmarshal(b, &d)
	return d, err
}
