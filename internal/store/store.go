// Package store implements the store writer: it creates the mining
// pipeline's relational schema and flushes every virtual table into it
// inside a single transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // database/sql driver, registered via blank import

	"github.com/jlefever/cochange-tool/internal/model"
	"github.com/jlefever/cochange-tool/internal/vtab"
)

// Store wraps a sqlite database holding the pipeline's six (or seven, once
// deps has been imported at least once) tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its core schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	// The pipeline is single-threaded and sequential; one connection avoids
	// sqlite's writer-lock contention entirely.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}

	if err := s.createSchema(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY,
	parent_id INTEGER NULL REFERENCES entities(id),
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	UNIQUE(parent_id, name, kind),
	CHECK ((kind = 'file') = (parent_id IS NULL))
);

CREATE TABLE IF NOT EXISTS commits (
	id INTEGER PRIMARY KEY,
	sha1 CHAR(40) NOT NULL UNIQUE,
	is_merge BOOLEAN NOT NULL,
	author_date INTEGER NOT NULL,
	commit_date INTEGER NOT NULL,
	has_change_info BOOLEAN NOT NULL DEFAULT 0,
	has_presence_info BOOLEAN NOT NULL DEFAULT 0,
	has_reachability_info BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS refs (
	id INTEGER PRIMARY KEY,
	commit_id INTEGER NOT NULL REFERENCES commits(id),
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS changes (
	id INTEGER PRIMARY KEY,
	commit_id INTEGER NOT NULL REFERENCES commits(id),
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	kind CHAR(1) NOT NULL,
	adds INTEGER NOT NULL,
	dels INTEGER NOT NULL,
	UNIQUE(commit_id, entity_id)
);

CREATE TABLE IF NOT EXISTS presence (
	id INTEGER PRIMARY KEY,
	commit_id INTEGER NOT NULL REFERENCES commits(id),
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	start_row INTEGER NOT NULL,
	end_row INTEGER NOT NULL,
	UNIQUE(commit_id, entity_id)
);

CREATE TABLE IF NOT EXISTS reachability (
	id INTEGER PRIMARY KEY,
	source_id INTEGER NOT NULL REFERENCES commits(id),
	target_id INTEGER NOT NULL REFERENCES commits(id),
	UNIQUE(source_id, target_id)
);
`

// depsSchema is created lazily, only when the deps-import subcommand runs
// against a store for the first time (spec: this table is optional).
const depsSchema = `
CREATE TABLE IF NOT EXISTS deps (
	id INTEGER PRIMARY KEY,
	commit_id INTEGER NOT NULL REFERENCES commits(id),
	from_entity_id INTEGER NOT NULL REFERENCES entities(id),
	to_entity_id INTEGER NOT NULL REFERENCES entities(id),
	kind TEXT NOT NULL
);
`

func (s *Store) createSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// EnsureDepsSchema creates the optional deps table, idempotently.
func (s *Store) EnsureDepsSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, depsSchema); err != nil {
		return fmt.Errorf("create deps schema: %w", err)
	}

	return nil
}

// ErrCommitNotFound is returned when a commit/ref name cannot be resolved
// against an already-flushed store.
var ErrCommitNotFound = errors.New("store: commit not found")

// ErrRefAmbiguous is returned when ResolveCommitID is asked to pick a commit
// without a name and the store holds more than one ref.
var ErrRefAmbiguous = errors.New("store: more than one ref in store, specify one")

// ResolveCommitID resolves name to a commit id: first as a ref name, then as
// a bare sha1. If name is empty, it succeeds only when the store holds
// exactly one ref.
func (s *Store) ResolveCommitID(ctx context.Context, name string) (int, string, error) {
	if name == "" {
		return s.soleCommit(ctx)
	}

	var id int

	var sha1 string

	row := s.db.QueryRowContext(ctx, `
		SELECT C.id, C.sha1 FROM commits C
		JOIN refs R ON R.commit_id = C.id
		WHERE R.name = ?
	`, name)
	if err := row.Scan(&id, &sha1); err == nil {
		return id, sha1, nil
	}

	row = s.db.QueryRowContext(ctx, `SELECT id, sha1 FROM commits WHERE sha1 = ?`, name)
	if err := row.Scan(&id, &sha1); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("%w: %q", ErrCommitNotFound, name)
		}

		return 0, "", fmt.Errorf("resolve commit %q: %w", name, err)
	}

	return id, sha1, nil
}

func (s *Store) soleCommit(ctx context.Context) (int, string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT C.id, C.sha1 FROM commits C JOIN refs R ON R.commit_id = C.id`)
	if err != nil {
		return 0, "", fmt.Errorf("list ref commits: %w", err)
	}
	defer rows.Close()

	type found struct {
		id   int
		sha1 string
	}

	var all []found

	for rows.Next() {
		var f found
		if err := rows.Scan(&f.id, &f.sha1); err != nil {
			return 0, "", fmt.Errorf("scan ref commit: %w", err)
		}

		all = append(all, f)
	}

	if err := rows.Err(); err != nil {
		return 0, "", fmt.Errorf("iterate ref commits: %w", err)
	}

	switch len(all) {
	case 0:
		return 0, "", fmt.Errorf("%w: no refs in store", ErrCommitNotFound)
	case 1:
		return all[0].id, all[0].sha1, nil
	default:
		return 0, "", ErrRefAmbiguous
	}
}

// PresenceLoc is one row of a commit's presence set, joined against the
// entity hierarchy so its owning file path and nesting level are known. It
// is the Go-side analog of original_source/src/deps.rs's Loc, queried via
// the same recursive-CTE shape as that module's load_locs.
type PresenceLoc struct {
	EntityID int
	Name     string
	FilePath string
	Level    int
	StartRow int
	EndRow   int
}

const presenceLocsQuery = `
WITH RECURSIVE filenames (entity_id, filename, level) AS (
	SELECT E.id, E.name, 0 FROM entities E WHERE E.kind = 'file'
	UNION ALL
	SELECT E.id, F.filename, F.level + 1
	FROM entities E JOIN filenames F ON E.parent_id = F.entity_id
)
SELECT F.entity_id, E.name, F.filename, F.level, P.start_row, P.end_row
FROM presence P
JOIN filenames F ON P.entity_id = F.entity_id
JOIN entities E ON P.entity_id = E.id
WHERE P.commit_id = ?
ORDER BY P.entity_id
`

// QueryPresenceLocs returns every presence row recorded for commitID,
// grouped by owning file path, for the dependency-endpoint matcher to
// resolve edge endpoints against.
func (s *Store) QueryPresenceLocs(ctx context.Context, commitID int) (map[string][]PresenceLoc, error) {
	rows, err := s.db.QueryContext(ctx, presenceLocsQuery, commitID)
	if err != nil {
		return nil, fmt.Errorf("query presence locs: %w", err)
	}
	defer rows.Close()

	byFile := make(map[string][]PresenceLoc)

	for rows.Next() {
		var l PresenceLoc
		if err := rows.Scan(&l.EntityID, &l.Name, &l.FilePath, &l.Level, &l.StartRow, &l.EndRow); err != nil {
			return nil, fmt.Errorf("scan presence loc: %w", err)
		}

		byFile[l.FilePath] = append(byFile[l.FilePath], l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence locs: %w", err)
	}

	return byFile, nil
}

// DepInsert is one resolved edge ready to be written to the deps table.
type DepInsert struct {
	CommitID     int
	FromEntityID int
	ToEntityID   int
	Kind         string
}

// InsertDeps ensures the deps schema exists and writes rows inside a single
// transaction, matching the rest of the store's one-transaction-per-write
// discipline.
func (s *Store) InsertDeps(ctx context.Context, rows []DepInsert) error {
	if err := s.EnsureDepsSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deps (commit_id, from_entity_id, to_entity_id, kind) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("prepare deps insert: %w", err)
	}

	for _, r := range rows {
		if _, execErr := stmt.ExecContext(ctx, r.CommitID, r.FromEntityID, r.ToEntityID, r.Kind); execErr != nil {
			stmt.Close()
			tx.Rollback()

			return fmt.Errorf("insert dep: %w", execErr)
		}
	}

	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Tables bundles the virtual tables a full pipeline run accumulates, ready
// to be flushed together in one transaction.
type Tables struct {
	Entities      *vtab.EntityTable
	Commits       *vtab.CommitTable
	Refs          *vtab.RefTable
	Changes       *vtab.ChangeTable
	Presence      *vtab.PresenceTable
	Reachability  *vtab.ReachabilityTable
	ChangedCommit map[int]bool
	PresentCommit map[int]bool
}

// Flush writes every table in Tables to the database inside one
// transaction, in dependency order: entities, commits, refs, then the
// tables that reference them. Each table flushes in ascending id order
// (vtab.Table.Flush), so a row's foreign keys are always already present.
func (s *Store) Flush(ctx context.Context, t Tables) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := flushAll(ctx, tx, t); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("flush failed: %w (rollback also failed: %v)", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func flushAll(ctx context.Context, tx *sql.Tx, t Tables) error {
	if err := flushEntities(ctx, tx, t.Entities); err != nil {
		return err
	}

	if err := flushCommits(ctx, tx, t.Commits, t.ChangedCommit, t.PresentCommit); err != nil {
		return err
	}

	if err := flushRefs(ctx, tx, t.Refs); err != nil {
		return err
	}

	if err := flushChanges(ctx, tx, t.Changes); err != nil {
		return err
	}

	if err := flushPresence(ctx, tx, t.Presence); err != nil {
		return err
	}

	return flushReachability(ctx, tx, t.Reachability)
}

func flushEntities(ctx context.Context, tx *sql.Tx, t *vtab.EntityTable) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entities (id, parent_id, name, kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entities insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, _ vtab.EntityKey, row vtab.EntityRow) error {
		var parentID any
		if row.ParentID != nil {
			parentID = *row.ParentID
		}

		if _, execErr := stmt.ExecContext(ctx, id, parentID, row.Name, row.Kind); execErr != nil {
			return fmt.Errorf("insert entity %d: %w", id, execErr)
		}

		return nil
	})
}

func flushCommits(
	ctx context.Context,
	tx *sql.Tx,
	t *vtab.CommitTable,
	changed map[int]bool,
	present map[int]bool,
) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO commits
			(id, sha1, is_merge, author_date, commit_date, has_change_info, has_presence_info, has_reachability_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return fmt.Errorf("prepare commits insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, _ string, c model.Commit) error {
		hasChanges := changed[id]
		hasPresence := present[id]

		if _, execErr := stmt.ExecContext(
			ctx, id, c.SHA1, c.IsMerge, c.AuthorTime.Unix(), c.CommitTime.Unix(), hasChanges, hasPresence,
		); execErr != nil {
			return fmt.Errorf("insert commit %d: %w", id, execErr)
		}

		return nil
	})
}

func flushRefs(ctx context.Context, tx *sql.Tx, t *vtab.RefTable) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO refs (id, commit_id, name) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare refs insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, name string, row vtab.RefRow) error {
		if _, execErr := stmt.ExecContext(ctx, id, row.CommitID, name); execErr != nil {
			return fmt.Errorf("insert ref %d: %w", id, execErr)
		}

		return nil
	})
}

func flushChanges(ctx context.Context, tx *sql.Tx, t *vtab.ChangeTable) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes (id, commit_id, entity_id, kind, adds, dels) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare changes insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, key vtab.ChangeKey, row vtab.ChangeRow) error {
		if _, execErr := stmt.ExecContext(
			ctx, id, key.CommitID, key.EntityID, string(row.Kind), row.Adds, row.Dels,
		); execErr != nil {
			return fmt.Errorf("insert change %d: %w", id, execErr)
		}

		return nil
	})
}

func flushPresence(ctx context.Context, tx *sql.Tx, t *vtab.PresenceTable) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO presence (id, commit_id, entity_id, start_row, end_row) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare presence insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, key vtab.PresenceKey, row vtab.PresenceRow) error {
		if _, execErr := stmt.ExecContext(
			ctx, id, key.CommitID, key.EntityID, row.StartRow, row.EndRow,
		); execErr != nil {
			return fmt.Errorf("insert presence %d: %w", id, execErr)
		}

		return nil
	})
}

func flushReachability(ctx context.Context, tx *sql.Tx, t *vtab.ReachabilityTable) error {
	if t == nil || t.Len() == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reachability (id, source_id, target_id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reachability insert: %w", err)
	}
	defer stmt.Close()

	return t.Flush(func(id int, key vtab.ReachKey, _ vtab.ReachRow) error {
		if _, execErr := stmt.ExecContext(ctx, id, key.SourceID, key.TargetID); execErr != nil {
			return fmt.Errorf("insert reachability %d: %w", id, execErr)
		}

		return nil
	})
}
