package vtab

import (
	"github.com/jlefever/cochange-tool/internal/attribute"
	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/jlefever/cochange-tool/internal/model"
)

// EntityKey is the natural key of one entity path segment: its parent's id
// (-1 at the root) plus its own name and kind.
type EntityKey struct {
	ParentID int
	Name     string
	Kind     string
}

// noParent is the sentinel ParentID of a root (file) entity row.
const noParent = -1

// EntityRow is one row of the entities table. ParentID is nil for a file
// root, matching the store's nullable self-referential foreign key.
type EntityRow struct {
	ParentID *int
	Name     string
	Kind     string
}

// EntityTable deduplicates entities by their path-flattened identity.
type EntityTable = Table[EntityKey, EntityRow]

// NewEntityTable constructs an empty EntityTable.
func NewEntityTable() *EntityTable {
	return New[EntityKey, EntityRow]()
}

// InsertEntity inserts e's full root-to-leaf path, reusing any already
// inserted prefix, and returns the leaf's id. Because a parent segment is
// always inserted (or already present) before its child, Flush's ascending
// id order guarantees a row's parent_id always names an already-flushed
// row.
func InsertEntity(t *EntityTable, e *entity.Entity) int {
	parentID := noParent

	for _, seg := range e.Path() {
		key := EntityKey{ParentID: parentID, Name: seg.Name, Kind: seg.Kind}

		var row EntityRow
		if parentID != noParent {
			pid := parentID
			row = EntityRow{ParentID: &pid, Name: seg.Name, Kind: seg.Kind}
		} else {
			row = EntityRow{Name: seg.Name, Kind: seg.Kind}
		}

		parentID = t.Insert(key, row)
	}

	return parentID
}

// CommitTable deduplicates commits by sha1.
type CommitTable = Table[string, model.Commit]

// NewCommitTable constructs an empty CommitTable.
func NewCommitTable() *CommitTable {
	return New[string, model.Commit]()
}

// InsertCommit inserts c keyed by its sha1 and returns its id.
func InsertCommit(t *CommitTable, c model.Commit) int {
	return t.Insert(c.SHA1, c)
}

// RefRow is one row of the refs table: a name pointing at a commit id.
type RefRow struct {
	CommitID int
}

// RefTable deduplicates refs by name.
type RefTable = Table[string, RefRow]

// NewRefTable constructs an empty RefTable.
func NewRefTable() *RefTable {
	return New[string, RefRow]()
}

// InsertRef inserts r, first inserting its referenced commit to obtain the
// foreign key, and returns the ref row's id.
func InsertRef(t *RefTable, commits *CommitTable, r model.Ref) int {
	commitID := InsertCommit(commits, r.Commit)

	return t.Insert(r.Name, RefRow{CommitID: commitID})
}

// ChangeKey is the natural key of one changes row: the (commit, entity)
// pair it describes.
type ChangeKey struct {
	CommitID int
	EntityID int
}

// ChangeRow is one row of the changes table.
type ChangeRow struct {
	Kind byte
	Adds uint32
	Dels uint32
}

// ChangeTable deduplicates changes by (commit, entity).
type ChangeTable = Table[ChangeKey, ChangeRow]

// NewChangeTable constructs an empty ChangeTable.
func NewChangeTable() *ChangeTable {
	return New[ChangeKey, ChangeRow]()
}

// InsertChange inserts c for commitID, first inserting c.Entity to obtain
// its id, and returns the change row's id.
func InsertChange(t *ChangeTable, entities *EntityTable, commitID int, c attribute.Change) int {
	entityID := InsertEntity(entities, c.Entity)
	key := ChangeKey{CommitID: commitID, EntityID: entityID}

	return t.Insert(key, ChangeRow{Kind: c.Kind.Letter(), Adds: c.Adds, Dels: c.Dels})
}

// PresenceKey is the natural key of one presence row: the (commit, entity)
// pair it describes.
type PresenceKey struct {
	CommitID int
	EntityID int
}

// PresenceRow is one row of the presence table: the entity's located span
// within the commit's tree snapshot.
type PresenceRow struct {
	StartRow int
	EndRow   int
}

// PresenceTable deduplicates presence rows by (commit, entity).
type PresenceTable = Table[PresenceKey, PresenceRow]

// NewPresenceTable constructs an empty PresenceTable.
func NewPresenceTable() *PresenceTable {
	return New[PresenceKey, PresenceRow]()
}

// InsertPresence inserts le as present at commitID, first inserting its
// entity to obtain its id, and returns the presence row's id.
func InsertPresence(t *PresenceTable, entities *EntityTable, commitID int, le entity.LocatedEntity) int {
	entityID := InsertEntity(entities, le.Entity)
	key := PresenceKey{CommitID: commitID, EntityID: entityID}

	// Stored rows are inclusive: EndRow is the entity's last line.
	row := PresenceRow{StartRow: le.Interval.Start, EndRow: le.Interval.End - 1}

	return t.Insert(key, row)
}

// ReachKey is the natural key of one reachability row: a directed edge
// between two commits.
type ReachKey struct {
	SourceID int
	TargetID int
}

// ReachRow is the (currently empty) payload of a reachability row. The
// table exists so the store can create the reachability table's schema;
// nothing in this pipeline populates it yet (spec: FlagReachability is
// reserved for a future analysis, e.g. commit-DAG reachability queries).
type ReachRow struct{}

// ReachabilityTable deduplicates reachability edges between commits by
// (source, target).
type ReachabilityTable = Table[ReachKey, ReachRow]

// NewReachabilityTable constructs an empty ReachabilityTable.
func NewReachabilityTable() *ReachabilityTable {
	return New[ReachKey, ReachRow]()
}
