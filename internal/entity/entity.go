// Package entity implements the hierarchical semantic-entity model: a
// parent-linked, kind-tagged tree rooted at a synthetic file node, and the
// path-flattened identity used to deduplicate entities across parses.
package entity

import (
	"strconv"
	"strings"

	"github.com/jlefever/cochange-tool/internal/interval"
)

// FileKind is the reserved kind of the synthetic root entity every parse
// produces. An Entity has Parent == nil iff Kind == FileKind.
const FileKind = "file"

// Entity is a node in the tree rooted at a synthetic file entity. Entities
// are value-semantic: equal Name/Kind/Parent-chain entities are considered
// the same identity regardless of how many times they were constructed.
type Entity struct {
	Name   string
	Kind   string
	Parent *Entity
}

// IsFile reports whether this entity is a synthetic file root.
func (e *Entity) IsFile() bool {
	return e.Kind == FileKind && e.Parent == nil
}

// Segment is one (name, kind) pair on an entity's root-to-leaf path.
type Segment struct {
	Name string
	Kind string
}

// Path flattens the root-to-leaf chain of (name, kind) pairs. This is the
// entity's natural deduplication key.
func (e *Entity) Path() []Segment {
	var depth int
	for n := e; n != nil; n = n.Parent {
		depth++
	}

	path := make([]Segment, depth)
	i := depth - 1

	for n := e; n != nil; n = n.Parent {
		path[i] = Segment{Name: n.Name, Kind: n.Kind}
		i--
	}

	return path
}

// Key renders Path as a single comparable string, suitable for use as a map
// key when deduplicating entities by identity (e.g. set-difference between
// an old and a new blob's entities).
func (e *Entity) Key() string {
	var sb strings.Builder

	for _, seg := range e.Path() {
		sb.WriteString(strconv.Quote(seg.Kind))
		sb.WriteByte(':')
		sb.WriteString(strconv.Quote(seg.Name))
		sb.WriteByte('/')
	}

	return sb.String()
}

// LocatedEntity pairs an entity with the row interval it spans within a
// specific blob, stored half-open-upper like every interval.Interval.
type LocatedEntity struct {
	Entity   *Entity
	Interval interval.Interval
}
