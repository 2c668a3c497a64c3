// Package parse implements the generic, query-driven semantic-entity
// extractor: a tree-sitter parse plus a tag query turns one blob into a
// list of located entities under a synthetic file root.
//
// The query contract is the sole knob that generalizes extraction to other
// languages: it declares one capture named "name" (the entity's identifier
// span) and any number of captures named "tag.<kind>" (the entity's span).
// Kinds are interned strings emitted by the query author, never a closed
// enumeration in code.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/jlefever/cochange-tool/internal/interval"
)

const tagPrefix = "tag."

// nameCapture is the fixed capture name identifying an entity's display name.
const nameCapture = "name"

// Parser extracts located entities from source blobs of one language.
type Parser struct {
	language *sitter.Language
	query    *sitter.Query
	nameIdx  uint32
	logger   *slog.Logger
}

// New compiles querySrc against language and resolves the "name" capture.
// querySrc must declare a "name" capture; its absence is a fatal
// configuration error (spec: bad query is fatal).
func New(language *sitter.Language, querySrc string, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	query, err := sitter.NewQuery(language, []byte(querySrc))
	if err != nil {
		return nil, fmt.Errorf("compile tag query: %w", err)
	}

	nameIdx, ok := captureIndexForName(query, nameCapture)
	if !ok {
		return nil, fmt.Errorf("tag query has no %q capture", nameCapture)
	}

	return &Parser{language: language, query: query, nameIdx: nameIdx, logger: logger}, nil
}

// NewDefault loads grammarName's tree-sitter language and its built-in tag
// query (see queries/), the common case of constructing a Parser for one of
// the grammars this binary ships a query for.
func NewDefault(grammarName string, logger *slog.Logger) (*Parser, error) {
	lang, err := Language(grammarName)
	if err != nil {
		return nil, err
	}

	querySrc, ok := DefaultQuery(grammarName)
	if !ok {
		return nil, fmt.Errorf("no built-in tag query for grammar: %s", grammarName)
	}

	return New(lang, querySrc, logger)
}

// captureIndexForName finds the numeric index of a named capture by
// scanning the query's capture name table.
func captureIndexForName(query *sitter.Query, name string) (uint32, bool) {
	for i := uint32(0); i < query.CaptureCount(); i++ {
		if query.CaptureNameForID(i) == name {
			return i, true
		}
	}

	return 0, false
}

// preTag is one match's candidate entity before parent resolution.
type preTag struct {
	nodeID      uintptr
	name        string
	kind        string
	rowInterval interval.Interval
	ancestorIDs []uintptr
}

// Parse runs the tag query over source and returns the located entities,
// including the synthetic file root, per spec steps 1-6.
func (p *Parser) Parse(ctx context.Context, source []byte, filename string) ([]entity.LocatedEntity, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.language)

	tree, err := parser.ParseString(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	fileRoot := &entity.Entity{Name: filename, Kind: entity.FileKind}
	fileInterval := toInterval(root)

	preTags := p.collectPreTags(root, source)

	sort.SliceStable(preTags, func(i, j int) bool {
		return len(preTags[i].ancestorIDs) < len(preTags[j].ancestorIDs)
	})

	byNode := make(map[uintptr]*entity.Entity, len(preTags))
	located := make([]entity.LocatedEntity, 0, len(preTags)+1)
	located = append(located, entity.LocatedEntity{Entity: fileRoot, Interval: fileInterval})

	for _, pt := range preTags {
		parent := fileRoot

		for _, aid := range pt.ancestorIDs {
			if e, ok := byNode[aid]; ok {
				parent = e
				break
			}
		}

		e := &entity.Entity{Name: pt.name, Kind: pt.kind, Parent: parent}
		byNode[pt.nodeID] = e
		located = append(located, entity.LocatedEntity{Entity: e, Interval: pt.rowInterval})
	}

	return located, nil
}

// collectPreTags runs the query over root and gathers one preTag per match
// that has both a name capture and a tag.<kind> capture.
func (p *Parser) collectPreTags(root sitter.Node, source []byte) []preTag {
	cursor := sitter.NewQueryCursor()
	matches := cursor.Matches(p.query, root, source)

	var preTags []preTag

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		var (
			name     string
			haveName bool
			tagNode  sitter.Node
			tagKind  string
			haveTag  bool
		)

		for _, cap := range match.Captures {
			capName := p.query.CaptureNameForID(cap.Index)

			switch {
			case cap.Index == p.nameIdx:
				name = cap.Node.Content(source)
				haveName = true
			case strings.HasPrefix(capName, tagPrefix) && !haveTag:
				tagNode = cap.Node
				tagKind = strings.TrimPrefix(capName, tagPrefix)
				haveTag = true
			}
		}

		if !haveName || !haveTag {
			p.logger.Debug("tag query match missing name or tag capture; skipped", "file_kind", "incomplete")
			continue
		}

		preTags = append(preTags, preTag{
			nodeID:      nodeID(tagNode),
			name:        name,
			kind:        tagKind,
			rowInterval: toInterval(tagNode),
			ancestorIDs: ancestorIDs(tagNode),
		})
	}

	return preTags
}

// toInterval converts a tree-sitter node's 0-based row range to the
// pipeline's half-open-upper interval convention: a node occupying 0-based
// rows [startRow, endRow] becomes Interval{startRow+1, endRow+2}, matching
// the same "end = start + line_count" shape used for hunks (internal/interval),
// so the two sides of Intersect are directly comparable.
func toInterval(n sitter.Node) interval.Interval {
	start := n.StartPoint()
	end := n.EndPoint()

	return interval.Interval{Start: int(start.Row) + 1, End: int(end.Row) + 2}
}

// nodeID derives a stable per-parse identity for a node from its start and
// end byte offsets only, since go-tree-sitter-bare nodes are value types
// without an exposed pointer identity. Nodes with the same byte span share
// an id.
func nodeID(n sitter.Node) uintptr {
	return uintptr(n.StartByte())<<32 | uintptr(n.EndByte())
}

// ancestorIDs returns the node ids on the path from n's parent up to the
// root, nearest ancestor first.
func ancestorIDs(n sitter.Node) []uintptr {
	var ids []uintptr

	for parent := n.Parent(); !parent.IsNull(); parent = parent.Parent() {
		ids = append(ids, nodeID(parent))
	}

	return ids
}
