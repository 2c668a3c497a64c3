// Package deps implements the dependency-endpoint ingestion supplemental
// feature: parsing a line-oriented edge file produced by an external static
// analyzer and resolving each endpoint against the nearest enclosing entity
// already present in the store for one commit.
//
// Grounded on original_source/src/deps.rs's match_entity_id: line-containment
// first, then (when available) name match, then a deepest-enclosing-entity
// fallback.
package deps

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Endpoint is one side of an edge: a path and the 1-based line number the
// external analyzer reported for it. Line 0 denotes a file-level endpoint.
type Endpoint struct {
	Path string
	Line int
}

// Edge is one dependency edge between two endpoints, as read from an edges
// file.
type Edge struct {
	From Endpoint
	To   Endpoint
	Kind string
}

// defaultKind is used when a line omits the optional "[kind]" suffix.
const defaultKind = "Use"

// ParseEdges reads the line-oriented edge format:
//
//	from_path:from_line -> to_path:to_line [kind]
//
// Blank lines and lines starting with '#' are skipped. The "[kind]" suffix
// is optional; when absent, Kind defaults to "Use".
func ParseEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge

	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		edge, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("edges file line %d: %w", lineNo, err)
		}

		edges = append(edges, edge)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read edges file: %w", err)
	}

	return edges, nil
}

func parseLine(line string) (Edge, error) {
	sides := strings.SplitN(line, "->", 2)
	if len(sides) != 2 {
		return Edge{}, fmt.Errorf("missing \"->\" in %q", line)
	}

	left := strings.TrimSpace(sides[0])

	right := strings.TrimSpace(sides[1])
	kind := defaultKind

	if idx := strings.IndexByte(right, '['); idx >= 0 {
		end := strings.IndexByte(right[idx:], ']')
		if end < 0 {
			return Edge{}, fmt.Errorf("unterminated \"[kind]\" in %q", line)
		}

		kind = strings.TrimSpace(right[idx+1 : idx+end])
		right = strings.TrimSpace(right[:idx])
	}

	from, err := parseEndpoint(left)
	if err != nil {
		return Edge{}, fmt.Errorf("from-endpoint: %w", err)
	}

	to, err := parseEndpoint(right)
	if err != nil {
		return Edge{}, fmt.Errorf("to-endpoint: %w", err)
	}

	return Edge{From: from, To: to, Kind: kind}, nil
}

func parseEndpoint(s string) (Endpoint, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return Endpoint{}, fmt.Errorf("expected path:line in %q", s)
	}

	path := s[:idx]

	line, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Endpoint{}, fmt.Errorf("bad line number in %q: %w", s, err)
	}

	return Endpoint{Path: path, Line: line}, nil
}

// Loc is one located entity as recorded in the store's presence table for a
// single commit, joined against the entities table's self-referential
// hierarchy. Level counts steps from the file root (0 = the file itself).
type Loc struct {
	EntityID int
	Name     string
	FilePath string
	Level    int
	StartRow int
	EndRow   int
}

// MatchEntityID resolves ep against locs[ep.Path], following
// original_source/src/deps.rs's match_entity_id:
//
//  1. A zero-line endpoint names the file itself (level 0).
//  2. A zero-line endpoint outside a file context cannot be resolved; this
//     is the spec §7 "per-record skip with warning" case.
//  3. Otherwise, candidates are every Loc whose span contains ep.Line.
//  4. Zero candidates: skip with a warning (file or span not present in the
//     store for this commit).
//  5. Exactly one candidate: that is the match.
//  6. More than one: fall back to the candidate(s) at the deepest level
//     (original_source's "max_level" — the original edge file carries no
//     entity name for this simplified endpoint shape, so the name-match
//     step that precedes this fallback in the original Rust is skipped
//     here; see DESIGN.md). Exactly one survivor at that level resolves;
//     otherwise the endpoint is ambiguous and is skipped with a warning.
func MatchEntityID(locs map[string][]Loc, ep Endpoint, logger *slog.Logger) (int, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	fileLocs, ok := locs[ep.Path]
	if !ok {
		logger.Warn("deps: file not found in store for this commit", "path", ep.Path)

		return 0, false
	}

	if ep.Line == 0 {
		for _, l := range fileLocs {
			if l.Level == 0 {
				return l.EntityID, true
			}
		}

		logger.Warn("deps: file-level entity not found", "path", ep.Path)

		return 0, false
	}

	var candidates []Loc

	for _, l := range fileLocs {
		if ep.Line >= l.StartRow && ep.Line <= l.EndRow {
			candidates = append(candidates, l)
		}
	}

	switch len(candidates) {
	case 0:
		logger.Warn("deps: no entity contains this line", "path", ep.Path, "line", ep.Line)

		return 0, false
	case 1:
		return candidates[0].EntityID, true
	}

	maxLevel := candidates[0].Level
	for _, l := range candidates[1:] {
		if l.Level > maxLevel {
			maxLevel = l.Level
		}
	}

	var deepest []Loc

	for _, l := range candidates {
		if l.Level == maxLevel {
			deepest = append(deepest, l)
		}
	}

	if len(deepest) == 1 {
		return deepest[0].EntityID, true
	}

	logger.Warn("deps: ambiguous entity for line", "path", ep.Path, "line", ep.Line, "candidates", len(deepest))

	return 0, false
}

// MatchedDep is one edge with both endpoints resolved to entity ids, ready
// for insertion into the store's deps table.
type MatchedDep struct {
	FromEntityID int
	ToEntityID   int
	Kind         string
}

// Match resolves every edge's endpoints against locs, skipping (with a
// warning, already logged by MatchEntityID) any edge with an unresolvable
// endpoint.
func Match(locs map[string][]Loc, edges []Edge, logger *slog.Logger) []MatchedDep {
	matched := make([]MatchedDep, 0, len(edges))

	for _, e := range edges {
		fromID, ok := MatchEntityID(locs, e.From, logger)
		if !ok {
			continue
		}

		toID, ok := MatchEntityID(locs, e.To, logger)
		if !ok {
			continue
		}

		matched = append(matched, MatchedDep{FromEntityID: fromID, ToEntityID: toID, Kind: e.Kind})
	}

	return matched
}
