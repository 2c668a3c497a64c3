package deps_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/jlefever/cochange-tool/internal/deps"
	"github.com/stretchr/testify/require"
)

func TestParseEdgesValidLines(t *testing.T) {
	input := `# comment line, ignored

src/a.go:10 -> src/b.go:20 [Call]
src/a.go:1 -> src/c.go:0
`
	edges, err := deps.ParseEdges(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, edges, 2)

	require.Equal(t, deps.Edge{
		From: deps.Endpoint{Path: "src/a.go", Line: 10},
		To:   deps.Endpoint{Path: "src/b.go", Line: 20},
		Kind: "Call",
	}, edges[0])

	require.Equal(t, deps.Edge{
		From: deps.Endpoint{Path: "src/a.go", Line: 1},
		To:   deps.Endpoint{Path: "src/c.go", Line: 0},
		Kind: "Use",
	}, edges[1])
}

func TestParseEdgesSkipsBlankAndCommentLines(t *testing.T) {
	input := "\n  \n# nothing here\nsrc/a.go:1 -> src/b.go:2\n"

	edges, err := deps.ParseEdges(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, edges, 1)
}

func TestParseEdgesMissingArrow(t *testing.T) {
	_, err := deps.ParseEdges(strings.NewReader("src/a.go:1 src/b.go:2"))
	require.Error(t, err)
}

func TestParseEdgesBadLineNumber(t *testing.T) {
	_, err := deps.ParseEdges(strings.NewReader("src/a.go:x -> src/b.go:2"))
	require.Error(t, err)
}

func TestParseEdgesUnterminatedKind(t *testing.T) {
	_, err := deps.ParseEdges(strings.NewReader("src/a.go:1 -> src/b.go:2 [Call"))
	require.Error(t, err)
}

func TestParseEdgesMissingColon(t *testing.T) {
	_, err := deps.ParseEdges(strings.NewReader("src/a.go -> src/b.go:2"))
	require.Error(t, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestMatchEntityIDFileLevel(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 100},
			{EntityID: 2, FilePath: "src/a.go", Level: 1, StartRow: 5, EndRow: 10},
		},
	}

	id, ok := deps.MatchEntityID(locs, deps.Endpoint{Path: "src/a.go", Line: 0}, discardLogger())
	require.True(t, ok)
	require.Equal(t, 1, id)
}

func TestMatchEntityIDFileLevelUnknownPath(t *testing.T) {
	_, ok := deps.MatchEntityID(map[string][]deps.Loc{}, deps.Endpoint{Path: "src/missing.go", Line: 0}, discardLogger())
	require.False(t, ok)
}

func TestMatchEntityIDSingleCandidate(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 100},
			{EntityID: 2, FilePath: "src/a.go", Level: 1, StartRow: 5, EndRow: 10},
		},
	}

	id, ok := deps.MatchEntityID(locs, deps.Endpoint{Path: "src/a.go", Line: 7}, discardLogger())
	require.True(t, ok)
	require.Equal(t, 2, id)
}

func TestMatchEntityIDNoCandidates(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 4},
		},
	}

	_, ok := deps.MatchEntityID(locs, deps.Endpoint{Path: "src/a.go", Line: 50}, discardLogger())
	require.False(t, ok)
}

func TestMatchEntityIDDeepestLevelWins(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 100},
			{EntityID: 2, FilePath: "src/a.go", Level: 1, StartRow: 0, EndRow: 50},
			{EntityID: 3, FilePath: "src/a.go", Level: 2, StartRow: 8, EndRow: 12},
		},
	}

	id, ok := deps.MatchEntityID(locs, deps.Endpoint{Path: "src/a.go", Line: 10}, discardLogger())
	require.True(t, ok)
	require.Equal(t, 3, id)
}

func TestMatchEntityIDAmbiguousAtDeepestLevel(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 100},
			{EntityID: 2, FilePath: "src/a.go", Level: 1, StartRow: 0, EndRow: 20},
			{EntityID: 3, FilePath: "src/a.go", Level: 1, StartRow: 0, EndRow: 30},
		},
	}

	_, ok := deps.MatchEntityID(locs, deps.Endpoint{Path: "src/a.go", Line: 10}, discardLogger())
	require.False(t, ok)
}

func TestMatchSkipsEdgesWithUnresolvableEndpoint(t *testing.T) {
	locs := map[string][]deps.Loc{
		"src/a.go": {
			{EntityID: 1, FilePath: "src/a.go", Level: 0, StartRow: 0, EndRow: 100},
			{EntityID: 2, FilePath: "src/a.go", Level: 1, StartRow: 5, EndRow: 10},
		},
		"src/b.go": {
			{EntityID: 3, FilePath: "src/b.go", Level: 0, StartRow: 0, EndRow: 100},
		},
	}

	edges := []deps.Edge{
		{From: deps.Endpoint{Path: "src/a.go", Line: 7}, To: deps.Endpoint{Path: "src/b.go", Line: 0}, Kind: "Call"},
		{From: deps.Endpoint{Path: "src/a.go", Line: 7}, To: deps.Endpoint{Path: "src/missing.go", Line: 0}, Kind: "Call"},
	}

	matched := deps.Match(locs, edges, discardLogger())
	require.Len(t, matched, 1)
	require.Equal(t, deps.MatchedDep{FromEntityID: 2, ToEntityID: 3, Kind: "Call"}, matched[0])
}
