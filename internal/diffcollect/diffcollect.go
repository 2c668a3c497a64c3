// Package diffcollect implements the per-commit tree-diff hunk collector:
// for each non-merge commit it diffs tree-to-tree with fixed options and
// groups the resulting hunks into one DiffedFile per changed path.
package diffcollect

import (
	"fmt"
	"log/slog"
	"strings"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/jlefever/cochange-tool/internal/interval"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// Hunk is one contiguous change region, converted from a diff hunk's
// 1-based, line-count shape into the pipeline's half-open-upper interval
// convention (see internal/interval).
type Hunk struct {
	OldInterval interval.Interval
	NewInterval interval.Interval
}

// DiffedFile accumulates every hunk touching one path within one commit,
// plus the blob ids of both sides (zero hash on the side that doesn't
// exist, e.g. the old side of an added file).
type DiffedFile struct {
	Path      string
	OldBlobID gitlib.Hash
	NewBlobID gitlib.Hash
	Hunks     []Hunk
}

// ErrRenameUnsupported is returned when a delta's path differs between the
// old and new side; the spec's non-goals exclude rename/move detection.
var ErrRenameUnsupported = fmt.Errorf("diffcollect: rename/move deltas are not supported")

// options returns the pipeline's fixed diff options: zero context lines, no
// interhunk coalescing, no whitespace/blank-line ignoring, no indent
// heuristic, and file-mode changes ignored.
func options() (git2go.DiffOptions, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return opts, fmt.Errorf("default diff options: %w", err)
	}

	opts.ContextLines = 0
	opts.InterhunkLines = 0
	opts.Flags |= git2go.DiffIgnoreFilemode

	return opts, nil
}

// Collect diffs commit's tree against its single parent (or the empty tree
// for a root commit) and returns one DiffedFile per path whose extension
// matches suffix (case-insensitive). It does not check for merge commits:
// given one, it diffs against the first parent only. The pipeline skips
// merges before calling it.
func Collect(repo *gitlib.Repository, commit *gitlib.Commit, suffix string, logger *slog.Logger) ([]DiffedFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	newTree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("commit tree: %w", err)
	}
	defer newTree.Free()

	var oldTree *gitlib.Tree

	if commit.NumParents() > 0 {
		parent, parentErr := commit.Parent(0)
		if parentErr != nil {
			return nil, fmt.Errorf("parent commit: %w", parentErr)
		}
		defer parent.Free()

		oldTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("parent tree: %w", err)
		}
		defer oldTree.Free()
	}

	diffOpts, err := options()
	if err != nil {
		return nil, err
	}

	diff, err := repo.DiffTreeToTreeWithOptions(oldTree, newTree, &diffOpts)
	if err != nil {
		return nil, fmt.Errorf("diff tree to tree: %w", err)
	}
	defer diff.Free()

	byPath := make(map[string]*DiffedFile)
	order := make([]string, 0)

	appendErr := diff.ForEach(func(delta gitlib.DiffDelta, _ float64) (git2go.DiffForEachHunkCallback, error) {
		keep, path, err := acceptDelta(delta, suffix, logger)
		if err != nil {
			return nil, err
		}

		if !keep {
			return nil, nil //nolint:nilnil // skip this delta's hunks without error
		}

		df, ok := byPath[path]
		if !ok {
			df = &DiffedFile{Path: path, OldBlobID: delta.OldFile.Hash, NewBlobID: delta.NewFile.Hash}
			byPath[path] = df
			order = append(order, path)
		}

		return func(hunk git2go.DiffHunk) (git2go.DiffForEachLineCallback, error) {
			if hunk.OldStart == 0 || hunk.NewStart == 0 {
				logger.Debug("diff hunk with zero start row", "path", path,
					"old_start", hunk.OldStart, "new_start", hunk.NewStart)
			}

			df.Hunks = append(df.Hunks, Hunk{
				OldInterval: interval.New(hunk.OldStart, hunk.OldLines),
				NewInterval: interval.New(hunk.NewStart, hunk.NewLines),
			})

			return nil, nil
		}, nil
	}, git2go.DiffDetailHunks)
	if appendErr != nil {
		return nil, fmt.Errorf("collect hunks: %w", appendErr)
	}

	files := make([]DiffedFile, 0, len(order))
	for _, path := range order {
		files = append(files, *byPath[path])
	}

	return files, nil
}

// acceptDelta applies the status/suffix/rename filter chain. The first
// return reports whether the delta's hunks should be collected.
func acceptDelta(delta gitlib.DiffDelta, suffix string, logger *slog.Logger) (bool, string, error) {
	switch delta.Status {
	case git2go.DeltaAdded, git2go.DeltaDeleted, git2go.DeltaModified:
	default:
		logger.Warn("diff delta skipped: unsupported status", "status", delta.Status)

		return false, "", nil
	}

	path := delta.NewFile.Path
	if path == "" {
		path = delta.OldFile.Path
	}

	if delta.OldFile.Path != "" && delta.NewFile.Path != "" && delta.OldFile.Path != delta.NewFile.Path {
		return false, "", fmt.Errorf("%w: %s -> %s", ErrRenameUnsupported, delta.OldFile.Path, delta.NewFile.Path)
	}

	if !strings.HasSuffix(strings.ToLower(path), strings.ToLower(suffix)) {
		logger.Debug("diff delta skipped: suffix mismatch", "path", path)

		return false, "", nil
	}

	return true, path, nil
}
