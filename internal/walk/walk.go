// Package walk implements the commit walker: reference-glob/oid seeding, a
// combinable sort mode, and the since/until/max-count filter contract of the
// mining pipeline's first stage.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/jlefever/cochange-tool/internal/gitconv"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// GlobKind classifies a starting glob by the ref namespace it is rooted in.
type GlobKind int

const (
	// KindAll applies Pattern verbatim under "refs/".
	KindAll GlobKind = iota
	// KindBranches applies Pattern under "refs/heads/".
	KindBranches
	// KindTags applies Pattern under "refs/tags/".
	KindTags
	// KindRemotes applies Pattern under "refs/remotes/".
	KindRemotes
)

// defaultPattern is substituted for a Glob with an empty Pattern.
const defaultPattern = "*"

// Glob is one starting-reference glob, classified by namespace.
type Glob struct {
	Kind    GlobKind
	Pattern string
}

// Resolved returns the fully-qualified glob ("refs/heads/*", etc.) pushed to
// the underlying revision walker. An empty Pattern defaults to "*".
func (g Glob) Resolved() string {
	pattern := g.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}

	switch g.Kind {
	case KindBranches:
		return "refs/heads/" + pattern
	case KindTags:
		return "refs/tags/" + pattern
	case KindRemotes:
		return "refs/remotes/" + pattern
	case KindAll:
		return "refs/" + pattern
	default:
		return "refs/" + pattern
	}
}

// Config configures one walk: the union of seeded globs and explicit start
// oids, a combinable sort mode, and the since/until/max-count filters.
type Config struct {
	Globs       []Glob
	StartHashes []gitlib.Hash
	Sort        git2go.SortType
	MaxCount    *int
	Since       *time.Time
	Until       *time.Time
}

// ErrNoStartingPoint is returned when a Config seeds neither a glob nor an
// explicit starting commit.
var ErrNoStartingPoint = errors.New("walk: no globs or starting commits configured")

// Walker lazily iterates commits reachable from a Config's seed set, applying
// the since/until/max-count filters in the spec's fixed order.
type Walker struct {
	revwalk  *gitlib.RevWalk
	repo     *gitlib.Repository
	since    *time.Time
	until    *time.Time
	maxCount *int
	emitted  int
	done     bool
}

// New constructs a Walker from repo and cfg. The underlying revision walker
// is seeded immediately; iteration itself is lazy via Next.
func New(repo *gitlib.Repository, cfg Config) (*Walker, error) {
	if len(cfg.Globs) == 0 && len(cfg.StartHashes) == 0 {
		return nil, ErrNoStartingPoint
	}

	revwalk, err := repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	revwalk.Sorting(cfg.Sort)

	for _, g := range cfg.Globs {
		if pushErr := revwalk.PushGlob(g.Resolved()); pushErr != nil {
			revwalk.Free()

			return nil, pushErr
		}
	}

	for _, h := range cfg.StartHashes {
		if pushErr := revwalk.Push(h); pushErr != nil {
			revwalk.Free()

			return nil, pushErr
		}
	}

	return &Walker{
		revwalk:  revwalk,
		repo:     repo,
		since:    cfg.Since,
		until:    cfg.Until,
		maxCount: cfg.MaxCount,
	}, nil
}

// Next returns the next commit satisfying the filter chain, or io.EOF once
// the walk has terminated (either the underlying walker is exhausted, the
// since bound was crossed, or max-count was reached).
//
// Filter order, per spec: since-termination, then max-count-termination,
// then until-skip, then emit.
func (w *Walker) Next() (*gitlib.Commit, error) {
	for {
		if w.done {
			return nil, io.EOF
		}

		hash, err := w.revwalk.Next()
		if err != nil {
			w.done = true

			return nil, io.EOF
		}

		commit, err := w.repo.LookupCommit(context.Background(), hash)
		if err != nil {
			return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
		}

		commitTime := gitconv.CommitTime(commit)

		if w.since != nil && commitTime.Before(*w.since) {
			w.done = true

			return nil, io.EOF
		}

		if w.maxCount != nil && w.emitted >= *w.maxCount {
			w.done = true

			return nil, io.EOF
		}

		if w.until != nil && commitTime.After(*w.until) {
			continue
		}

		w.emitted++

		return commit, nil
	}
}

// Close releases the underlying revision walker.
func (w *Walker) Close() {
	if w.revwalk != nil {
		w.revwalk.Free()
		w.revwalk = nil
	}
}
