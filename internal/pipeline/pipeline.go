// Package pipeline wires the mining pipeline's components into the single
// sequential run the CLI drives: walker, diff collector, change attributor
// and presence sweep feeding a shared parse cache, accumulated into virtual
// tables and flushed to the store in one transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/jlefever/cochange-tool/internal/attribute"
	"github.com/jlefever/cochange-tool/internal/diffcollect"
	"github.com/jlefever/cochange-tool/internal/gitconv"
	"github.com/jlefever/cochange-tool/internal/model"
	"github.com/jlefever/cochange-tool/internal/observability"
	"github.com/jlefever/cochange-tool/internal/parse"
	"github.com/jlefever/cochange-tool/internal/parsecache"
	"github.com/jlefever/cochange-tool/internal/presence"
	"github.com/jlefever/cochange-tool/internal/store"
	"github.com/jlefever/cochange-tool/internal/vtab"
	"github.com/jlefever/cochange-tool/internal/walk"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// Options configures one pipeline run. RefNames are both seeded into the
// walker (resolved to start oids) and swept for presence, matching spec
// §6's "positional reference names" contract.
type Options struct {
	RefNames []string
	Walk     walk.Config
	Suffix   string
	Grammar  string
}

// Result summarizes one completed run, enough to populate the CLI's
// optional --stats table.
type Result struct {
	CommitsWalked   int
	FilesDiffed     int
	ChangesEmitted  int
	PresenceEmitted int
	CacheHits       int64
	CacheMisses     int64
}

// Run executes one full mining pass against repo and flushes the result
// into st. It never runs concurrently internally: the pipeline is
// single-threaded and sequential by design.
func Run(
	ctx context.Context,
	repo *gitlib.Repository,
	st *store.Store,
	opts Options,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parser, err := parse.NewDefault(opts.Grammar, logger.With("component", "parse"))
	if err != nil {
		return Result{}, fmt.Errorf("load parser grammar %s: %w", opts.Grammar, err)
	}

	cache := parsecache.New()

	tables := store.Tables{
		Entities:      vtab.NewEntityTable(),
		Commits:       vtab.NewCommitTable(),
		Refs:          vtab.NewRefTable(),
		Changes:       vtab.NewChangeTable(),
		Presence:      vtab.NewPresenceTable(),
		Reachability:  vtab.NewReachabilityTable(),
		ChangedCommit: make(map[int]bool),
		PresentCommit: make(map[int]bool),
	}

	var result Result

	if err := walkAndAttribute(ctx, repo, parser, cache, tables, opts, logger, metrics, &result); err != nil {
		return Result{}, err
	}

	if err := sweepTips(ctx, repo, parser, cache, tables, opts, logger, &result); err != nil {
		return Result{}, err
	}

	stats := cache.Stats()
	result.CacheHits = stats.Hits
	result.CacheMisses = stats.Misses

	if metrics != nil {
		metrics.CacheHits.Add(ctx, stats.Hits)
		metrics.CacheMisses.Add(ctx, stats.Misses)
	}

	if err := st.Flush(ctx, tables); err != nil {
		return Result{}, fmt.Errorf("flush store: %w", err)
	}

	return result, nil
}

func walkAndAttribute(
	ctx context.Context,
	repo *gitlib.Repository,
	parser *parse.Parser,
	cache *parsecache.Cache,
	tables store.Tables,
	opts Options,
	logger *slog.Logger,
	metrics *observability.Metrics,
	result *Result,
) error {
	cfg := opts.Walk
	cfg.StartHashes = append(append([]gitlib.Hash{}, cfg.StartHashes...), resolveSeeds(repo, opts.RefNames, logger)...)

	if len(cfg.Globs) == 0 && len(cfg.StartHashes) == 0 {
		return fmt.Errorf("walk commits: %w", walk.ErrNoStartingPoint)
	}

	walker, err := walk.New(repo, cfg)
	if err != nil {
		return fmt.Errorf("create walker: %w", err)
	}
	defer walker.Close()

	diffLogger := logger.With("component", "diff")
	attrLogger := logger.With("component", "attribute")

	for {
		commit, nextErr := walker.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return fmt.Errorf("walk commit: %w", nextErr)
		}

		if err := processCommit(ctx, repo, parser, cache, tables, commit, opts.Suffix, diffLogger, attrLogger, result); err != nil {
			return err
		}

		if metrics != nil {
			metrics.CommitsWalked.Add(ctx, 1)

			if commit.NumParents() <= 1 {
				metrics.DiffsCollected.Add(ctx, 1)
			}
		}

		result.CommitsWalked++
	}

	return nil
}

func processCommit(
	ctx context.Context,
	repo *gitlib.Repository,
	parser *parse.Parser,
	cache *parsecache.Cache,
	tables store.Tables,
	commit *gitlib.Commit,
	suffix string,
	diffLogger *slog.Logger,
	attrLogger *slog.Logger,
	result *Result,
) error {
	isMerge := commit.NumParents() > 1

	commitID := vtab.InsertCommit(tables.Commits, model.Commit{
		SHA1:       commit.Hash().String(),
		IsMerge:    isMerge,
		AuthorTime: gitconv.AuthorTime(commit),
		CommitTime: gitconv.CommitTime(commit),
	})

	if isMerge {
		diffLogger.Debug("merge commit skipped", "sha1", commit.Hash().String())

		return nil
	}

	diffedFiles, err := diffcollect.Collect(repo, commit, suffix, diffLogger)
	if err != nil {
		return fmt.Errorf("collect diff for %s: %w", commit.Hash(), err)
	}

	result.FilesDiffed += len(diffedFiles)

	for _, df := range diffedFiles {
		changes, attrErr := attribute.Attribute(ctx, repo, parser, cache, df, attrLogger)
		if attrErr != nil {
			return fmt.Errorf("attribute %s @ %s: %w", df.Path, commit.Hash(), attrErr)
		}

		for _, c := range changes {
			vtab.InsertChange(tables.Changes, tables.Entities, commitID, c)
			result.ChangesEmitted++
		}

		if len(changes) > 0 {
			tables.ChangedCommit[commitID] = true
		}
	}

	return nil
}

func sweepTips(
	ctx context.Context,
	repo *gitlib.Repository,
	parser *parse.Parser,
	cache *parsecache.Cache,
	tables store.Tables,
	opts Options,
	logger *slog.Logger,
	result *Result,
) error {
	presenceLogger := logger.With("component", "presence")

	for _, name := range opts.RefNames {
		hash, err := repo.ResolveReference(name)
		if err != nil {
			return fmt.Errorf("resolve reference %q: %w", name, err)
		}

		tip, err := repo.LookupCommit(ctx, hash)
		if err != nil {
			return fmt.Errorf("lookup reference tip %q: %w", name, err)
		}

		commitID := vtab.InsertCommit(tables.Commits, model.Commit{
			SHA1:       tip.Hash().String(),
			IsMerge:    tip.NumParents() > 1,
			AuthorTime: gitconv.AuthorTime(tip),
			CommitTime: gitconv.CommitTime(tip),
		})

		tables.Refs.Insert(name, vtab.RefRow{CommitID: commitID})

		located, err := presence.Sweep(ctx, repo, parser, cache, tip, opts.Suffix)
		if err != nil {
			return fmt.Errorf("presence sweep %q: %w", name, err)
		}

		for _, le := range located {
			vtab.InsertPresence(tables.Presence, tables.Entities, commitID, le)
			result.PresenceEmitted++
		}

		if len(located) > 0 {
			tables.PresentCommit[commitID] = true
		}

		presenceLogger.Debug("swept reference tip", "ref", name, "entities", len(located))
	}

	return nil
}

// resolveSeeds resolves each name to a starting hash, logging and skipping
// any name that fails to resolve. Unknown reference names are a CLI-level
// validation error and must never reach here unvalidated; see
// cmd/cochange's pre-flight resolution pass.
func resolveSeeds(repo *gitlib.Repository, names []string, logger *slog.Logger) []gitlib.Hash {
	hashes := make([]gitlib.Hash, 0, len(names))

	for _, name := range names {
		hash, err := repo.ResolveReference(name)
		if err != nil {
			logger.Warn("skipping unresolved reference as walk seed", "ref", name, "error", err)

			continue
		}

		hashes = append(hashes, hash)
	}

	return hashes
}

// DefaultSort is the walker sort mode the CLI uses: time order, so --since
// termination is valid (spec's rationale for terminating rather than
// skipping once a commit precedes --since).
func DefaultSort() git2go.SortType {
	return git2go.SortTime
}
