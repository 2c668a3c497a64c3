// Command cochange mines a git repository into a queryable relational
// store of fine-grained co-change information: per-commit entity changes
// and per-reference-tip entity presence.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cochangeconfig "github.com/jlefever/cochange-tool/internal/config"
	"github.com/jlefever/cochange-tool/internal/dateparse"
	"github.com/jlefever/cochange-tool/internal/observability"
	"github.com/jlefever/cochange-tool/internal/pipeline"
	"github.com/jlefever/cochange-tool/internal/store"
	"github.com/jlefever/cochange-tool/internal/walk"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

type rootFlags struct {
	repoPath     string
	dbPath       string
	maxCount     int
	since        string
	until        string
	all          bool
	branches     string
	tags         string
	remotes      string
	glob         string
	suffix       string
	otlpEndpoint string
	stats        bool
	verbose      int
	quiet        int
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "cochange [refs...]",
		Short:         "Mine a git repository for fine-grained co-change information",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.repoPath, "repo", "C", ".", "locate repository at or above this directory")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "output store file (required)")
	cmd.Flags().IntVarP(&flags.maxCount, "max-count", "n", -1, "cap on commits processed")
	cmd.Flags().StringVar(&flags.since, "since", "", "lower time bound (date/duration)")
	cmd.Flags().StringVar(&flags.until, "until", "", "upper time bound (date/duration)")
	cmd.Flags().BoolVar(&flags.all, "all", false, "seed with every reference in the repository")
	cmd.Flags().StringVar(&flags.branches, "branches", "", "seed with refs/heads/<glob>")
	cmd.Flags().Lookup("branches").NoOptDefVal = "*"
	cmd.Flags().StringVar(&flags.tags, "tags", "", "seed with refs/tags/<glob>")
	cmd.Flags().Lookup("tags").NoOptDefVal = "*"
	cmd.Flags().StringVar(&flags.remotes, "remotes", "", "seed with refs/remotes/<glob>")
	cmd.Flags().Lookup("remotes").NoOptDefVal = "*"
	cmd.Flags().StringVar(&flags.glob, "glob", "", "seed with refs/<glob>")
	cmd.Flags().StringVar(&flags.suffix, "suffix", "", "case-insensitive path-suffix filter (default: grammar's native extension)")
	cmd.Flags().StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "when set, record run metrics in an in-process Prometheus exporter (the address is not contacted and the metrics are not served)")
	cmd.Flags().BoolVar(&flags.stats, "stats", false, "print a run summary after completion")
	cmd.Flags().CountVarP(&flags.verbose, "verbose", "v", "increase log verbosity")
	cmd.Flags().CountVarP(&flags.quiet, "quiet", "q", "decrease log verbosity")

	if err := cmd.MarkFlagRequired("db"); err != nil {
		panic(err)
	}

	cmd.AddCommand(newDepsCmd())

	return cmd
}

func runRoot(cmd *cobra.Command, refNames []string, flags rootFlags) error {
	cfg, err := cochangeconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	suffix := flags.suffix
	if suffix == "" {
		suffix = cfg.Suffix
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Verbosity: verbosity(flags.verbose, flags.quiet),
		JSON:      cfg.LogJSON,
		Writer:    cmd.ErrOrStderr(),
	})

	walkCfg, err := buildWalkConfig(flags)
	if err != nil {
		return err
	}

	repo, err := gitlib.OpenRepository(flags.repoPath)
	if err != nil {
		return fmt.Errorf("open repository at %s: %w", flags.repoPath, err)
	}
	defer repo.Free()

	if err := validateRefs(repo, refNames); err != nil {
		return err
	}

	ctx := cmd.Context()

	st, err := store.Open(ctx, flags.dbPath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", flags.dbPath, err)
	}
	defer st.Close()

	otlpEndpoint := flags.otlpEndpoint
	if otlpEndpoint == "" {
		otlpEndpoint = cfg.OTLPEndpoint
	}

	metrics, err := buildMetrics(ctx, otlpEndpoint)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		RefNames: refNames,
		Walk:     walkCfg,
		Suffix:   suffix,
		Grammar:  "java",
	}

	result, err := pipeline.Run(ctx, repo, st, opts, logger, metrics)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	if flags.stats {
		printStats(cmd, result)
	}

	return nil
}

// validateRefs rejects unknown reference names before the pipeline starts,
// the spec §7 "user-input validation" error class.
func validateRefs(repo *gitlib.Repository, refNames []string) error {
	for _, name := range refNames {
		if _, err := repo.ResolveReference(name); err != nil {
			return fmt.Errorf("unknown reference %q: %w", name, err)
		}
	}

	return nil
}

func buildWalkConfig(flags rootFlags) (walk.Config, error) {
	now := time.Now().UTC()

	cfg := walk.Config{Sort: pipeline.DefaultSort()}

	if flags.all {
		cfg.Globs = append(cfg.Globs, walk.Glob{Kind: walk.KindAll})
	}

	if flags.branches != "" {
		cfg.Globs = append(cfg.Globs, walk.Glob{Kind: walk.KindBranches, Pattern: trimStar(flags.branches)})
	}

	if flags.tags != "" {
		cfg.Globs = append(cfg.Globs, walk.Glob{Kind: walk.KindTags, Pattern: trimStar(flags.tags)})
	}

	if flags.remotes != "" {
		cfg.Globs = append(cfg.Globs, walk.Glob{Kind: walk.KindRemotes, Pattern: trimStar(flags.remotes)})
	}

	if flags.glob != "" {
		cfg.Globs = append(cfg.Globs, walk.Glob{Kind: walk.KindAll, Pattern: flags.glob})
	}

	if flags.maxCount >= 0 {
		cfg.MaxCount = &flags.maxCount
	}

	if flags.since != "" {
		since, err := dateparse.Parse(flags.since, now)
		if err != nil {
			return walk.Config{}, fmt.Errorf("invalid --since: %w", err)
		}

		cfg.Since = &since
	}

	if flags.until != "" {
		until, err := dateparse.Parse(flags.until, now)
		if err != nil {
			return walk.Config{}, fmt.Errorf("invalid --until: %w", err)
		}

		cfg.Until = &until
	}

	return cfg, nil
}

// trimStar normalizes the bare flag (NoOptDefVal "*") back to an empty
// pattern, so Glob.Resolved applies its own "*" default uniformly.
func trimStar(pattern string) string {
	if pattern == "*" {
		return ""
	}

	return pattern
}

func verbosity(verbose, quiet int) observability.Verbosity {
	switch {
	case verbose > 0:
		return observability.VerbosityVerbose
	case quiet >= 2: //nolint:mnd // two -q's is the documented "silent" threshold
		return observability.VerbositySilent
	case quiet == 1:
		return observability.VerbosityQuiet
	default:
		return observability.VerbosityNormal
	}
}

func buildMetrics(ctx context.Context, otlpEndpoint string) (*observability.Metrics, error) {
	if otlpEndpoint == "" {
		metrics, err := observability.NewMetrics(observability.NewNoopProvider().Meter("cochange"))
		if err != nil {
			return nil, fmt.Errorf("build no-op metrics: %w", err)
		}

		return metrics, nil
	}

	provider, _, err := observability.NewPrometheusProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("build metrics provider: %w", err)
	}

	metrics, err := observability.NewMetrics(provider.Meter("cochange"))
	if err != nil {
		return nil, fmt.Errorf("build metrics: %w", err)
	}

	return metrics, nil
}

func printStats(cmd *cobra.Command, result pipeline.Result) {
	bold := color.New(color.Bold)
	bold.Fprintln(cmd.OutOrStdout(), "cochange run summary")

	renderStatsTable(cmd, result)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
