package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jlefever/cochange-tool/internal/deps"
	"github.com/jlefever/cochange-tool/internal/observability"
	"github.com/jlefever/cochange-tool/internal/store"
)

// newDepsCmd builds the "deps" subcommand tree: currently just "import",
// the dependency-endpoint ingestion supplemental feature (SPEC_FULL.md §4).
func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Work with dependency-endpoint edges alongside a mined store",
	}

	cmd.AddCommand(newDepsImportCmd())

	return cmd
}

type depsImportFlags struct {
	dbPath string
	ref    string
}

func newDepsImportCmd() *cobra.Command {
	var flags depsImportFlags

	cmd := &cobra.Command{
		Use:           "import <edges-file>",
		Short:         "Import dependency edges, resolving endpoints against a commit's presence rows",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDepsImport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.dbPath, "db", "", "store file to import into (required)")
	cmd.Flags().StringVar(&flags.ref, "ref", "", "ref name or sha1 the edges apply to (default: the store's sole ref)")

	if err := cmd.MarkFlagRequired("db"); err != nil {
		panic(err)
	}

	return cmd
}

func runDepsImport(cmd *cobra.Command, edgesPath string, flags depsImportFlags) error {
	logger := observability.NewLogger(observability.LoggerConfig{Writer: cmd.ErrOrStderr()})

	ctx := cmd.Context()

	st, err := store.Open(ctx, flags.dbPath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", flags.dbPath, err)
	}
	defer st.Close()

	commitID, sha1, err := st.ResolveCommitID(ctx, flags.ref)
	if err != nil {
		return fmt.Errorf("resolve commit: %w", err)
	}

	file, err := os.Open(edgesPath)
	if err != nil {
		return fmt.Errorf("open edges file %s: %w", edgesPath, err)
	}
	defer file.Close()

	edges, err := deps.ParseEdges(file)
	if err != nil {
		return fmt.Errorf("parse edges file %s: %w", edgesPath, err)
	}

	presenceLocs, err := st.QueryPresenceLocs(ctx, commitID)
	if err != nil {
		return fmt.Errorf("query presence locs for %s: %w", sha1, err)
	}

	locs := make(map[string][]deps.Loc, len(presenceLocs))

	for path, rows := range presenceLocs {
		converted := make([]deps.Loc, 0, len(rows))

		for _, r := range rows {
			converted = append(converted, deps.Loc{
				EntityID: r.EntityID,
				Name:     r.Name,
				FilePath: r.FilePath,
				Level:    r.Level,
				StartRow: r.StartRow,
				EndRow:   r.EndRow,
			})
		}

		locs[path] = converted
	}

	depLogger := logger.With("component", "deps")
	matched := deps.Match(locs, edges, depLogger)

	rows := make([]store.DepInsert, 0, len(matched))
	for _, m := range matched {
		rows = append(rows, store.DepInsert{
			CommitID:     commitID,
			FromEntityID: m.FromEntityID,
			ToEntityID:   m.ToEntityID,
			Kind:         m.Kind,
		})
	}

	if err := st.InsertDeps(ctx, rows); err != nil {
		return fmt.Errorf("insert deps: %w", err)
	}

	depLogger.Info("imported dependency edges", "commit", sha1, "read", len(edges), "matched", len(rows))

	return nil
}
