package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jlefever/cochange-tool/internal/pipeline"
)

// renderStatsTable prints result as a small summary table on stdout, the
// SPEC_FULL.md §4 "--stats run summary" supplemental feature.
func renderStatsTable(cmd *cobra.Command, result pipeline.Result) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(cmd.OutOrStdout())
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"metric", "value"})
	tbl.AppendRows([]table.Row{
		{"commits walked", result.CommitsWalked},
		{"files diffed", result.FilesDiffed},
		{"changes emitted", result.ChangesEmitted},
		{"presence rows emitted", result.PresenceEmitted},
		{"parse cache hits", result.CacheHits},
		{"parse cache misses", result.CacheMisses},
		{"parse cache hit rate", fmt.Sprintf("%.1f%%", cacheHitRate(result))},
	})
	tbl.Render()
}

func cacheHitRate(result pipeline.Result) float64 {
	total := result.CacheHits + result.CacheMisses
	if total == 0 {
		return 0
	}

	const percent = 100

	return float64(result.CacheHits) / float64(total) * percent
}
