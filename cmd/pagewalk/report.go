package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagewalk/internal/statsink"
	"github.com/sarchlab/pagewalk/pipeline"
)

func newReportCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render a previously persisted run from its SQLite sink.",
		Run: func(cmd *cobra.Command, args []string) {
			runReport(dbPath, runID)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path written by a prior `run --db` invocation (required)")
	cmd.Flags().StringVar(&runID, "run", "", "run ID to render; defaults to the most recently persisted run")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(dbPath, runID string) {
	reader := statsink.OpenReader(dbPath)
	defer reader.Close()

	runs := reader.ListRuns()
	if len(runs) == 0 {
		log.Panicf("report: no runs persisted in %s", dbPath)
	}

	summary := runs[len(runs)-1]
	if runID != "" {
		found := false
		for _, r := range runs {
			if r.RunID == runID {
				summary = r
				found = true
				break
			}
		}
		if !found {
			log.Panicf("report: run %s not found in %s", runID, dbPath)
		}
	}

	printPersistedReport(os.Stdout, summary, reader.CacheStats(summary.RunID), reader.TranslationStats(summary.RunID))
}

// printReport renders a live, in-process Stats snapshot -- the full
// report, including the page-table and page-walk-cache breakdowns that
// are not persisted to the SQLite sink.
func printReport(w io.Writer, stats pipeline.Stats) {
	fmt.Fprintf(w, "references: %d\n\n", stats.References)

	fmt.Fprintln(w, "translation path:")
	dist := stats.TranslationPathDistribution()
	for _, name := range []string{"l1TlbHits", "l2TlbHits", "pmdCacheHits", "pudCacheHits", "pgdCacheHits", "fullWalks"} {
		fmt.Fprintf(w, "  %-14s %6.2f%%\n", name, dist[name]*100)
	}

	fmt.Fprintln(w, "\npage-walk cache:")
	for _, l := range stats.PWC {
		fmt.Fprintf(w, "  %-4s accesses=%-8d hits=%-8d hitRate=%.4f\n", l.Level, l.Accesses, l.Hits, l.HitRate())
	}

	fmt.Fprintln(w, "\npage table:")
	for _, l := range stats.PageTable {
		fmt.Fprintf(w, "  %-4s accesses=%-8d allocations=%-6d entries=%-8d fill=%.2f%%\n",
			l.Level, l.Accesses, l.Allocations, l.Entries, l.FillPercent)
	}

	fmt.Fprintln(w, "\ndata cache:")
	for _, l := range []struct {
		name string
		s    pipeline.CacheLevelStats
	}{{"l1", stats.L1}, {"l2", stats.L2}, {"l3", stats.L3}} {
		fmt.Fprintf(w, "  %-4s readAcc=%-8d readHits=%-8d writeAcc=%-8d writeHits=%-8d hitRate=%.4f writebacks=%d cold=%d capacity=%d conflict=%d\n",
			l.name, l.s.ReadAccesses, l.s.ReadHits, l.s.WriteAccesses, l.s.WriteHits,
			l.s.HitRate(), l.s.Writebacks, l.s.ColdMisses, l.s.CapacityMisses, l.s.ConflictMisses)
	}

	fmt.Fprintf(w, "\nmemory accesses: %d\n", stats.MemoryAccesses)
	fmt.Fprintf(w, "cycle cost: %d\n", stats.CycleCost())
}

// printPersistedReport renders the subset of a report the SQLite sink
// actually persists: the run summary, per-level cache stats, and the
// translation-path counters.
func printPersistedReport(w io.Writer, run statsink.RunSummary, cacheRows []statsink.CacheRow, trans statsink.TranslationRow) {
	fmt.Fprintf(w, "run: %s\n", run.RunID)
	fmt.Fprintf(w, "references: %d\n\n", run.References)

	fmt.Fprintln(w, "translation path:")
	total := trans.L1TLBHits + trans.L2TLBHits + trans.PMDCacheHits + trans.PUDCacheHits + trans.PGDCacheHits + trans.FullWalks
	for name, v := range map[string]uint64{
		"l1TlbHits": trans.L1TLBHits, "l2TlbHits": trans.L2TLBHits,
		"pmdCacheHits": trans.PMDCacheHits, "pudCacheHits": trans.PUDCacheHits,
		"pgdCacheHits": trans.PGDCacheHits, "fullWalks": trans.FullWalks,
	} {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(v) / float64(total)
		}
		fmt.Fprintf(w, "  %-14s %6.2f%%\n", name, pct)
	}

	fmt.Fprintln(w, "\ndata cache:")
	for _, c := range cacheRows {
		hitRate := 0.0
		acc := c.ReadAccesses + c.WriteAccesses
		if acc > 0 {
			hitRate = float64(c.ReadHits+c.WriteHits) / float64(acc)
		}
		fmt.Fprintf(w, "  %-4s readAcc=%-8d readHits=%-8d writeAcc=%-8d writeHits=%-8d hitRate=%.4f writebacks=%d\n",
			c.Level, c.ReadAccesses, c.ReadHits, c.WriteAccesses, c.WriteHits, hitRate, c.Writebacks)
	}

	fmt.Fprintf(w, "\nmemory accesses: %d\n", run.MemoryAccesses)
	fmt.Fprintf(w, "cycle cost: %d\n", run.CycleCost)
}
