package statsink

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// RunSummary is one row from the runs table, as listed by the report
// subcommand.
type RunSummary struct {
	RunID          string
	References     uint64
	MemoryAccesses uint64
	CycleCost      uint64
}

// CacheRow is one level's row from the cachestats table.
type CacheRow struct {
	Level                                       string
	ReadAccesses, ReadHits                      uint64
	WriteAccesses, WriteHits                     uint64
	TransAccesses, TransHits                    uint64
	Writebacks                                  uint64
	ColdMisses, CapacityMisses, ConflictMisses  uint64
}

// TranslationRow is the translationstats row for one run.
type TranslationRow struct {
	L1TLBHits, L2TLBHits                   uint64
	PMDCacheHits, PUDCacheHits, PGDCacheHits uint64
	FullWalks                              uint64
	UpperEntryHits, UpperEntryMisses       uint64
	PTEEntryHits, PTEEntryMisses           uint64
}

// Reader opens an existing statsink database read-only for the report
// subcommand.
type Reader struct {
	db *sql.DB
}

// OpenReader opens path for reading previously persisted runs.
func OpenReader(path string) *Reader {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(fmt.Sprintf("statsink: cannot open %s: %v", path, err))
	}
	return &Reader{db: db}
}

// Close releases the underlying database connection.
func (r *Reader) Close() { r.db.Close() }

// ListRuns returns every persisted run, most recently inserted last.
func (r *Reader) ListRuns() []RunSummary {
	rows, err := r.db.Query(`SELECT run_id, references_, memory_accesses, cycle_cost FROM runs`)
	if err != nil {
		panic(fmt.Sprintf("statsink: list runs: %v", err))
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.References, &s.MemoryAccesses, &s.CycleCost); err != nil {
			panic(fmt.Sprintf("statsink: scan run: %v", err))
		}
		runs = append(runs, s)
	}
	return runs
}

// CacheStats returns the three per-level cachestats rows for runID.
func (r *Reader) CacheStats(runID string) []CacheRow {
	rows, err := r.db.Query(`
		SELECT level, read_accesses, read_hits, write_accesses, write_hits,
			trans_accesses, trans_hits, writebacks, cold_misses, capacity_misses, conflict_misses
		FROM cachestats WHERE run_id = ?`, runID)
	if err != nil {
		panic(fmt.Sprintf("statsink: query cachestats: %v", err))
	}
	defer rows.Close()

	var out []CacheRow
	for rows.Next() {
		var c CacheRow
		if err := rows.Scan(
			&c.Level, &c.ReadAccesses, &c.ReadHits, &c.WriteAccesses, &c.WriteHits,
			&c.TransAccesses, &c.TransHits, &c.Writebacks,
			&c.ColdMisses, &c.CapacityMisses, &c.ConflictMisses,
		); err != nil {
			panic(fmt.Sprintf("statsink: scan cachestats: %v", err))
		}
		out = append(out, c)
	}
	return out
}

// TranslationStats returns the translationstats row for runID.
func (r *Reader) TranslationStats(runID string) TranslationRow {
	var t TranslationRow
	row := r.db.QueryRow(`
		SELECT l1_tlb_hits, l2_tlb_hits, pmd_cache_hits, pud_cache_hits, pgd_cache_hits,
			full_walks, upper_entry_hits, upper_entry_misses, pte_entry_hits, pte_entry_misses
		FROM translationstats WHERE run_id = ?`, runID)

	if err := row.Scan(
		&t.L1TLBHits, &t.L2TLBHits, &t.PMDCacheHits, &t.PUDCacheHits, &t.PGDCacheHits,
		&t.FullWalks, &t.UpperEntryHits, &t.UpperEntryMisses, &t.PTEEntryHits, &t.PTEEntryMisses,
	); err != nil {
		panic(fmt.Sprintf("statsink: scan translationstats for run %s: %v", runID, err))
	}
	return t
}
