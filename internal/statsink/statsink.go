// Package statsink persists a completed run's statistics to SQLite so the
// report subcommand can re-render a prior run without re-executing its
// trace. It mirrors the reference codebase's SQLite trace-writer: a
// buffered sink registered with atexit to flush and close automatically,
// backed by github.com/mattn/go-sqlite3 through database/sql.
package statsink

import (
	"database/sql"
	"fmt"

	// Registers the sqlite3 driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pagewalk/pipeline"
)

// Sink writes run statistics to a SQLite database at path, creating the
// schema on first use.
type Sink struct {
	db *sql.DB

	runStmt           *sql.Stmt
	cacheStmt         *sql.Stmt
	translationStmt   *sql.Stmt
}

// Open creates (or reopens) the SQLite database at path and registers its
// Close to run at process exit.
func Open(path string) *Sink {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(fmt.Sprintf("statsink: cannot open %s: %v", path, err))
	}

	s := &Sink{db: db}
	s.createSchema()
	s.prepareStatements()

	atexit.Register(func() { s.Close() })

	return s
}

func (s *Sink) createSchema() {
	s.mustExec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			references_ INTEGER NOT NULL,
			memory_accesses INTEGER NOT NULL,
			cycle_cost  INTEGER NOT NULL
		);
	`)

	s.mustExec(`
		CREATE TABLE IF NOT EXISTS cachestats (
			run_id         TEXT NOT NULL,
			level          TEXT NOT NULL,
			read_accesses  INTEGER NOT NULL,
			read_hits      INTEGER NOT NULL,
			write_accesses INTEGER NOT NULL,
			write_hits     INTEGER NOT NULL,
			trans_accesses INTEGER NOT NULL,
			trans_hits     INTEGER NOT NULL,
			writebacks     INTEGER NOT NULL,
			cold_misses     INTEGER NOT NULL,
			capacity_misses INTEGER NOT NULL,
			conflict_misses INTEGER NOT NULL
		);
	`)

	s.mustExec(`
		CREATE TABLE IF NOT EXISTS translationstats (
			run_id              TEXT NOT NULL,
			l1_tlb_hits         INTEGER NOT NULL,
			l2_tlb_hits         INTEGER NOT NULL,
			pmd_cache_hits      INTEGER NOT NULL,
			pud_cache_hits      INTEGER NOT NULL,
			pgd_cache_hits      INTEGER NOT NULL,
			full_walks          INTEGER NOT NULL,
			upper_entry_hits    INTEGER NOT NULL,
			upper_entry_misses  INTEGER NOT NULL,
			pte_entry_hits      INTEGER NOT NULL,
			pte_entry_misses    INTEGER NOT NULL
		);
	`)
}

func (s *Sink) prepareStatements() {
	var err error

	s.runStmt, err = s.db.Prepare(
		`INSERT INTO runs (run_id, references_, memory_accesses, cycle_cost) VALUES (?, ?, ?, ?)`)
	if err != nil {
		panic(fmt.Sprintf("statsink: prepare runs statement: %v", err))
	}

	s.cacheStmt, err = s.db.Prepare(`
		INSERT INTO cachestats (
			run_id, level, read_accesses, read_hits, write_accesses, write_hits,
			trans_accesses, trans_hits, writebacks, cold_misses, capacity_misses, conflict_misses
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		panic(fmt.Sprintf("statsink: prepare cachestats statement: %v", err))
	}

	s.translationStmt, err = s.db.Prepare(`
		INSERT INTO translationstats (
			run_id, l1_tlb_hits, l2_tlb_hits, pmd_cache_hits, pud_cache_hits, pgd_cache_hits,
			full_walks, upper_entry_hits, upper_entry_misses, pte_entry_hits, pte_entry_misses
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		panic(fmt.Sprintf("statsink: prepare translationstats statement: %v", err))
	}
}

// Write persists one completed run's statistics under runID, in a single
// transaction across all three tables.
func (s *Sink) Write(runID string, stats pipeline.Stats) {
	tx, err := s.db.Begin()
	if err != nil {
		panic(fmt.Sprintf("statsink: begin transaction: %v", err))
	}

	if _, err := tx.Stmt(s.runStmt).Exec(
		runID, stats.References, stats.MemoryAccesses, stats.CycleCost(),
	); err != nil {
		tx.Rollback()
		panic(fmt.Sprintf("statsink: insert run: %v", err))
	}

	for _, lvl := range []struct {
		name string
		s    pipeline.CacheLevelStats
	}{
		{"l1", stats.L1}, {"l2", stats.L2}, {"l3", stats.L3},
	} {
		if _, err := tx.Stmt(s.cacheStmt).Exec(
			runID, lvl.name,
			lvl.s.ReadAccesses, lvl.s.ReadHits,
			lvl.s.WriteAccesses, lvl.s.WriteHits,
			lvl.s.TransAccesses, lvl.s.TransHits,
			lvl.s.Writebacks,
			lvl.s.ColdMisses, lvl.s.CapacityMisses, lvl.s.ConflictMisses,
		); err != nil {
			tx.Rollback()
			panic(fmt.Sprintf("statsink: insert cachestats %s: %v", lvl.name, err))
		}
	}

	w := stats.Walk
	if _, err := tx.Stmt(s.translationStmt).Exec(
		runID, w.L1TLBHits, w.L2TLBHits, w.PMDCacheHits, w.PUDCacheHits, w.PGDCacheHits,
		w.FullWalks, w.UpperEntryHits, w.UpperEntryMisses, w.PTEEntryHits, w.PTEEntryMisses,
	); err != nil {
		tx.Rollback()
		panic(fmt.Sprintf("statsink: insert translationstats: %v", err))
	}

	if err := tx.Commit(); err != nil {
		panic(fmt.Sprintf("statsink: commit: %v", err))
	}
}

// Close releases the underlying database connection. Safe to call more
// than once; the atexit-registered call is a convenience, not a
// requirement for callers that already close explicitly.
func (s *Sink) Close() {
	if s.db == nil {
		return
	}
	s.db.Close()
	s.db = nil
}

func (s *Sink) mustExec(query string) {
	if _, err := s.db.Exec(query); err != nil {
		panic(fmt.Sprintf("statsink: exec %q: %v", query, err))
	}
}
