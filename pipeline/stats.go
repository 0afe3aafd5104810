package pipeline

import (
	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/sarchlab/pagewalk/mem/vm/pwc"
	"github.com/sarchlab/pagewalk/mem/vm/walk"
)

// PWCLevelStats is the report-facing snapshot of one page-walk cache
// level's sub-slot accesses and hits.
type PWCLevelStats struct {
	Level         string
	Accesses, Hits uint64
}

func (s PWCLevelStats) HitRate() float64 {
	if s.Accesses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Accesses)
}

func pwcLevelStats(name string, l *pwc.Level) PWCLevelStats {
	return PWCLevelStats{Level: name, Accesses: l.Accesses, Hits: l.Hits}
}

// CacheLevelStats is the report-facing snapshot of one data-cache level:
// demand accesses/hits split by read/write, the translation-path tally,
// writebacks, and the advisory miss-classification histogram.
type CacheLevelStats struct {
	ReadAccesses, ReadHits   uint64
	WriteAccesses, WriteHits uint64
	TransAccesses, TransHits uint64
	Writebacks               uint64

	ColdMisses, CapacityMisses, ConflictMisses uint64
}

// HitRate is ReadHits+WriteHits over ReadAccesses+WriteAccesses, or 0 with
// no demand accesses yet.
func (c CacheLevelStats) HitRate() float64 {
	acc := c.ReadAccesses + c.WriteAccesses
	if acc == 0 {
		return 0
	}
	return float64(c.ReadHits+c.WriteHits) / float64(acc)
}

func levelStats(l *dcache.Level) CacheLevelStats {
	return CacheLevelStats{
		ReadAccesses: l.ReadAccesses, ReadHits: l.ReadHits,
		WriteAccesses: l.WriteAccesses, WriteHits: l.WriteHits,
		TransAccesses: l.TransAccesses, TransHits: l.TransHits,
		Writebacks: l.Writebacks(),
		ColdMisses: l.ColdMisses, CapacityMisses: l.CapacityMisses, ConflictMisses: l.ConflictMisses,
	}
}

// Stats is the full report model for a run: the reference count, the
// translation-path outcome distribution, per-level data-cache stats, and
// the shared main-memory access count.
type Stats struct {
	References     uint64
	Walk           walk.Stats
	L1, L2, L3     CacheLevelStats
	MemoryAccesses uint64
	PageTable      [4]PageTableLevelStats
	PWC            [3]PWCLevelStats
}

// CycleCost computes the synthetic cost formula from this module's output
// report: L1 accesses cost 1 cycle each, L2 4, L3 10, and a main-memory
// access 100.
func (s Stats) CycleCost() uint64 {
	l1acc := s.L1.ReadAccesses + s.L1.WriteAccesses + s.L1.TransAccesses
	l2acc := s.L2.ReadAccesses + s.L2.WriteAccesses + s.L2.TransAccesses
	l3acc := s.L3.ReadAccesses + s.L3.WriteAccesses + s.L3.TransAccesses
	return l1acc*1 + l2acc*4 + l3acc*10 + s.MemoryAccesses*100
}

// TranslationPathDistribution returns the six translation-path outcome
// fractions, summing to 1.0 (100%) for any non-empty run.
func (s Stats) TranslationPathDistribution() map[string]float64 {
	total := s.Walk.Total()
	dist := map[string]float64{
		"l1TlbHits":    0,
		"l2TlbHits":    0,
		"pmdCacheHits": 0,
		"pudCacheHits": 0,
		"pgdCacheHits": 0,
		"fullWalks":    0,
	}
	if total == 0 {
		return dist
	}

	dist["l1TlbHits"] = float64(s.Walk.L1TLBHits) / float64(total)
	dist["l2TlbHits"] = float64(s.Walk.L2TLBHits) / float64(total)
	dist["pmdCacheHits"] = float64(s.Walk.PMDCacheHits) / float64(total)
	dist["pudCacheHits"] = float64(s.Walk.PUDCacheHits) / float64(total)
	dist["pgdCacheHits"] = float64(s.Walk.PGDCacheHits) / float64(total)
	dist["fullWalks"] = float64(s.Walk.FullWalks) / float64(total)
	return dist
}
