// Package config loads the simulator's configuration surface: one group
// of settings per subsystem, read from a JSON file and optionally
// overridden by environment variables sourced from a local .env file.
// Every constructor in the mem/vm and mem/dcache packages is fed a
// validated value straight out of this package; a malformed
// configuration panics here, at load time, never on the hot path.
package config

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"

	"github.com/joho/godotenv"
)

// Memory is the memory subsystem's configuration group.
type Memory struct {
	PhysMemGiB int `json:"physMemGiB"`
}

// TLB is the two-level TLB's configuration group.
type TLB struct {
	L1Size, L1Ways int
	L2Size, L2Ways int
}

// PWC is the three-level page-walk cache's configuration group.
type PWC struct {
	PGDSize, PGDWays int
	PUDSize, PUDWays int
	PMDSize, PMDWays int
}

// PWCTOC is the page-walk cache's optional table-of-contents extension.
type PWCTOC struct {
	Enabled bool `json:"tocEnabled"`
	Size    int  `json:"tocSize"`
}

// Cache is the three-level inclusive data cache's configuration group.
type Cache struct {
	L1Size, L1Ways, L1Line int
	L2Size, L2Ways, L2Line int
	L3Size, L3Ways, L3Line int
}

// PageTable is the four-level radix page table's configuration group.
type PageTable struct {
	PGDEntries, PUDEntries, PMDEntries, PTEEntries int
	PGDWidth, PUDWidth, PMDWidth, PTEWidth         int
	PTECachable                                    bool
}

// Config bundles every subsystem's configuration group. Its zero value is
// never valid; use Default or Load to obtain one, then Validate it.
type Config struct {
	Memory    Memory
	TLB       TLB
	PWC       PWC
	PWCTOC    PWCTOC
	Cache     Cache
	PageTable PageTable
}

// Default returns the illustrative defaults from this module's
// configuration surface.
func Default() Config {
	return Config{
		Memory: Memory{PhysMemGiB: 1},
		TLB:    TLB{L1Size: 64, L1Ways: 4, L2Size: 1024, L2Ways: 8},
		PWC: PWC{
			PGDSize: 16, PGDWays: 4,
			PUDSize: 16, PUDWays: 4,
			PMDSize: 16, PMDWays: 4,
		},
		PWCTOC: PWCTOC{Enabled: false, Size: 0},
		Cache: Cache{
			L1Size: 32 * 1024, L1Ways: 8, L1Line: 64,
			L2Size: 256 * 1024, L2Ways: 16, L2Line: 64,
			L3Size: 8 * 1024 * 1024, L3Ways: 16, L3Line: 64,
		},
		PageTable: PageTable{
			PGDEntries: 512, PUDEntries: 512, PMDEntries: 512, PTEEntries: 512,
			PGDWidth: 8, PUDWidth: 8, PMDWidth: 8, PTEWidth: 8,
			PTECachable: false,
		},
	}
}

// Load reads path as JSON over Default's values -- fields absent from the
// file keep their default -- then applies any PAGEWALK_-prefixed
// environment-variable overrides, sourcing a local .env file first if one
// is present in the working directory. A malformed file or an impossible
// configuration panics with a descriptive message; this package never
// returns a partially valid Config.
func Load(path string) Config {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		panic(fmt.Sprintf("config: cannot open %s: %v", path, err))
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("config: cannot decode %s: %v", path, err))
	}

	applyEnvOverrides(&cfg)
	cfg.Validate()
	return cfg
}

// applyEnvOverrides sources a local .env file, if present, then applies
// the handful of PAGEWALK_-prefixed overrides this module's ambient stack
// supports: PAGEWALK_PHYS_MEM_GIB and PAGEWALK_PTE_CACHABLE.
func applyEnvOverrides(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("PAGEWALK_PHYS_MEM_GIB"); v != "" {
		var gib int
		if _, err := fmt.Sscanf(v, "%d", &gib); err != nil {
			panic(fmt.Sprintf("config: PAGEWALK_PHYS_MEM_GIB=%q is not an integer", v))
		}
		cfg.Memory.PhysMemGiB = gib
	}

	if v := os.Getenv("PAGEWALK_PTE_CACHABLE"); v != "" {
		cfg.PageTable.PTECachable = v == "1" || v == "true"
	}
}

// Validate panics on any configuration violation from this module's
// configuration surface: power-of-two sizes, size%ways==0, entry widths
// restricted to 8/4/2/1 bytes, and the per-level index bits summing to the
// 36 bits of virtual page number this table spans.
func (c Config) Validate() {
	mustPow2("tlb.l1Size", c.TLB.L1Size)
	mustPow2("tlb.l2Size", c.TLB.L2Size)
	mustDivides("tlb.l1", c.TLB.L1Size, c.TLB.L1Ways)
	mustDivides("tlb.l2", c.TLB.L2Size, c.TLB.L2Ways)

	mustPow2("pwc.pgdSize", c.PWC.PGDSize)
	mustPow2("pwc.pudSize", c.PWC.PUDSize)
	mustPow2("pwc.pmdSize", c.PWC.PMDSize)
	mustDivides("pwc.pgd", c.PWC.PGDSize, c.PWC.PGDWays)
	mustDivides("pwc.pud", c.PWC.PUDSize, c.PWC.PUDWays)
	mustDivides("pwc.pmd", c.PWC.PMDSize, c.PWC.PMDWays)

	if c.PWCTOC.Enabled {
		mustPow2("pwcToc.tocSize", c.PWCTOC.Size)
	}

	mustCacheGroup("cache.l1", c.Cache.L1Size, c.Cache.L1Ways, c.Cache.L1Line)
	mustCacheGroup("cache.l2", c.Cache.L2Size, c.Cache.L2Ways, c.Cache.L2Line)
	mustCacheGroup("cache.l3", c.Cache.L3Size, c.Cache.L3Ways, c.Cache.L3Line)

	if c.Memory.PhysMemGiB < 1 {
		panic(fmt.Sprintf("config: memory.physMemGiB must be >= 1, got %d", c.Memory.PhysMemGiB))
	}

	indexBits := 0
	for _, n := range []int{
		c.PageTable.PGDEntries, c.PageTable.PUDEntries,
		c.PageTable.PMDEntries, c.PageTable.PTEEntries,
	} {
		mustPow2("pageTable.entries", n)
		indexBits += bits.TrailingZeros(uint(n))
	}
	if indexBits != 36 {
		panic(fmt.Sprintf("config: page table index bits sum to %d, want 36", indexBits))
	}

	for _, width := range []int{
		c.PageTable.PGDWidth, c.PageTable.PUDWidth,
		c.PageTable.PMDWidth, c.PageTable.PTEWidth,
	} {
		switch width {
		case 8, 4, 2, 1:
		default:
			panic(fmt.Sprintf("config: page table entry width %d is not one of 8/4/2/1", width))
		}
	}
}

func mustPow2(name string, n int) {
	if n <= 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("config: %s = %d is not a power of two", name, n))
	}
}

func mustDivides(name string, size, ways int) {
	if ways <= 0 || size%ways != 0 {
		panic(fmt.Sprintf("config: %s: size %d not evenly divisible by ways %d", name, size, ways))
	}
	sets := size / ways
	if sets&(sets-1) != 0 {
		panic(fmt.Sprintf("config: %s: size/ways = %d is not a power of two", name, sets))
	}
}

func mustCacheGroup(name string, totalBytes, ways, lineBytes int) {
	mustPow2(name+".line", lineBytes)
	if ways <= 0 || totalBytes%(ways*lineBytes) != 0 {
		panic(fmt.Sprintf("config: %s: totalBytes %d not divisible by ways*line (%d*%d)", name, totalBytes, ways, lineBytes))
	}
	sets := totalBytes / (ways * lineBytes)
	if sets&(sets-1) != 0 {
		panic(fmt.Sprintf("config: %s: numSets %d is not a power of two", name, sets))
	}
}
