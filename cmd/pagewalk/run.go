package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/shirou/gopsutil/mem"
	"github.com/spf13/cobra"

	"github.com/sarchlab/pagewalk/internal/config"
	"github.com/sarchlab/pagewalk/internal/runid"
	"github.com/sarchlab/pagewalk/internal/statsink"
	"github.com/sarchlab/pagewalk/internal/tracefile"
)

func newRunCmd() *cobra.Command {
	var (
		tracePath  string
		configPath string
		dbPath     string
		cpuprofile string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a trace through the pipeline and print its report.",
		Run: func(cmd *cobra.Command, args []string) {
			runRun(tracePath, configPath, dbPath, cpuprofile, verbose)
		},
	}

	cmd.Flags().StringVar(&tracePath, "trace", "", "path to a 24-byte-record binary trace (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON configuration file (defaults built in if omitted)")
	cmd.Flags().StringVar(&dbPath, "db", "", "optional SQLite path to persist this run's statistics")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "optional path to write a CPU profile of the run")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "report host memory available against the configured budget before running")
	cmd.MarkFlagRequired("trace")

	return cmd
}

func runRun(tracePath, configPath, dbPath, cpuprofile string, verbose bool) {
	cfg := config.Default()
	if configPath != "" {
		cfg = config.Load(configPath)
	} else {
		cfg.Validate()
	}

	if verbose {
		reportHostMemory(cfg)
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Panicf("run: cannot create cpu profile %s: %v", cpuprofile, err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Panicf("run: cannot start cpu profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	traceFile, err := os.Open(tracePath)
	if err != nil {
		log.Panicf("run: cannot open trace %s: %v", tracePath, err)
	}
	defer traceFile.Close()

	orch := config.NewBuilder(cfg).Build()
	reader := tracefile.New(traceFile)

	for {
		ref, done := reader.Next()
		if done {
			break
		}
		orch.Process(ref)
	}

	stats := orch.Stats()
	printReport(os.Stdout, stats)

	if dbPath != "" {
		id := runid.New()
		sink := statsink.Open(dbPath)
		sink.Write(id, stats)
		sink.Close()
		fmt.Printf("\npersisted run %s to %s\n", id, dbPath)
	}
}

func reportHostMemory(cfg config.Config) {
	v, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("run: cannot read host memory: %v", err)
		return
	}

	budgetBytes := uint64(cfg.Memory.PhysMemGiB) << 30
	fmt.Fprintf(os.Stderr, "host memory available: %d MiB, configured budget: %d MiB\n",
		v.Available/(1<<20), budgetBytes/(1<<20))
	if v.Available < budgetBytes {
		fmt.Fprintf(os.Stderr, "warning: configured physMemGiB exceeds host memory available\n")
	}
}
