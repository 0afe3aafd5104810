package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/pagewalk/internal/config"
	"github.com/sarchlab/pagewalk/internal/tracefile"
	"github.com/sarchlab/pagewalk/pipeline"
)

func newServeCmd() *cobra.Command {
	var (
		tracePath  string
		configPath string
		port       int
		open       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a trace and expose its report as JSON over HTTP.",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(tracePath, configPath, port, open)
		},
	}

	cmd.Flags().StringVar(&tracePath, "trace", "", "path to a 24-byte-record binary trace (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON configuration file (defaults built in if omitted)")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on; 0 picks a random free port")
	cmd.Flags().BoolVar(&open, "open", false, "open the report URL in the default browser once the run completes")
	cmd.MarkFlagRequired("trace")

	return cmd
}

func runServe(tracePath, configPath string, port int, open bool) {
	cfg := config.Default()
	if configPath != "" {
		cfg = config.Load(configPath)
	}

	traceFile, err := os.Open(tracePath)
	if err != nil {
		log.Panicf("serve: cannot open trace %s: %v", tracePath, err)
	}
	defer traceFile.Close()

	orch := config.NewBuilder(cfg).Build()
	refs := tracefile.ReadAll(traceFile)
	orch.Run(refs)
	stats := orch.Stats()

	r := mux.NewRouter()
	r.HandleFunc("/api/report", func(w http.ResponseWriter, _ *http.Request) {
		serveReportJSON(w, stats)
	})
	r.HandleFunc("/api/profile", serveCPUProfileJSON)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Panicf("serve: cannot listen: %v", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/report", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "serving report at %s\n", url)

	if open {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("serve: cannot open browser: %v", err)
		}
	}

	if err := http.Serve(listener, r); err != nil {
		log.Panicf("serve: %v", err)
	}
}

func serveReportJSON(w http.ResponseWriter, stats pipeline.Stats) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("serve: encode report: %v", err)
	}
}

// serveCPUProfileJSON captures one second of server CPU activity and
// returns it as a parsed, JSON-encoded pprof profile, rather than the raw
// gzip format `go tool pprof` expects, so a browser-side caller can render
// it directly.
func serveCPUProfileJSON(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		log.Printf("serve: start cpu profile: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		log.Printf("serve: parse cpu profile: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(prof); err != nil {
		log.Printf("serve: encode cpu profile: %v", err)
	}
}
