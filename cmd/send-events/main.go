package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/cull/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumEvents     = 10000
	defaultProjects      = 3
	defaultIssues        = 10
	defaultMaxEventCount = 1000
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultSettleTime    = 10 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to generate and submit")
		projects  = flag.Int("projects", defaultProjects, "Number of projects to spread events over")
		issues    = flag.Int("issues", defaultIssues, "Number of issues per project")
		maxEvents = flag.Int64("max", defaultMaxEventCount, "Retention quota for the created projects")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", defaultSettleTime, "How long to wait for digestion and eviction")
		logFile   = flag.String("log", "", "Log file for run output (default: loadgen_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	// Setup logging
	if err := loadgen.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create run configuration
	config := &loadgen.Config{
		BaseURL:       *baseURL,
		NumEvents:     *numEvents,
		Projects:      *projects,
		Issues:        *issues,
		MaxEventCount: *maxEvents,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTime:    *settle,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	// Run the load generator
	if err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		return
	}
}
