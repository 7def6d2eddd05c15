// Package cmd implements the lumen command line interface. Following the
// pattern of standard Go CLI tools, all application logic lives here and
// main.go stays a minimal entry point.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumenreads/lumen/internal/app"
	"github.com/lumenreads/lumen/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the lumen CLI.
func Execute() error {
	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "version", "--version", "-v":
		return printVersionInfo()
	case "help", "--help", "-h":
		printHelp()
		return nil
	case "ask":
		return withRuntime(func(ctx context.Context, rt *app.Runtime) error {
			return runAsk(ctx, rt, args)
		})
	case "ingest":
		return withRuntime(func(ctx context.Context, rt *app.Runtime) error {
			return runIngest(ctx, rt, args)
		})
	case "search":
		return withRuntime(func(ctx context.Context, rt *app.Runtime) error {
			return runSearch(ctx, rt, args)
		})
	case "factcheck":
		return withRuntime(func(ctx context.Context, rt *app.Runtime) error {
			return runFactCheck(ctx, rt, args)
		})
	case "summarize":
		return withRuntime(func(ctx context.Context, rt *app.Runtime) error {
			return runSummarize(ctx, rt, args)
		})
	case "status":
		return withRuntime(runStatus)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printHelp()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

// withRuntime loads configuration, wires the engine and runs fn with
// background tasks started.
func withRuntime(fn func(context.Context, *app.Runtime) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			rt.Logger.Warn("runtime close error", "error", closeErr)
		}
	}()

	rt.Start(ctx)
	return fn(ctx, rt)
}

func printVersionInfo() error {
	fmt.Printf("lumen v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("lumen - local-first knowledge retrieval and generation engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lumen ask <question>          Answer a question from stored knowledge")
	fmt.Println("  lumen ingest <file>...        Chunk and store documents")
	fmt.Println("  lumen search <query>          Aggregate search across sources")
	fmt.Println("  lumen factcheck <claim>       Judge a claim against stored evidence")
	fmt.Println("  lumen summarize <topic>       Summarize stored knowledge on a topic")
	fmt.Println("  lumen status                  Show backend and store status")
	fmt.Println("  lumen version                 Show version information")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key (required for gemini embedder/backends)")
	fmt.Println("  LUMEN_STORE_PATH   Override the local store location")
	fmt.Println("  LUMEN_LOG_LEVEL    debug, info, warn or error")
}
