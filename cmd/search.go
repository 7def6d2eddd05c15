package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenreads/lumen/internal/app"
)

func runSearch(ctx context.Context, rt *app.Runtime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumen search <query>")
	}
	query := strings.Join(args, " ")

	page, err := rt.Search.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if page.TotalResults == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range page.Results {
		fmt.Printf("%d. %s  [%s, %.2f]\n", i+1, r.Title, r.Source, r.Score)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Printf("   %s\n", r.URL)
		}
	}
	fmt.Printf("\n%d results from %s\n", page.TotalResults,
		strings.Join(page.SourcesUsed, ", "))
	return nil
}

func runStatus(_ context.Context, rt *app.Runtime) error {
	fmt.Printf("Knowledge store: %d nodes\n\n", rt.Store.Count())

	fmt.Println("Backends:")
	for _, st := range rt.Orchestrator.GetStatus() {
		state := "available"
		if !st.Available {
			state = "disabled"
		}
		fmt.Printf("  %-20s priority %d, %s, %d calls, %d errors\n",
			st.Name, st.Priority, state, st.UsageCount, st.ErrorCount)
	}

	fmt.Println("\nUsage:")
	for _, us := range rt.Orchestrator.GetUsageStats() {
		fmt.Printf("  %-20s %d tokens, estimated cost $%.4f\n",
			us.Name, us.TokensUsed, us.EstimatedCost)
	}

	fmt.Println("\nSearch sources:")
	for _, src := range rt.Search.GetSources() {
		state := "enabled"
		if !src.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-20s %s, %s, weight %.2f\n", src.Name, src.Kind, state, src.Weight)
	}
	return nil
}
