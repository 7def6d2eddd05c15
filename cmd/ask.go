package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenreads/lumen/internal/app"
	"github.com/lumenreads/lumen/internal/rag"
)

func runAsk(ctx context.Context, rt *app.Runtime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumen ask <question>")
	}
	question := strings.Join(args, " ")

	ans, err := rt.Engine.Query(ctx, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Println(ans.Text)
	if ans.RetrievedCount > 0 {
		fmt.Printf("\n(confidence %.0f%%, %d sources, model %s)\n",
			ans.Confidence*100, ans.RetrievedCount, ans.ModelUsed)
	}
	return nil
}

func runFactCheck(ctx context.Context, rt *app.Runtime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumen factcheck <claim>")
	}
	claim := strings.Join(args, " ")

	res, err := rt.Engine.FactCheck(ctx, claim)
	if err != nil {
		return fmt.Errorf("fact check failed: %w", err)
	}

	fmt.Printf("Verdict: %s (confidence %.0f%%)\n", res.Verdict, res.Confidence*100)
	if res.Reasoning != "" {
		fmt.Println(res.Reasoning)
	}
	for i, ev := range res.Evidence {
		fmt.Printf("  [%d] %s\n", i+1, ev.Node.Content)
	}
	return nil
}

func runSummarize(ctx context.Context, rt *app.Runtime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumen summarize <topic>")
	}
	topic := strings.Join(args, " ")

	summary, err := rt.Engine.Summarize(ctx, topic, 0)
	if err != nil {
		return fmt.Errorf("summarize failed: %w", err)
	}
	if summary == rag.NoEvidenceAnswer {
		fmt.Println("Nothing stored about this topic yet.")
		return nil
	}
	fmt.Println(summary)
	return nil
}
