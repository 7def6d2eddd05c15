package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumenreads/lumen/internal/app"
	"github.com/lumenreads/lumen/internal/ingest"
)

func runIngest(ctx context.Context, rt *app.Runtime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumen ingest <file>...")
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc, err := rt.Pipeline.AddDocument(ctx, string(data),
			ingest.WithTags(filepath.Base(path)))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if len(doc.Chunks) == 0 {
			fmt.Printf("%s: no extractable text, skipped\n", path)
			continue
		}
		fmt.Printf("%s: stored %d chunks (document %s)\n", path, len(doc.Chunks), doc.ID)
	}
	return nil
}
