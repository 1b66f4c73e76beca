package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sudeti/qkb/internal/db"
	"github.com/Sudeti/qkb/internal/scrape"
)

func main() {
	categoriesFlag := flag.String("categories", "", "comma-separated listing categories (default: all)")
	limit := flag.Int("limit", 0, "maximum number of companies to scrape (0 = no limit)")
	flag.Parse()

	var categories []string
	if *categoriesFlag != "" {
		for _, c := range strings.Split(*categoriesFlag, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	pipeline, err := scrape.NewPipeline(db.NewStore(pool), scrape.NewClient())
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	result, err := pipeline.RunFull(ctx, categories, *limit)
	if err != nil {
		log.Fatalf("Scrape run failed: %v", err)
	}

	duration := "Running..."
	if result.CompletedAt != nil {
		duration = result.CompletedAt.Sub(result.StartedAt).Round(time.Second).String()
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "Scraped", "New", "Updated", "Errors", "Duration"})
	t.AppendRow(table.Row{result.Status, result.CompaniesScraped, result.CompaniesNew, result.CompaniesUpdated, len(result.Errors), duration})
	t.Render()

	for _, e := range result.Errors {
		log.Printf("[Scrape] %s", e)
	}

	fmt.Printf("Done: %d scraped, %d new, %d updated, %d errors\n",
		result.CompaniesScraped, result.CompaniesNew, result.CompaniesUpdated, len(result.Errors))
}
