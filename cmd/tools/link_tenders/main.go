package main

import (
	"context"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sudeti/qkb/internal/db"
)

// Backfills tender winner links after the companies they reference have been
// scraped.
func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	tenders, err := store.ListUnlinkedTenders(ctx)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Tender", "Winner NIPT", "Result"})

	linked := 0
	for _, tender := range tenders {
		id, found, err := store.GetCompanyIDByNIPT(ctx, tender.WinnerNIPT)
		if err != nil {
			log.Printf("Lookup failed for %s: %v", tender.WinnerNIPT, err)
			continue
		}
		if !found {
			t.AppendRow(table.Row{tender.Title, tender.WinnerNIPT, "still unknown"})
			continue
		}
		if err := store.LinkTender(ctx, tender.ID, id); err != nil {
			log.Printf("Link failed for %s: %v", tender.WinnerNIPT, err)
			continue
		}
		linked++
		t.AppendRow(table.Row{tender.Title, tender.WinnerNIPT, "linked"})
	}
	t.Render()

	log.Printf("Linked %d of %d tenders", linked, len(tenders))
}
