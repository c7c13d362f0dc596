package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mchen04/Grantify.ai-sub000/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).RecentRuns(ctx, 10)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "Total", "New", "Updated", "Unchanged", "Failed", "Duration", "Started At"})

	for _, run := range runs {
		duration := "Running..."
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
		}

		t.AppendRow(table.Row{run.Source, run.Status, run.Total, run.New, run.Updated, run.Unchanged, run.Failed, duration, run.StartedAt.Format("15:04:05")})
	}
	t.Render()
}
