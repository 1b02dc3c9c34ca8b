package main

import (
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
)

// renderReport writes the run summary and, if any, the recorded item errors.
func renderReport(w io.Writer, r *pipeline.Report) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Source", "Total", "Succeeded", "Skipped", "Failed", "Groups created", "Duration", "Status"})
	t.AppendRow(table.Row{
		r.RunID,
		r.Source,
		r.Total,
		r.Succeeded,
		r.Skipped,
		r.Failed,
		r.GroupsCreated,
		r.Duration().Round(time.Millisecond),
		runStatus(r),
	})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	if len(r.Errors) == 0 && r.SourceError == "" {
		return nil
	}

	errs := table.NewWriter()
	errs.SetStyle(table.StyleRounded)
	errs.AppendHeader(table.Row{"Item", "Error"})
	if r.SourceError != "" {
		errs.AppendRow(table.Row{"(source)", r.SourceError})
	}
	for _, e := range r.Errors {
		errs.AppendRow(table.Row{e.Item, e.Message})
	}
	if r.ErrorsDropped > 0 {
		errs.AppendFooter(table.Row{"", fmt.Sprintf("%d more errors not recorded", r.ErrorsDropped)})
	}

	_, err := fmt.Fprintln(w, errs.Render())
	return err
}

func runStatus(r *pipeline.Report) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.SourceError != "":
		return "source error"
	case r.Failed > 0:
		return "completed with failures"
	default:
		return "completed"
	}
}
