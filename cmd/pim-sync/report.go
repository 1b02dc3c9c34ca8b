package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/pim-sync/pkg/runstore"
	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <media|products> [source]",
		Short: "Show the last stored import report",
		Long: `Shows the report of the last run for a source: the drive root folder ID for
media imports, the search query (default "all") for product imports.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := reportKey(args)
			if err != nil {
				return err
			}
			return a.showReport(cmd.Context(), key, cmd.OutOrStdout())
		},
	}
}

// reportKey maps command arguments to the run key the import stored under.
func reportKey(args []string) (runstore.RunKey, error) {
	key := runstore.RunKey{Kind: args[0]}
	if len(args) > 1 {
		key.Source = args[1]
	}

	switch key.Kind {
	case kindMedia:
		if key.Source == "" {
			return key, fmt.Errorf("media reports need the root folder ID as source")
		}
	case kindProducts:
		if key.Source == "" {
			key.Source = allProducts
		}
	default:
		return key, fmt.Errorf("unknown import kind %q (want %s or %s)", key.Kind, kindMedia, kindProducts)
	}
	return key, nil
}

func (a *app) showReport(ctx context.Context, key runstore.RunKey, out io.Writer) error {
	runs, err := a.openRuns(ctx)
	if err != nil {
		return err
	}
	if runs == nil {
		return fmt.Errorf("reports need a redis address (redis.addr)")
	}

	stored, err := runs.LastReport(ctx, key)
	if errors.Is(err, runstore.ErrNoReport) {
		fmt.Fprintf(out, "No report stored for %s\n", key)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Stored %s, expires %s\n",
		stored.StoredAt.Format("2006-01-02 15:04:05"),
		stored.Expires.Format("2006-01-02 15:04:05"))
	return renderReport(out, stored.Report)
}
