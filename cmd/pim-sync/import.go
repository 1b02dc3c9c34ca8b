package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/Sternrassler/pim-sync/pkg/client"
	"github.com/Sternrassler/pim-sync/pkg/drive"
	"github.com/Sternrassler/pim-sync/pkg/importer"
	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/Sternrassler/pim-sync/pkg/runstore"
	"github.com/Sternrassler/pim-sync/pkg/storage"
	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// errItemsFailed is returned with --fail-on-errors when a run had failed items.
var errItemsFailed = errors.New("import finished with failed items")

const (
	kindMedia    = "media"
	kindProducts = "products"

	// allProducts is the run source of an unfiltered product import.
	allProducts = "all"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run an import",
	}
	cmd.PersistentFlags().BoolVar(&a.failOnErrors, "fail-on-errors", false, "exit with status 2 when any item failed")

	cmd.AddCommand(newImportMediaCmd(a), newImportProductsCmd(a))
	return cmd
}

func newImportMediaCmd(a *app) *cobra.Command {
	var rootID string

	cmd := &cobra.Command{
		Use:   "media",
		Short: "Import media files from a drive folder tree",
		Long: `Walks the drive folder tree below --root. Every top-level folder is named
after a product SKU; the files below it are uploaded to object storage and
recorded as media assets of that product.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importMedia(cmd.Context(), rootID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&rootID, "root", "", "drive folder ID of the import root (required)")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func newImportProductsCmd(a *app) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "Import products from the commerce API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importProducts(cmd.Context(), search, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&search, "query", "", "commerce search query restricting the imported products")
	return cmd
}

// openRecords opens and migrates the record store.
func (a *app) openRecords(ctx context.Context) (*store.Store, error) {
	records, err := store.Open(a.cfg.StoreConfig(), a.component("store"))
	if err != nil {
		return nil, err
	}
	a.track(records)

	if err := records.Migrate(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *app) importMedia(ctx context.Context, rootID string, out io.Writer) error {
	records, err := a.openRecords(ctx)
	if err != nil {
		return err
	}

	objects, err := storage.NewS3Storage(ctx, a.cfg.S3Config(), storage.WithLogger(a.component("storage")))
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}

	files, err := drive.NewGoogleDrive(ctx, a.cfg.GoogleConfig(), a.component("drive"))
	if err != nil {
		return err
	}

	runs, err := a.openRuns(ctx)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	proc := importer.NewMediaProcessor(files, objects, records, a.cfg.MediaConfig(runID), a.component("media-import"))
	source := drive.NewWalker(files, a.component("drive-walker")).Walk(ctx, rootID)

	report, err := runImport(ctx, runs, runstore.RunKey{Kind: kindMedia, Source: rootID}, source, proc, pipeline.Options{
		Name:      kindMedia,
		RunID:     runID,
		MaxErrors: a.cfg.Import.MaxErrors,
		Logger:    a.component("pipeline"),
	})
	return a.finish(out, report, err)
}

func (a *app) importProducts(ctx context.Context, search string, out io.Writer) error {
	records, err := a.openRecords(ctx)
	if err != nil {
		return err
	}

	commerce, err := client.New(a.cfg.ClientConfig())
	if err != nil {
		return err
	}
	a.track(commerce)

	runs, err := a.openRuns(ctx)
	if err != nil {
		return err
	}

	sourceName := search
	if sourceName == "" {
		sourceName = allProducts
	}

	proc := importer.NewProductProcessor(records, a.component("product-import"))
	source := importer.ProductSource(ctx, commerce, search, a.cfg.Commerce.PageSize)

	report, err := runImport(ctx, runs, runstore.RunKey{Kind: kindProducts, Source: sourceName}, source, proc, pipeline.Options{
		Name:      kindProducts,
		MaxErrors: a.cfg.Import.MaxErrors,
		Authorize: importer.CommerceAccess(commerce),
		Logger:    a.component("pipeline"),
	})
	if report != nil && err == nil {
		a.logger.Info().Int("created", proc.Created()).Msg("Products imported")
	}
	return a.finish(out, report, err)
}

// finish renders the report and decides the command's error.
func (a *app) finish(out io.Writer, report *pipeline.Report, runErr error) error {
	if report != nil {
		if err := renderReport(out, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if a.failOnErrors && report.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errItemsFailed, report.Failed, report.Total)
	}
	return nil
}

// runImport runs one import under the run lock of key and stores its report.
// The lock is kept alive for the whole run; losing it cancels the run.
// runs may be nil, which runs the import unlocked and unrecorded.
func runImport[T any](ctx context.Context, runs *runstore.Store, key runstore.RunKey, source iter.Seq2[T, error], proc pipeline.Processor[T], opts pipeline.Options) (*pipeline.Report, error) {
	logger := opts.Logger.With().Str("run_key", key.String()).Logger()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if runs != nil {
		lock, err := runs.Acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		defer releaseLock(lock, logger)

		stop := lock.KeepAlive(runCtx, func(err error) {
			logger.Error().Err(err).Msg("Run lock lost, stopping import after the current item")
			cancelRun()
		})
		defer stop()
	}

	report, err := pipeline.Run(runCtx, source, proc, opts)

	if runs != nil && report != nil {
		// The report of a cancelled run is still worth keeping.
		if saveErr := runs.SaveReport(context.WithoutCancel(ctx), key, report); saveErr != nil {
			logger.Warn().Err(saveErr).Msg("Failed to store run report")
		}
	}
	return report, err
}

func releaseLock(lock *runstore.Lock, logger zerolog.Logger) {
	if err := lock.Release(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to release run lock")
	}
}
