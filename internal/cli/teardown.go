package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/picklr-io/reportchain/internal/config"
	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	teardownNamespace    string
	teardownCollection   string
	teardownQuery        string
	teardownAutomationID string
	teardownReportTo     string
	teardownReportFrom   string
)

var teardownCmd = &cobra.Command{
	Use:   "teardown [dir]",
	Short: "Delete the report chain",
	Long: `Deletes the recorded resources in reverse creation order, waiting for each to
disappear before deleting the next. Resources that are already gone count as
deleted, so teardown can be repeated safely.

Failures do not stop the run: every resource is attempted and the record keeps
only the resources that could not be deleted.

Instead of the run record, identifiers can be given explicitly:

  reportchain teardown --namespace steam_data --collection steam_product_listings \
    --query report --automation-id 1b0e...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().StringVar(&teardownNamespace, "namespace", "", "Namespace to delete instead of the recorded run")
	teardownCmd.Flags().StringVar(&teardownCollection, "collection", "", "Collection to delete (requires --namespace)")
	teardownCmd.Flags().StringVar(&teardownQuery, "query", "", "Parameterized query to delete (requires --namespace)")
	teardownCmd.Flags().StringVar(&teardownAutomationID, "automation-id", "", "Scheduled automation to delete (requires --namespace)")
	teardownCmd.Flags().StringVar(&teardownReportTo, "report-to", "", "Mail the run report to this address")
	teardownCmd.Flags().StringVar(&teardownReportFrom, "report-from", "", "Sender address for --report-to")
}

func runTeardown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	progress := progressWriter(out, cmd.ErrOrStderr())

	explicit, err := explicitHandles(teardownNamespace, teardownCollection, teardownQuery, teardownAutomationID)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	run := chainRun{metrics: engine.NewMetrics(reg), progress: progress}
	var rec *ir.RunRecord

	if explicit != nil {
		rec = &ir.RunRecord{Version: ir.RecordVersion}
		for _, h := range explicit {
			rec.RecordHandle(h, "")
		}
	} else {
		wd, _, err := resolveProject(args)
		if err != nil {
			return err
		}
		backend, err := openBackend(ctx, wd, eval.NewEvaluator(wd))
		if err != nil {
			return err
		}
		if err := backend.Lock(ctx); err != nil {
			return err
		}
		defer backend.Unlock(ctx)

		rec, err = backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read run record: %w", err)
		}
		run.backend = backend
	}

	if rec.Empty() {
		fmt.Fprintln(out, "No recorded resources. Nothing to tear down.")
		return nil
	}

	run.provider = selectedProvider(rec.Provider)
	run.client, err = newClient(ctx, config.NewSecretResolver(), run.provider)
	if err != nil {
		return err
	}

	report, runErr := teardownChain(ctx, run, rec)
	if err := writeMetrics(reg); err != nil {
		logging.Warn("metrics export failed", "error", err)
	}

	if err := renderReport(out, report); err != nil {
		return err
	}
	if teardownReportTo != "" {
		if err := sendReport(ctx, teardownReportFrom, teardownReportTo, report); err != nil {
			logging.Warn("run report not sent", "error", err)
		}
	}
	return runErr
}

// teardownChain deletes the recorded resources. When run.backend is set the
// record is rewritten with whatever is left, and cleared once nothing is.
func teardownChain(ctx context.Context, run chainRun, rec *ir.RunRecord) (*runReport, error) {
	eng := newEngine(run.client, run.metrics, engine.WithEventCallback(printEvent(run.progress)))

	fmt.Fprintf(run.progress, "Tearing down %d resource(s) with %s...\n", len(rec.Resources), run.provider)
	td := eng.Teardown(ctx, rec.Handles())
	runErr := td.Err()

	if run.backend != nil {
		if err := saveRecord(ctx, run.backend, remaining(rec, td)); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return newReport("teardown", rec.RunID, run.provider, td.Records, runErr), runErr
}

// saveRecord writes rec, or clears the stored record when rec lists nothing.
func saveRecord(ctx context.Context, backend state.Backend, rec *ir.RunRecord) error {
	log := logging.With("run_id", rec.RunID)
	if rec.Empty() {
		if err := backend.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear run record: %w", err)
		}
		log.Debug("run record cleared")
		return nil
	}
	if err := backend.Write(ctx, rec); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	log.Debug("run record saved", "resources", len(rec.Resources), "serial", rec.Serial)
	return nil
}

// remaining returns a copy of rec without the resources td reports as gone.
func remaining(rec *ir.RunRecord, td *engine.TeardownReport) *ir.RunRecord {
	gone := make(map[string]bool, len(td.Records))
	for _, r := range td.Records {
		if r.Outcome == engine.OutcomeDeleted || r.Outcome == engine.OutcomeAlreadyAbsent {
			gone[r.Address] = true
		}
	}

	left := *rec
	left.Resources = nil
	for _, res := range rec.Resources {
		if res == nil || gone[res.Kind+"."+res.Name] {
			continue
		}
		left.Resources = append(left.Resources, res)
	}
	return &left
}
