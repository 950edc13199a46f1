package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/picklr-io/reportchain/internal/config"
	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/internal/notify"
	"github.com/picklr-io/reportchain/internal/state"
	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	provisionProperties        map[string]string
	provisionContinueOnTimeout bool
	provisionTeardownOnFailure bool
	provisionReportTo          string
)

var provisionCmd = &cobra.Command{
	Use:   "provision [path]",
	Short: "Create the report chain",
	Long: `Creates the namespace, collection, query and scheduled automation in order,
waiting for each resource to become ready before creating the next one.

The created identifiers are written to the run record, which 'teardown' reads.
On failure the remaining resources are skipped; the resources created so far
stay recorded unless --teardown-on-failure is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringToStringVarP(&provisionProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	provisionCmd.Flags().BoolVar(&provisionContinueOnTimeout, "continue-on-timeout", false, "Continue when a resource does not become ready in time")
	provisionCmd.Flags().BoolVar(&provisionTeardownOnFailure, "teardown-on-failure", false, "Tear down the created resources when provisioning fails")
	provisionCmd.Flags().StringVar(&provisionReportTo, "report-to", "", "Mail the run report to this address (sent from email.sender)")
}

// chainRun bundles what a provision or teardown run works against.
type chainRun struct {
	client   resource.Client
	backend  state.Backend
	provider string
	metrics  *engine.Metrics
	progress io.Writer
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	progress := progressWriter(out, cmd.ErrOrStderr())

	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}

	// 1. Load config
	evaluator := eval.NewEvaluator(wd)
	cfg, err := loadConfig(ctx, progress, evaluator, entryPoint, provisionProperties)
	if err != nil {
		return err
	}
	if err := notify.PrepareCallback(cfg); err != nil {
		return fmt.Errorf("failed to render webhook body: %w", err)
	}
	resolver := config.NewSecretResolver()
	if err := config.ResolveSecrets(ctx, resolver, cfg); err != nil {
		return err
	}

	specs := cfg.Specs()
	if len(specs) == 0 {
		fmt.Fprintln(out, "No resources configured. Nothing to provision.")
		return nil
	}

	// 2. Initialize components
	name := selectedProvider(cfg.Provider)
	client, err := newClient(ctx, resolver, name)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, wd, evaluator)
	if err != nil {
		return err
	}

	// 3. Lock the run record
	if err := backend.Lock(ctx); err != nil {
		return err
	}
	defer backend.Unlock(ctx)

	// 4. Provision
	reg := prometheus.NewRegistry()
	report, runErr := provisionChain(ctx, chainRun{
		client:   client,
		backend:  backend,
		provider: name,
		metrics:  engine.NewMetrics(reg),
		progress: progress,
	}, specs)
	if err := writeMetrics(reg); err != nil {
		logging.Warn("metrics export failed", "error", err)
	}
	if report == nil {
		return runErr
	}

	// 5. Report
	if err := renderReport(out, report); err != nil {
		return err
	}
	if provisionReportTo != "" {
		var from string
		if cfg.Email != nil {
			from = cfg.Email.Sender
		}
		if err := sendReport(ctx, from, provisionReportTo, report); err != nil {
			logging.Warn("run report not sent", "error", err)
		}
	}
	return runErr
}

// provisionChain creates specs and records the created handles. It refuses to
// start while the record still lists resources from an earlier run.
func provisionChain(ctx context.Context, run chainRun, specs []resource.Spec) (*runReport, error) {
	prior, err := run.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}
	if !prior.Empty() {
		return nil, fmt.Errorf("run record already lists %d resource(s) from run %s; run 'reportchain teardown' first",
			len(prior.Resources), prior.RunID)
	}

	eng := newEngine(run.client, run.metrics,
		engine.WithContinueOnTimeout(provisionContinueOnTimeout),
		engine.WithEventCallback(printEvent(run.progress)),
	)

	rec := &ir.RunRecord{
		Version:   ir.RecordVersion,
		Serial:    prior.Serial,
		RunID:     uuid.NewString(),
		Provider:  run.provider,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	fmt.Fprintf(run.progress, "Provisioning %d resource(s) with %s...\n", len(specs), run.provider)
	result, runErr := eng.Provision(ctx, specs)

	outcomes := make(map[string]engine.ResourceOutcome, len(result.Records))
	for _, r := range result.Records {
		outcomes[r.Address] = r.Outcome
	}
	for _, h := range result.Handles {
		rec.RecordHandle(h, string(outcomes[h.Address()]))
	}

	records := result.Records
	if runErr != nil && provisionTeardownOnFailure && len(result.Handles) > 0 {
		fmt.Fprintln(run.progress, "Provisioning failed, tearing down created resources...")
		td := eng.Teardown(ctx, result.Handles)
		records = append(records, td.Records...)
		rec = remaining(rec, td)
		if err := td.Err(); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("teardown after failure: %w", err))
		}
	}

	if err := saveRecord(ctx, run.backend, rec); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return newReport("provision", rec.RunID, run.provider, records, runErr), runErr
}
