package cli

import (
	"context"
	"fmt"

	"github.com/picklr-io/reportchain/internal/config"
	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [dir]",
	Short: "Show the live state of the recorded resources",
	Long: `Reads the run record and asks the backend for the current state of every
recorded resource. Nothing is created or deleted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	wd, _, err := resolveProject(args)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, wd, eval.NewEvaluator(wd))
	if err != nil {
		return err
	}
	rec, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run record: %w", err)
	}
	if rec.Empty() {
		fmt.Fprintln(out, "No recorded resources.")
		return nil
	}

	name := selectedProvider(rec.Provider)
	client, err := newClient(ctx, config.NewSecretResolver(), name)
	if err != nil {
		return err
	}

	return renderReport(out, newReport("status", rec.RunID, name, statusRecords(ctx, client, rec), nil))
}

// statusRecords pairs each recorded outcome with the state the backend reports
// now. A resource the backend no longer knows is shown as Deleted.
func statusRecords(ctx context.Context, client resource.Client, rec *ir.RunRecord) []engine.ResourceRecord {
	var records []engine.ResourceRecord
	for _, res := range rec.Resources {
		if res == nil {
			continue
		}
		h := resource.Handle{
			Kind:       resource.Kind(res.Kind),
			Name:       res.Name,
			ID:         res.ID,
			Namespace:  res.Namespace,
			Attributes: res.Attributes,
		}
		r := engine.ResourceRecord{
			Address: h.Address(),
			Kind:    h.Kind,
			Name:    h.Name,
			ID:      h.ID,
			Outcome: engine.ResourceOutcome(res.Outcome),
		}

		snap, err := client.Get(ctx, h)
		switch {
		case resource.IsNotFound(err):
			r.State = resource.StateDeleted
		case err != nil:
			r.State = resource.StateFailed
			r.Err = err
			r.Error = err.Error()
		default:
			r.State = snap.State
		}
		records = append(records, r)
	}
	return records
}
