package cli

import (
	"fmt"
	"io"

	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/internal/notify"
	"github.com/spf13/cobra"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the report chain configuration",
	Long: `Evaluates the PKL configuration and checks the resource chain: required
identifiers, references to earlier resources and the webhook body. No backend
is contacted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.Context(), out, eval.NewEvaluator(wd), entryPoint, validateProperties)
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Checking resource chain... ")
	graph, err := checkChain(cfg)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintln(out, "OK")

	writeOrders(out, graph)
	fmt.Fprintln(out, "\nConfiguration is valid!")
	return nil
}

// writeOrders lists the order resources are created in and torn down in.
func writeOrders(w io.Writer, graph *engine.Graph) {
	fmt.Fprintln(w, "\nCreation order:")
	for i, name := range graph.CreationOrder() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
	fmt.Fprintln(w, "Teardown order:")
	for i, name := range graph.DestructionOrder() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
}

// checkChain renders the callback body and validates the spec sequence.
func checkChain(cfg *ir.Config) (*engine.Graph, error) {
	if err := notify.PrepareCallback(cfg); err != nil {
		return nil, err
	}
	specs := cfg.Specs()
	if len(specs) == 0 {
		return nil, fmt.Errorf("no resources configured")
	}
	return engine.BuildGraph(specs)
}
