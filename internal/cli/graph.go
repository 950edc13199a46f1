package cli

import (
	"fmt"

	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the resource chain in DOT format",
	Long: `Generates a visual representation of the resource chain in Graphviz DOT
format. Pipe the output to 'dot' to generate an image:

  reportchain graph | dot -Tpng > chain.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}

	cfg, err := eval.NewEvaluator(wd).LoadConfig(cmd.Context(), entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	graph, err := engine.BuildGraph(cfg.Specs())
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	return graph.WriteDOT(cmd.OutOrStdout())
}
