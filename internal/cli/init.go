package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new report chain project",
	Long:  `Creates main.pkl with an example report chain and the .reportchain directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

const exampleConfig = `// Reportchain configuration
//
// The chain is created in order: namespace, collection, query, automation.
// Run 'reportchain validate' after editing.

provider = "null"

namespace {
  name = "steam_data"
  description = "Steam store listings"
}

collection {
  name = "steam_product_listings"
  sourceUri = "s3://steam-listings/products.csv"
  format = "csv"
  transformation = ""
}

query {
  name = "report"
  sql = """
    SELECT title, price, release_date
    FROM steam_data.steam_product_listings
    WHERE release_date > CURRENT_DATE() - DAYS(:past_days)
      AND price < :game_price
    """
  parameters {
    new {
      name = "past_days"
      type = "int"
      defaultValue = read?("prop:past_days") ?? "2555"
    }
    new {
      name = "game_price"
      type = "float"
      defaultValue = "1.99"
    }
  }
}

automation {
  name = "daily_report"
  schedule = "0 16 * * *"
  repeatCount = 1 // 0 runs forever
}

email {
  sender = "reports@example.com"
  recipient = "team@example.com"
  subject = "Cheap Steam games"
}

webhook {
  url = "https://api.sendgrid.com/v3/mail/send"
  token = "" // API key, sent as "Bearer <key>"; REPORTCHAIN_WEBHOOK_TOKEN or secretsmanager://<secret-id>
  bodyTemplate = "" // rendered from email when empty
}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	out := cmd.OutOrStdout()

	if err := os.MkdirAll(filepath.Join(dir, ".reportchain"), 0755); err != nil {
		return fmt.Errorf("failed to create .reportchain directory: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"main.pkl", exampleConfig},
		{"PklProject", "amends \"pkl:Project\"\n"},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		fmt.Fprintf(out, "Created %s\n", path)
	}

	fmt.Fprintln(out, "\nReportchain initialized successfully!")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit main.pkl to describe your report")
	fmt.Fprintln(out, "  2. Run 'reportchain validate' to check the chain")
	fmt.Fprintln(out, "  3. Run 'reportchain provision --provider controlplane' to create it")

	return nil
}
