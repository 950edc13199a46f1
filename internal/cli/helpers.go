package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/picklr-io/reportchain/internal/config"
	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/internal/notify"
	"github.com/picklr-io/reportchain/internal/provider"
	"github.com/picklr-io/reportchain/internal/state"
	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// resolveProject maps an optional path argument to a project directory and
// entry point. A directory argument uses its main.pkl.
func resolveProject(args []string) (string, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, filepath.Join(wd, entryPoint), nil
}

// loadConfig evaluates the entry point and prints progress to w.
func loadConfig(ctx context.Context, w io.Writer, evaluator *eval.Evaluator, entryPoint string, props map[string]string) (*ir.Config, error) {
	fmt.Fprint(w, "Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, props)
	if err != nil {
		fmt.Fprintln(w, "FAILED")
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Fprintln(w, "OK")
	return cfg, nil
}

// selectedProvider returns the backend name: the --provider flag, then the
// configured provider, then null.
func selectedProvider(configured string) string {
	if providerName != "" {
		return providerName
	}
	if configured != "" {
		return configured
	}
	return provider.Null
}

// newClient loads the named backend. Control-plane credentials are read from the
// environment only when that backend is selected.
func newClient(ctx context.Context, resolver *config.SecretResolver, name string) (resource.Client, error) {
	var opts provider.Options
	if name == provider.ControlPlane {
		creds, err := config.LoadCredentials(ctx, resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		opts = provider.Options{Server: creds.Server, APIKey: creds.APIKey}
	}

	registry := provider.NewRegistry()
	if err := registry.Load(name, opts); err != nil {
		return nil, fmt.Errorf("failed to load provider %s: %w", name, err)
	}
	return registry.Get(name)
}

// newEngine builds an engine with polling budgets from the environment. The
// metrics are shared by every engine of one command.
func newEngine(client resource.Client, m *engine.Metrics, opts ...engine.Option) *engine.Engine {
	polling := config.LoadPolling()
	base := []engine.Option{
		engine.WithReadyPolicy(polling.ReadyPolicy()),
		engine.WithDeletePolicy(polling.DeletePolicy()),
		engine.WithMetrics(m),
	}
	return engine.NewEngine(client, append(base, opts...)...)
}

// openBackend creates the run record backend selected by --backend. Relative
// local paths are resolved against the project directory.
func openBackend(ctx context.Context, wd string, evaluator *eval.Evaluator) (state.Backend, error) {
	cfg, err := state.ParseBackend(backendSpec)
	if err != nil {
		return nil, err
	}
	if cfg.Type == "local" && !filepath.IsAbs(cfg.Config["path"]) {
		cfg.Config["path"] = filepath.Join(wd, cfg.Config["path"])
	}
	return state.NewBackend(ctx, cfg, evaluator)
}

// writeMetrics exports the gathered metrics when --metrics-file is set.
func writeMetrics(g prometheus.Gatherer) error {
	if metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(metricsFile, g); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logging.Debug("metrics written", "path", metricsFile)
	return nil
}

// progressWriter is where step-by-step progress goes. Structured output keeps
// stdout clean.
func progressWriter(stdout, stderr io.Writer) io.Writer {
	if outputFormat == outputText {
		return stdout
	}
	return stderr
}

// printEvent returns an event callback printing finished steps to w.
func printEvent(w io.Writer) engine.EventCallback {
	return func(ev engine.Event) {
		if ev.Status == engine.StatusStarted {
			return
		}

		color := colorGreen
		switch ev.Status {
		case engine.StatusFailed:
			color = colorRed
		case engine.StatusTimedOut:
			color = colorYellow
		}

		line := fmt.Sprintf("  %s%s: %s %s%s", colorize(color), ev.Address, ev.Action, ev.Status, colorize(colorReset))
		if ev.Attempts > 0 {
			line += fmt.Sprintf(" (%d checks, %s)", ev.Attempts, ev.Duration.Round(time.Millisecond))
		}
		if ev.Error != nil {
			line += ": " + ev.Error.Error()
		}
		fmt.Fprintln(w, line)
	}
}

// runReport is the rendered result of a provision, status or teardown run.
type runReport struct {
	Command  string                  `json:"command" yaml:"command"`
	RunID    string                  `json:"runId,omitempty" yaml:"runId,omitempty"`
	Provider string                  `json:"provider" yaml:"provider"`
	Records  []engine.ResourceRecord `json:"records" yaml:"records"`
	Error    string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReport(command, runID, providerName string, records []engine.ResourceRecord, err error) *runReport {
	r := &runReport{Command: command, RunID: runID, Provider: providerName, Records: records}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// renderReport writes the report in the selected output format.
func renderReport(w io.Writer, r *runReport) error {
	switch outputFormat {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	return renderText(w, r)
}

func renderText(w io.Writer, r *runReport) error {
	if len(r.Records) == 0 {
		fmt.Fprintf(w, "\n%s: no resources.\n", r.Command)
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tID\tSTATE\tOUTCOME\tDURATION\tERROR")
	for _, rec := range r.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s%s\t%s\t%s\n",
			rec.Address, rec.ID, rec.State,
			colorize(outcomeColor(rec.Outcome)), rec.Outcome, colorize(colorReset),
			rec.Duration.Round(time.Millisecond), rec.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Error != "" {
		fmt.Fprintf(w, "\n%s%s failed:%s %s\n", colorize(colorRed), r.Command, colorize(colorReset), r.Error)
	} else {
		fmt.Fprintf(w, "\n%s%s complete!%s %d resource(s).\n", colorize(colorGreen), r.Command, colorize(colorReset), len(r.Records))
	}
	return nil
}

func outcomeColor(o engine.ResourceOutcome) string {
	switch o {
	case engine.OutcomeFailed:
		return colorRed
	case engine.OutcomeTimedOut:
		return colorYellow
	}
	return colorGreen
}

// sendReport mails the plain-text report through SES.
func sendReport(ctx context.Context, from, to string, r *runReport) error {
	mailer, err := notify.NewSESMailer(ctx, from)
	if err != nil {
		return err
	}
	return mailReport(ctx, mailer, to, r)
}

type messageSender interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

func mailReport(ctx context.Context, mailer messageSender, to string, r *runReport) error {
	prev := noColor
	noColor = true
	defer func() { noColor = prev }()

	var buf bytes.Buffer
	if err := renderText(&buf, r); err != nil {
		return err
	}

	status := "succeeded"
	if r.Error != "" {
		status = "failed"
	}
	id, err := mailer.Send(ctx, notify.Message{
		To:      to,
		Subject: fmt.Sprintf("reportchain %s %s", r.Command, status),
		Text:    buf.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to send run report: %w", err)
	}
	logging.Info("run report sent", "to", to, "message_id", id)
	return nil
}

// explicitHandles builds handles from identifiers given on the command line, in
// creation order. Collection and query IDs are qualified with the namespace.
func explicitHandles(namespace, collection, query, automationID string) ([]resource.Handle, error) {
	if namespace == "" {
		if collection != "" || query != "" || automationID != "" {
			return nil, fmt.Errorf("--namespace is required with --collection, --query or --automation-id")
		}
		return nil, nil
	}

	handles := []resource.Handle{{Kind: resource.KindNamespace, Name: namespace, ID: namespace}}
	if collection != "" {
		handles = append(handles, resource.Handle{
			Kind: resource.KindCollection, Name: collection, ID: namespace + "." + collection, Namespace: namespace,
		})
	}
	if query != "" {
		handles = append(handles, resource.Handle{
			Kind: resource.KindParameterizedQuery, Name: query, ID: namespace + "." + query, Namespace: namespace,
		})
	}
	if automationID != "" {
		handles = append(handles, resource.Handle{
			Kind: resource.KindScheduledAutomation, Name: automationID, ID: automationID, Namespace: namespace,
		})
	}
	return handles, nil
}
