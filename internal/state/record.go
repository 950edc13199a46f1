package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
)

// DefaultPath is where the local backend keeps the run record.
const DefaultPath = ".reportchain/run.pkl"

// Manager stores the run record in a local file.
type Manager struct {
	path      string
	evaluator *eval.Evaluator
}

var _ Backend = (*Manager)(nil)

func NewManager(path string, evaluator *eval.Evaluator) *Manager {
	return &Manager{
		path:      path,
		evaluator: evaluator,
	}
}

// Path returns the record file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the run record. A missing file yields an empty record. Encrypted
// records are decrypted before evaluation.
func (m *Manager) Read(ctx context.Context) (*ir.RunRecord, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return emptyRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run record %s: %w", m.path, err)
	}

	if !IsEncrypted(raw) {
		rec, err := m.evaluator.LoadRecord(ctx, m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to load run record from %s: %w", m.path, err)
		}
		return rec, nil
	}

	decrypted, err := DecryptRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt run record: %w", err)
	}
	return loadFromBytes(ctx, m.evaluator, decrypted)
}

// Write saves the record, encrypting it when a key is configured. The serial is
// incremented on every write.
func (m *Manager) Write(ctx context.Context, rec *ir.RunRecord) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := EncryptRecord([]byte(SerializeRecord(rec)))
	if err != nil {
		return fmt.Errorf("failed to encrypt run record: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write run record %s: %w", m.path, err)
	}
	rec.Serial++
	return nil
}

// Clear removes the record after a complete teardown.
func (m *Manager) Clear(ctx context.Context) error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run record %s: %w", m.path, err)
	}
	return nil
}

func emptyRecord() *ir.RunRecord {
	return &ir.RunRecord{Version: ir.RecordVersion}
}

// loadFromBytes evaluates record content through a temporary file, since the PKL
// evaluator reads modules from disk.
func loadFromBytes(ctx context.Context, evaluator *eval.Evaluator, content []byte) (*ir.RunRecord, error) {
	tmp, err := os.CreateTemp("", "reportchain-run-*.pkl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write temp record: %w", err)
	}

	rec, err := evaluator.LoadRecord(ctx, tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}
	return rec, nil
}

// SerializeRecord renders a run record as a PKL module. The written serial is one
// higher than rec.Serial.
func SerializeRecord(rec *ir.RunRecord) string {
	var b strings.Builder

	b.WriteString("// reportchain run record\n")
	fmt.Fprintf(&b, "version = %d\n", rec.Version)
	fmt.Fprintf(&b, "serial = %d\n", rec.Serial+1)
	fmt.Fprintf(&b, "runId = %s\n", pklString(rec.RunID))
	fmt.Fprintf(&b, "provider = %s\n", pklString(rec.Provider))
	fmt.Fprintf(&b, "createdAt = %s\n\n", pklString(rec.CreatedAt))

	b.WriteString("resources = new Listing {\n")
	for _, res := range rec.Resources {
		if res == nil {
			continue
		}
		b.WriteString("  new {\n")
		fmt.Fprintf(&b, "    kind = %s\n", pklString(res.Kind))
		fmt.Fprintf(&b, "    name = %s\n", pklString(res.Name))
		fmt.Fprintf(&b, "    id = %s\n", pklString(res.ID))
		fmt.Fprintf(&b, "    namespace = %s\n", pklString(res.Namespace))
		if len(res.Attributes) == 0 {
			b.WriteString("    attributes = new Mapping {}\n")
		} else {
			b.WriteString("    attributes = new Mapping {\n")
			keys := make([]string, 0, len(res.Attributes))
			for k := range res.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "      [%s] = %s\n", pklString(k), pklString(res.Attributes[k]))
			}
			b.WriteString("    }\n")
		}
		fmt.Fprintf(&b, "    outcome = %s\n", pklString(res.Outcome))
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")

	return b.String()
}

// pklString quotes s as a PKL string literal.
func pklString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
