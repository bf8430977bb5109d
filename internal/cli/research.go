package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/backend"
	"github.com/quarryhq/quarry/internal/dispatch"
	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/session"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/synth"
)

var (
	outJSON     string
	sourceFiles []string
	timeout     time.Duration
)

// researchCmd represents the research command
var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run one research round across all configured backends",
	Long: `Research fans a query out to every configured backend concurrently:
- Each backend researches the query independently
- Matching claims merge across backends with provenance kept per backend
- Disagreements between backends stay visible as explicit conflicts
- The final structured document is written as JSON

Example:
  quarry research "impact of the EU AI Act on startups"
  quarry research "acme corp revenue history" --json report.json
  quarry research "copper demand outlook" --source notes.txt --json -`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path (- for stdout)")
	researchCmd.Flags().StringArrayVar(&sourceFiles, "source", nil, "text file to attach as source material (repeatable)")
	researchCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-backend deadline (overrides config)")
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if timeout > 0 {
		cfg.Dispatch.BackendTimeout = timeout
	}

	adapters, err := backend.Build(cfg.Backends, cfg.Cache, logger)
	if err != nil {
		return err
	}

	sources, err := readSources(sourceFiles)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Query: %s\n", query)
		fmt.Fprintf(os.Stderr, "Backends: %d\n", len(adapters))
		fmt.Fprintf(os.Stderr, "Timeout: %v per backend\n", cfg.Dispatch.BackendTimeout)
		fmt.Fprintln(os.Stderr)
	}

	st := store.New()
	classifier := synth.NewLexicalClassifier(cfg.Synth.DupThreshold, cfg.Synth.ConflictThreshold)
	synthesizer := synth.New(st, classifier, cfg.Synth.MaxClaimChars, logger)
	dispatcher := dispatch.New(adapters, cfg.Dispatch.BackendTimeout, logger)

	ctl := session.New(uuid.NewString(), dispatcher, st, synthesizer, nil, logger)
	defer ctl.Close()

	events := ctl.Subscribe()
	defer ctl.Unsubscribe(events)

	if err := ctl.Submit(query, sources); err != nil {
		return fmt.Errorf("submit query: %w", err)
	}

	var fatal string
loop:
	for ev := range events {
		switch ev.Type {
		case model.EventBackendUpdate:
			switch ev.BackendStatus {
			case model.BackendDone:
				fmt.Fprintf(os.Stderr, "✓ %s: %d claims\n", ev.Backend, ev.ClaimCount)
			case model.BackendFailed:
				fmt.Fprintf(os.Stderr, "✗ %s: %s\n", ev.Backend, ev.Error)
			}
		case model.EventError:
			fatal = ev.Error
			break loop
		case model.EventStatus:
			if verbose && ev.Stage != "" {
				fmt.Fprintf(os.Stderr, "stage: %s\n", ev.Stage)
			}
			if ev.Stage == model.StageDone {
				break loop
			}
		}
	}
	if fatal != "" {
		return fmt.Errorf("research failed: %s", fatal)
	}

	doc := ctl.Document()
	fmt.Fprintf(os.Stderr, "\n✓ %d sections, %d sources\n", len(doc.Sections), len(doc.Sources))
	disputed := 0
	for _, sec := range doc.Sections {
		if sec.Conflict != nil {
			disputed++
		}
	}
	if disputed > 0 {
		fmt.Fprintf(os.Stderr, "⚠ %d disputed topics (see conflict blocks in the document)\n", disputed)
	}

	return writeDocument(doc, outJSON)
}

// readSources loads each file as one pre-extracted text source
func readSources(paths []string) ([]model.Source, error) {
	var sources []model.Source
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", path, err)
		}
		sources = append(sources, model.Source{
			Kind:     model.SourceKindDocument,
			Text:     string(data),
			Metadata: map[string]string{"filename": filepath.Base(path)},
		})
	}
	return sources, nil
}

// writeDocument renders the document as indented JSON to a file, or to
// stdout when path is "-"
func writeDocument(doc model.Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Report written to %s\n", path)
	return nil
}
