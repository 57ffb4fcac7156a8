package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/graph"
	"github.com/spf13/cobra"
)

var (
	validateStrict bool
	validateFormat string
	validateFailOn string
)

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Fail on warnings too")
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "Output format: text or json")
	validateCmd.Flags().StringVar(&validateFailOn, "fail-on", "", "Lowest severity that fails the run: info, warning or error")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate-corpus [dir]",
	Short: "Validate and cross-check every record under a directory",
	Long: `Runs schema validation and reference resolution over a corpus and prints
one tab-separated line per finding: SEVERITY, recordId, field, code, message.

Exit codes: 0 clean, 1 a finding at or above the fail threshold, 2 duplicate ids.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateFormat != "text" && validateFormat != "json" {
			return fmt.Errorf("unknown format %q", validateFormat)
		}
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		if validateFailOn != "" {
			e.cfg.Validate.FailOn = validateFailOn
		}
		e.cfg.Validate.Strict = e.cfg.Validate.Strict || validateStrict
		policy, err := corpus.PolicyFromConfig(e.cfg.Validate)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		gen, err := e.load(cmd.Context(), argOr(args, 0, ""))
		var dup *graph.DuplicateIDError
		if errors.As(err, &dup) {
			writeDuplicates(out, dup, validateFormat)
			return &exitError{code: 2, err: err}
		}
		if err != nil {
			return err
		}

		findings := corpus.Findings(gen, policy)
		fails := policy.Fails(findings)
		if validateFormat == "json" {
			if err := writeValidationJSON(out, gen, findings, fails); err != nil {
				return err
			}
		} else {
			for _, f := range findings {
				_, _ = fmt.Fprintln(out, f.String())
			}
			counts := corpus.Count(findings)
			_, _ = fmt.Fprintf(out, "%d records, %d accepted, %d quarantined: %d errors, %d warnings, %d info\n",
				gen.Validation.Total, gen.Validation.Accepted, len(gen.Validation.Quarantined),
				counts[corpus.SeverityError], counts[corpus.SeverityWarning], counts[corpus.SeverityInfo])
		}

		if fails {
			return &exitError{code: 1, err: fmt.Errorf("validation failed at %s or above", policy.FailOn)}
		}
		return nil
	},
}

func writeDuplicates(w io.Writer, dup *graph.DuplicateIDError, format string) {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"fatal": "duplicate_id", "ids": dup.IDs})
		return
	}
	for _, id := range dup.IDs {
		_, _ = fmt.Fprintf(w, "FATAL\t%s\tid\tduplicate_id\trecord id is used more than once\n", id)
	}
}

func writeValidationJSON(w io.Writer, gen *corpus.Generation, findings []corpus.Finding, fails bool) error {
	if findings == nil {
		findings = []corpus.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Generation *corpus.Generation `json:"generation"`
		Findings   []corpus.Finding   `json:"findings"`
		Fails      bool               `json:"fails"`
	}{gen, findings, fails})
}
