package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/medgraph/internal/ingest"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [source] [output.db]",
	Short: "Build a SQLite snapshot of a validated corpus",
	Long: `Loads, validates, resolves and indexes a corpus, then writes it to a
SQLite snapshot. The snapshot is itself a valid corpus source.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, output := args[0], args[1]

		// A snapshot inside the corpus would be loaded as part of it next time.
		if inside, err := within(source, output); err != nil {
			return err
		} else if inside {
			return fmt.Errorf("output %s is inside the corpus %s", output, source)
		}

		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		start := time.Now()
		gen, err := e.load(cmd.Context(), source)
		if err != nil {
			return err
		}
		if err := ingest.WriteSnapshot(output, gen); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s in %v (generation %s).\n",
			gen.Store.Count(), output, time.Since(start).Round(time.Millisecond), gen.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

// within reports whether path lies under root.
func within(root, path string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}
