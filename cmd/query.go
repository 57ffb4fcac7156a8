package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/query"
	"github.com/spf13/cobra"
)

var (
	queryDir     string
	queryIDsOnly bool

	facetSort   string
	facetDesc   bool
	facetOffset int
	facetLimit  int

	relatedDepth int
	relatedRels  string

	searchNames bool
)

func init() {
	queryCmd.PersistentFlags().StringVarP(&queryDir, "dir", "d", "", "Corpus directory (overrides corpus.root)")
	queryCmd.PersistentFlags().BoolVar(&queryIDsOnly, "ids", false, "Print ids only, one per line")

	queryFacetsCmd.Flags().StringVar(&facetSort, "sort", "id", "Sort by id, name, updatedAt, version or relevance")
	queryFacetsCmd.Flags().BoolVar(&facetDesc, "desc", false, "Sort descending")
	queryFacetsCmd.Flags().IntVar(&facetOffset, "offset", 0, "Skip this many results")
	queryFacetsCmd.Flags().IntVar(&facetLimit, "limit", 0, "Return at most this many results (0 = all)")

	queryRelatedCmd.Flags().IntVar(&relatedDepth, "depth", 1, "Maximum link hops")
	queryRelatedCmd.Flags().StringVar(&relatedRels, "rel", "", "Comma-separated relationships to follow (default all)")

	querySearchCmd.Flags().BoolVar(&searchNames, "names", false, "Search names instead of keyword tags")

	queryCmd.AddCommand(queryIDCmd, queryFacetsCmd, queryRelatedCmd, querySearchCmd,
		queryBacklinksCmd, queryPathCmd, queryWhereCmd)
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Load a corpus once and answer one query as JSON",
}

// runQuery loads the corpus and prints whatever fn returns.
func runQuery(cmd *cobra.Command, fn func(*query.Engine) (any, error)) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	gen, err := e.load(cmd.Context(), queryDir)
	if err != nil {
		return err
	}
	result, err := fn(gen.Query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryIDsOnly {
		for _, id := range idsOf(result) {
			_, _ = fmt.Fprintln(out, id)
		}
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func idsOf(result any) []string {
	switch v := result.(type) {
	case *api.ContentRecord:
		return []string{v.ID}
	case []*api.ContentRecord:
		out := make([]string, 0, len(v))
		for _, r := range v {
			out = append(out, r.ID)
		}
		return out
	case []string:
		return v
	}
	return nil
}

var queryIDCmd = &cobra.Command{
	Use:   "id <id>",
	Short: "Fetch one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.FindByID(args[0])
		})
	},
}

var queryFacetsCmd = &cobra.Command{
	Use:     "facets <facet=value>...",
	Short:   "Records matching every facet constraint",
	Example: "  medgraph query facets system=respiratory clinicalRelevance=critical --sort version --desc",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := facet.ParseFilter(args)
		if err != nil {
			return err
		}
		opts := query.Options{
			Sort:   query.SortField(facetSort),
			Desc:   facetDesc,
			Offset: facetOffset,
			Limit:  facetLimit,
		}
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.FindByFacets(filter, opts)
		})
	},
}

var queryRelatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "Records reachable through cross-references, nearest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rels []api.Relationship
		for _, v := range strings.Split(relatedRels, ",") {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			rel := api.Relationship(v)
			if !rel.Valid() {
				return fmt.Errorf("unknown relationship %q", v)
			}
			rels = append(rels, rel)
		}
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.RelatedTo(args[0], relatedDepth, rels...)
		})
	},
}

var querySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Substring search over keyword tags (or names with --names)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			if searchNames {
				return q.SearchNames(args[0])
			}
			return q.SearchKeyword(args[0])
		})
	},
}

var queryBacklinksCmd = &cobra.Command{
	Use:   "backlinks <id>",
	Short: "Records that link to id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.Backlinks(args[0])
		})
	},
}

var queryPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Shortest cross-reference path between two records",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.Path(args[0], args[1])
		})
	},
}

var queryWhereCmd = &cobra.Command{
	Use:     "where <expr>",
	Short:   "Records for which a CEL expression over `record` is true",
	Example: `  medgraph query where 'record.version >= 2 && "respiratory" in record.tags.systems'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(q *query.Engine) (any, error) {
			return q.Where(args[0])
		})
	},
}
