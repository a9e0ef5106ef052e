package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/services"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		types    []string
		limit    int
		offset   int
		userID   string
		jsonOut  bool
		sortBy   string
		sortDesc bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the document store",
		Long: `Search every entity type of the configured document store. Inline filters such as
"pe_ratio<15" or "sector:technology" are understood.

Examples:
  entity-search search "aapl"
  entity-search search "technology pe_ratio<15" --type company --limit 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.sync()
			defer func() { _ = eng.Close() }()

			q := services.SearchQuery{
				Query:  strings.Join(args, " "),
				Limit:  limit,
				Offset: offset,
				UserID: userID,
				SortBy: sortBy,
			}
			if sortBy != "" {
				q.SortOrder = services.SortOrderAsc
				if sortDesc {
					q.SortOrder = services.SortOrderDesc
				}
			}
			for _, t := range types {
				q.EntityTypes = append(q.EntityTypes, model.EntityType(t))
			}

			resp, err := eng.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return printResults(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "entity types to search (repeatable, default: all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of results (default from config)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of results to skip")
	cmd.Flags().StringVar(&userID, "user", "", "user id whose session shapes the ranking")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "relevance, match_score, popularity, last_updated or entity_id")
	cmd.Flags().BoolVar(&sortDesc, "desc", true, "sort descending")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	var (
		entityType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Complete a prefix from indexed titles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.sync()
			defer func() { _ = eng.Close() }()

			out, err := eng.Suggest(cmd.Context(), services.SuggestQuery{
				Prefix:     strings.Join(args, " "),
				EntityType: model.EntityType(entityType),
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			for _, s := range out {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "restrict to one entity type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of suggestions (default from config)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(w io.Writer, resp services.SearchResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tID\tTITLE\tMATCH\tSCORE")
	for i, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3f\t%.3f\n", resp.Offset+i+1, r.EntityType, r.EntityID, r.Title, r.MatchScore, r.FinalScore)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d of %d results in %dms", len(resp.Results), resp.Total, resp.SearchTimeMs)
	if resp.Degraded {
		fmt.Fprintf(w, " (degraded: timed out %v, failed %v)", resp.TimedOutEntityTypes, resp.FailedEntityTypes)
	}
	fmt.Fprintln(w)
	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(w, "did you mean: %s\n", strings.Join(resp.Suggestions, ", "))
	}
	return nil
}
