package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type searchOptions struct {
	field    string
	query    string
	fuzzy    bool
	fields   []string
	queries  []string
	logics   []string
	fuzzies  []bool
	page     int
	pageSize int
	shards   []string
}

var searchFlags searchOptions

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search and print the page as JSON",
	Example: `  booksearch search --shards fiction,poetry --field title --query dune --fuzzy
  booksearch search --shards fiction --fields author,title --queries "Herbert,Dune" --logics and`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()
		return runSearch(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchFlags.field, "field", "f", "", "field for a simple search (default search.default_field)")
	f.StringVarP(&searchFlags.query, "query", "q", "", "value for a simple search; empty matches everything")
	f.BoolVar(&searchFlags.fuzzy, "fuzzy", false, "substring match instead of equality")
	f.StringSliceVar(&searchFlags.fields, "fields", nil, "fields of an advanced search")
	f.StringSliceVar(&searchFlags.queries, "queries", nil, "values of an advanced search, one per field")
	f.StringSliceVar(&searchFlags.logics, "logics", nil, "AND/OR connectors, one fewer than fields")
	f.BoolSliceVar(&searchFlags.fuzzies, "fuzzies", nil, "fuzzy flag per field (default all false)")
	f.IntVar(&searchFlags.page, "page", 1, "page number")
	f.IntVar(&searchFlags.pageSize, "page-size", 0, "rows per page (default search.page_size)")
	f.StringSliceVarP(&searchFlags.shards, "shards", "s", nil, "shards to search")
}

func runSearch(ctx context.Context, a *app, out io.Writer) error {
	pageSize := searchFlags.pageSize
	if pageSize == 0 {
		pageSize = a.cfg.Search.PageSize
	}
	params := searchParams{
		Field:    searchFlags.field,
		Query:    searchFlags.query,
		Fuzzy:    searchFlags.fuzzy,
		Fields:   searchFlags.fields,
		Queries:  searchFlags.queries,
		Logics:   searchFlags.logics,
		Fuzzies:  searchFlags.fuzzies,
		Page:     searchFlags.page,
		PageSize: pageSize,
		Shards:   searchFlags.shards,
	}
	req, err := params.request(a.cfg.Search.DefaultField)
	if err != nil {
		return err
	}
	resp, err := a.svc.Search(ctx, req, a.available())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
