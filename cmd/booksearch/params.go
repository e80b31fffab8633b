package main

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/search"
)

// searchParams is a search as it arrives over a transport: plain strings.
// When Fields is set the search is advanced and Field/Query/Fuzzy are ignored.
type searchParams struct {
	Field string
	Query string
	Fuzzy bool

	Fields  []string
	Queries []string
	Logics  []string
	Fuzzies []bool

	Page     int
	PageSize int
	Shards   []string
}

// request validates p and turns it into a search request. defaultField is
// used when a simple search carries a query but no field.
func (p searchParams) request(defaultField string) (search.Request, error) {
	var (
		chain query.Chain
		err   error
	)
	if len(p.Fields) > 0 {
		fuzzies := p.Fuzzies
		if len(fuzzies) == 0 {
			fuzzies = make([]bool, len(p.Fields))
		}
		chain, err = query.ParseChain(p.Fields, p.Queries, p.Logics, fuzzies)
	} else {
		field := p.Field
		if field == "" && p.Query != "" {
			field = defaultField
		}
		chain, err = query.SimpleChain(field, p.Query, p.Fuzzy)
	}
	if err != nil {
		return search.Request{}, err
	}
	if _, err := query.PageLimit(p.PageSize, p.Page); err != nil {
		return search.Request{}, err
	}
	return search.Request{
		Chain:    chain,
		Page:     p.Page,
		PageSize: p.PageSize,
		Shards:   p.Shards,
	}, nil
}

// paramError is a malformed transport value, such as a non-numeric page.
type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for parameter " + e.name
}

// parseSearchQuery reads searchParams from URL query values.
func parseSearchQuery(v url.Values, defaultPageSize int) (searchParams, error) {
	p := searchParams{
		Field:    strings.TrimSpace(v.Get("field")),
		Query:    v.Get("q"),
		Fields:   listParam(v, "fields"),
		Queries:  listParam(v, "queries"),
		Logics:   listParam(v, "logics"),
		Shards:   listParam(v, "shards"),
		Page:     1,
		PageSize: defaultPageSize,
	}

	var err error
	if s := v.Get("fuzzy"); s != "" {
		if p.Fuzzy, err = strconv.ParseBool(s); err != nil {
			return p, &paramError{name: "fuzzy", value: s}
		}
	}
	for _, s := range listParam(v, "fuzzies") {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return p, &paramError{name: "fuzzies", value: s}
		}
		p.Fuzzies = append(p.Fuzzies, b)
	}
	if s := v.Get("page"); s != "" {
		if p.Page, err = strconv.Atoi(s); err != nil {
			return p, &paramError{name: "page", value: s}
		}
	}
	if s := v.Get("page_size"); s != "" {
		if p.PageSize, err = strconv.Atoi(s); err != nil {
			return p, &paramError{name: "page_size", value: s}
		}
	}
	return p, nil
}

// listParam accepts either a repeated parameter or one comma-separated
// value. Repeated parameters are taken verbatim so values may hold commas.
func listParam(v url.Values, key string) []string {
	raw := v[key]
	switch len(raw) {
	case 0:
		return nil
	case 1:
		if raw[0] == "" {
			return nil
		}
		return splitList(raw[0])
	default:
		return raw
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}
