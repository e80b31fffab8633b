package query

import (
	"strings"
)

var defaultCompiler Compiler = SQLite{}

// BuildSimple compiles a single-field search. An empty field matches every
// row. fuzzy selects a substring match with the value wrapped in wildcards.
func BuildSimple(field, value string, fuzzy bool, pageSize, page int) (Compiled, error) {
	limit, err := PageLimit(pageSize, page)
	if err != nil {
		return Compiled{}, err
	}
	chain, err := SimpleChain(field, value, fuzzy)
	if err != nil {
		return Compiled{}, err
	}
	return defaultCompiler.Compile(chain, limit)
}

// SimpleChain returns the chain of a single-field search, or the empty
// match-all chain when field is blank.
func SimpleChain(field, value string, fuzzy bool) (Chain, error) {
	if strings.TrimSpace(field) == "" {
		return Chain{}, nil
	}
	f, err := ParseField(field)
	if err != nil {
		return Chain{}, err
	}
	return Single(New(f, value, fuzzy)), nil
}

// ParseChain converts the parallel string slices of an advanced search into a
// Chain, checking every shape constraint on the way.
func ParseChain(fields, values, connectors []string, fuzzy []bool) (Chain, error) {
	if len(fields) == 0 {
		return Chain{}, newValidationError(ConstraintEmptyChain, "advanced search needs at least one field")
	}
	if len(values) != len(fields) {
		return Chain{}, newValidationError(ConstraintLengthMismatch,
			"got %d values for %d fields", len(values), len(fields))
	}
	if len(fuzzy) != len(fields) {
		return Chain{}, newValidationError(ConstraintLengthMismatch,
			"got %d fuzzy flags for %d fields", len(fuzzy), len(fields))
	}
	if len(connectors) != len(fields)-1 {
		return Chain{}, newValidationError(ConstraintConnectorCount,
			"got %d connectors for %d fields, want %d", len(connectors), len(fields), len(fields)-1)
	}

	chain := Chain{
		Predicates: make([]Predicate, 0, len(fields)),
		Connectors: make([]Connector, 0, len(connectors)),
	}
	for _, raw := range connectors {
		c, err := ParseConnector(raw)
		if err != nil {
			return Chain{}, err
		}
		chain.Connectors = append(chain.Connectors, c)
	}
	for i, raw := range fields {
		f, err := ParseField(raw)
		if err != nil {
			return Chain{}, err
		}
		chain.Predicates = append(chain.Predicates, New(f, values[i], fuzzy[i]))
	}
	return chain, nil
}

// BuildAdvanced compiles a boolean-chained search over several fields.
func BuildAdvanced(fields, values, connectors []string, fuzzy []bool, pageSize, page int) (Compiled, error) {
	chain, err := ParseChain(fields, values, connectors, fuzzy)
	if err != nil {
		return Compiled{}, err
	}
	limit, err := PageLimit(pageSize, page)
	if err != nil {
		return Compiled{}, err
	}
	return defaultCompiler.Compile(chain, limit)
}
