package query

import (
	"strings"
)

// Kind selects how a predicate compares its field.
type Kind int

const (
	// Equals matches the raw value exactly.
	Equals Kind = iota
	// Contains matches the value as a substring.
	Contains
)

func (k Kind) String() string {
	switch k {
	case Equals:
		return "equals"
	case Contains:
		return "contains"
	default:
		return "unknown"
	}
}

// Predicate is a single (field, kind, value) condition.
type Predicate struct {
	Field Field
	Kind  Kind
	Value string
}

// Eq builds an exact-match predicate.
func Eq(f Field, value string) Predicate {
	return Predicate{Field: f, Kind: Equals, Value: value}
}

// Like builds a substring predicate.
func Like(f Field, value string) Predicate {
	return Predicate{Field: f, Kind: Contains, Value: value}
}

// New picks Eq or Like depending on fuzzy.
func New(f Field, value string, fuzzy bool) Predicate {
	if fuzzy {
		return Like(f, value)
	}
	return Eq(f, value)
}

func (p Predicate) validate() error {
	if !p.Field.Valid() {
		return newValidationError(ConstraintUnknownField, "unknown search field %q", string(p.Field))
	}
	if p.Kind != Equals && p.Kind != Contains {
		return newValidationError(ConstraintUnknownKind, "unknown comparison kind %d", int(p.Kind))
	}
	return nil
}

// Connector joins two adjacent predicates of a chain.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// ParseConnector accepts "and"/"or" in any case.
func ParseConnector(s string) (Connector, error) {
	switch c := Connector(strings.ToUpper(strings.TrimSpace(s))); c {
	case And, Or:
		return c, nil
	default:
		return "", newValidationError(ConstraintInvalidConnector, "invalid connector %q, want AND or OR", s)
	}
}

// Chain is an ordered list of predicates joined left to right. Connectors[i]
// sits between Predicates[i] and Predicates[i+1].
type Chain struct {
	Predicates []Predicate
	Connectors []Connector
}

// Single wraps one predicate in a chain.
func Single(p Predicate) Chain {
	return Chain{Predicates: []Predicate{p}}
}

// Len returns the number of predicates.
func (c Chain) Len() int {
	return len(c.Predicates)
}

// Validate checks the chain shape and every member. An empty chain is valid
// and matches all rows; callers that require a condition check Len first.
func (c Chain) Validate() error {
	if len(c.Predicates) == 0 {
		if len(c.Connectors) != 0 {
			return newValidationError(ConstraintConnectorCount,
				"got %d connectors for an empty chain", len(c.Connectors))
		}
		return nil
	}
	if len(c.Connectors) != len(c.Predicates)-1 {
		return newValidationError(ConstraintConnectorCount,
			"got %d connectors for %d predicates, want %d",
			len(c.Connectors), len(c.Predicates), len(c.Predicates)-1)
	}
	for _, conn := range c.Connectors {
		if conn != And && conn != Or {
			return newValidationError(ConstraintInvalidConnector, "invalid connector %q, want AND or OR", string(conn))
		}
	}
	for _, p := range c.Predicates {
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}
