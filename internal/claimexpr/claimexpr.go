// Package claimexpr parses "property=value" claim expressions given on the
// command line.
//
// A property is a property id ("P12"), a known property ("@instance_of") or,
// for searches only, a prefixed predicate ("rdfs:label"). A value is a known
// item ("@producer"), an item reference ("wd:Q42") or a string.
package claimexpr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"transit-topo/internal/known"
	"transit-topo/internal/wikibase"
)

var itemRefRegex = regexp.MustCompile(`^wd:(Q[1-9][0-9]*)$`)

// ErrNoExpressions is returned when a search has nothing to match on.
var ErrNoExpressions = errors.New("no claims provided, cannot find anything")

// Expr is a parsed claim expression. Known names are already resolved.
type Expr struct {
	Property  string // property id, empty when Predicate is set
	Predicate string // prefixed predicate, search only
	Value     wikibase.Value
}

// Parse parses one expression, resolving "@name" against e.
func Parse(expr string, e *known.Entities) (Expr, error) {
	prop, value, ok := strings.Cut(expr, "=")
	prop = strings.TrimSpace(prop)
	if !ok || prop == "" {
		return Expr{}, fmt.Errorf("could not parse claim %q, expected property=value", expr)
	}

	var out Expr
	switch {
	case strings.HasPrefix(prop, "@"):
		id, err := e.Property(prop[1:])
		if err != nil {
			return Expr{}, fmt.Errorf("claim %q: %w", expr, err)
		}
		out.Property = id
	case wikibase.IsPropertyID(prop):
		out.Property = prop
	case strings.HasPrefix(prop, "wdt:") && wikibase.IsPropertyID(prop[len("wdt:"):]):
		out.Property = prop[len("wdt:"):]
	case strings.Contains(prop, ":"):
		out.Predicate = prop
	default:
		return Expr{}, fmt.Errorf("claim %q: %q is neither a property id nor a known property", expr, prop)
	}

	switch {
	case strings.HasPrefix(value, "@"):
		id, err := e.Item(value[1:])
		if err != nil {
			return Expr{}, fmt.Errorf("claim %q: %w", expr, err)
		}
		out.Value = wikibase.ItemValue(id)
	case itemRefRegex.MatchString(value):
		out.Value = wikibase.ItemValue(itemRefRegex.FindStringSubmatch(value)[1])
	default:
		out.Value = wikibase.StringValue(strings.TrimSuffix(strings.TrimPrefix(value, "<"), ">"))
	}
	return out, nil
}

// ParseAll parses every expression, stopping at the first error.
func ParseAll(exprs []string, e *known.Entities) ([]Expr, error) {
	out := make([]Expr, 0, len(exprs))
	for _, s := range exprs {
		x, err := Parse(s, e)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// Label matches entities by English label.
func Label(label string) Expr {
	return Expr{Predicate: "rdfs:label", Value: wikibase.StringValue(label)}
}

func (x Expr) term() string {
	if s, ok := x.Value.(wikibase.StringValue); ok && x.Predicate == "rdfs:label" {
		return wikibase.StringLiteral(string(s)) + "@en"
	}
	return x.Value.Term()
}

// Pattern renders the expressions as a query pattern on ?item.
func Pattern(exprs []Expr) (string, error) {
	if len(exprs) == 0 {
		return "", ErrNoExpressions
	}
	parts := make([]string, len(exprs))
	for i, x := range exprs {
		pred := x.Predicate
		if pred == "" {
			pred = wikibase.PropertyTerm(x.Property)
		}
		parts[i] = pred + " " + x.term()
	}
	return "?item " + strings.Join(parts, "; ") + ".", nil
}

// Claims converts the expressions into claims to write.
func Claims(exprs []Expr) ([]wikibase.Claim, error) {
	out := make([]wikibase.Claim, 0, len(exprs))
	for _, x := range exprs {
		if x.Predicate != "" {
			return nil, fmt.Errorf("%s can only be used to search", x.Predicate)
		}
		out = append(out, wikibase.Claim{Property: x.Property, Value: x.Value})
	}
	return out, nil
}
