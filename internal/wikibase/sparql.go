package wikibase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Row is one result of a query: projected variable (without '?') -> value.
type Row map[string]string

// Querier runs read-only graph queries.
type Querier interface {
	Query(ctx context.Context, vars []string, pattern string) ([]Row, error)
}

var bindingsPath = jp.MustParseString("$.results.bindings")

// SPARQLClient queries the store's SPARQL endpoint.
type SPARQLClient struct {
	endpoint string
	t        *transport
}

func NewSPARQLClient(endpoint string, opts Options) *SPARQLClient {
	return &SPARQLClient{endpoint: endpoint, t: newTransport("sparql", opts)}
}

// BuildQuery assembles the SELECT query sent for vars and pattern. The label
// service is always enabled so that "?xLabel" variables can be projected.
func BuildQuery(vars []string, pattern string) string {
	projected := make([]string, len(vars))
	for i, v := range vars {
		projected[i] = "?" + strings.TrimPrefix(v, "?")
	}
	return fmt.Sprintf(
		`SELECT %s WHERE { %s SERVICE wikibase:label { bd:serviceParam wikibase:language "en". } }`,
		strings.Join(projected, " "), pattern)
}

// Query runs the pattern and returns one Row per binding. An empty result is
// not an error.
func (c *SPARQLClient) Query(ctx context.Context, vars []string, pattern string) ([]Row, error) {
	query := BuildQuery(vars, pattern)
	c.t.logger.Debug("sparql query", "query", query)

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid sparql endpoint %q: %w", c.endpoint, err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/sparql-results+json")

	status, body, err := c.t.do("query", req)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, &TransportError{Service: "sparql", Op: "query", Status: status, Err: errors.New(snippet(body))}
	}
	return parseBindings(body)
}

func parseBindings(body []byte) ([]Row, error) {
	malformed := func(err error) error {
		return &MalformedResponseError{Service: "sparql", Op: "query", Err: err}
	}

	doc, err := oj.Parse(body)
	if err != nil {
		return nil, malformed(err)
	}
	found := bindingsPath.Get(doc)
	if len(found) != 1 {
		return nil, malformed(errors.New("no bindings"))
	}
	bindings, ok := found[0].([]any)
	if !ok {
		return nil, malformed(errors.New("bindings is not an array"))
	}

	rows := make([]Row, 0, len(bindings))
	for _, b := range bindings {
		binding, ok := b.(map[string]any)
		if !ok {
			return nil, malformed(errors.New("binding badly formatted"))
		}
		row := make(Row, len(binding))
		for name, v := range binding {
			term, ok := v.(map[string]any)
			if !ok {
				return nil, malformed(fmt.Errorf("binding %q badly formatted", name))
			}
			s, ok := term["value"].(string)
			if !ok {
				return nil, malformed(fmt.Errorf("binding %q has no string value", name))
			}
			row[name] = s
		}
		rows = append(rows, row)
	}
	return rows, nil
}
