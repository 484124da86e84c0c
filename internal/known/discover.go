package known

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"transit-topo/internal/wikibase"
)

var (
	// ErrSchemaNotFound means no entity carries the marker for a symbolic name.
	ErrSchemaNotFound = errors.New("schema element not found")
	// ErrAmbiguousSchema means several entities carry the same marker value.
	ErrAmbiguousSchema = errors.New("schema element is ambiguous")
)

// Discover resolves every symbolic name through the marker property. The
// first missing or ambiguous name aborts discovery.
func Discover(ctx context.Context, q wikibase.Querier, markerProperty string) (*Entities, error) {
	if !wikibase.IsPropertyID(markerProperty) {
		return nil, fmt.Errorf("invalid marker property %q", markerProperty)
	}
	b := NewBuilder()
	if err := b.Set(MarkerName, markerProperty); err != nil {
		return nil, err
	}
	for _, el := range Schema {
		id, err := Lookup(ctx, q, markerProperty, el.Name)
		if err != nil {
			return nil, err
		}
		if err := b.Set(el.Name, id); err != nil {
			return nil, err
		}
	}
	slog.Debug("known entities discovered", "marker", markerProperty, "count", len(Schema)+1)
	return b.Build()
}

// Lookup returns the single entity whose marker value is name.
func Lookup(ctx context.Context, q wikibase.Querier, markerProperty, name string) (string, error) {
	pattern := fmt.Sprintf("?item %s %s.", wikibase.PropertyTerm(markerProperty), wikibase.StringLiteral(name))
	rows, err := q.Query(ctx, []string{"item"}, pattern)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", name, err)
	}
	switch len(rows) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	case 1:
	default:
		return "", fmt.Errorf("%w: %s has %d entities", ErrAmbiguousSchema, name, len(rows))
	}
	id, err := wikibase.IDFromURL(rows[0]["item"])
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", name, err)
	}
	return id, nil
}
