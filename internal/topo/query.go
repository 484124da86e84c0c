// Package topo holds the transit specific reads and writes against the store.
package topo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/known"
	"transit-topo/internal/wikibase"
)

// ErrAmbiguousProducer means a producer name matches several entities.
var ErrAmbiguousProducer = errors.New("ambiguous producer")

// Directory looks entities up through the write API.
type Directory interface {
	Label(ctx context.Context, id string) (string, error)
	SearchEntities(ctx context.Context, label string, typ wikibase.EntityType) ([]wikibase.SearchResult, error)
	ItemClaims(ctx context.Context, id, property string) ([]string, error)
}

// Match is an existing entity returned by a find query.
type Match struct {
	ID          string
	FirstSeenIn string // data source that first imported the entity, if known
}

type Query struct {
	q      wikibase.Querier
	dir    Directory
	e      *known.Entities
	logger *slog.Logger
}

func NewQuery(q wikibase.Querier, dir Directory, e *known.Entities, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{q: q, dir: dir, e: e, logger: logger}
}

// scoped is the pattern shared by route and stop lookups: an entity of the
// given type and gtfs id, imported by a data source of the producer.
func (q *Query) scoped(v, typeID, gtfsID, producerID string) string {
	p := q.e.Properties
	return fmt.Sprintf(
		"?%[1]s %[2]s %[3]s. ?%[1]s %[4]s %[5]s. ?%[1]s %[6]s ?data_source. ?data_source %[7]s %[8]s. "+
			"OPTIONAL { ?%[1]s %[9]s ?first_seen_in. }",
		v,
		wikibase.PropertyTerm(p.InstanceOf), wikibase.ItemTerm(typeID),
		wikibase.PropertyTerm(p.GTFSID), wikibase.StringLiteral(gtfsID),
		wikibase.PropertyTerm(p.DataSource),
		wikibase.PropertyTerm(p.ProducedBy), wikibase.ItemTerm(producerID),
		wikibase.PropertyTerm(p.FirstSeenIn),
	)
}

// FindRoute returns the routes of the producer with the given gtfs id. No
// match is an empty slice, not an error.
func (q *Query) FindRoute(ctx context.Context, producerID, routeID string) ([]Match, error) {
	q.logger.Debug("finding route", "gtfs_id", routeID, "producer", producerID)
	rows, err := q.q.Query(ctx, []string{"route", "first_seen_in"}, q.scoped("route", q.e.Items.Route, routeID, producerID))
	if err != nil {
		return nil, fmt.Errorf("find route %s: %w", routeID, err)
	}
	return matches(rows, "route")
}

// FindStop returns the stops of the producer with the stop's gtfs id and
// taxonomy type.
func (q *Query) FindStop(ctx context.Context, producerID string, stop gtfs.Stop) ([]Match, error) {
	q.logger.Debug("finding stop", "gtfs_id", stop.ID, "name", stop.Name, "producer", producerID)
	typeID := q.e.LocationType(stop.LocationType)
	rows, err := q.q.Query(ctx, []string{"stop", "first_seen_in"}, q.scoped("stop", typeID, stop.ID, producerID))
	if err != nil {
		return nil, fmt.Errorf("find stop %s: %w", stop.ID, err)
	}
	return matches(rows, "stop")
}

// matches turns rows into distinct entities. An entity linked to several
// data sources of the producer yields several rows.
func matches(rows []wikibase.Row, v string) ([]Match, error) {
	var out []Match
	seen := make(map[string]int)
	for _, r := range rows {
		id, err := wikibase.IDFromURL(r[v])
		if err != nil {
			return nil, err
		}
		var first string
		if r["first_seen_in"] != "" {
			if first, err = wikibase.IDFromURL(r["first_seen_in"]); err != nil {
				return nil, err
			}
		}
		if i, ok := seen[id]; ok {
			if out[i].FirstSeenIn == "" {
				out[i].FirstSeenIn = first
			}
			continue
		}
		seen[id] = len(out)
		out = append(out, Match{ID: id, FirstSeenIn: first})
	}
	return out, nil
}

// LinkedEntities returns the items subject points to through property.
func (q *Query) LinkedEntities(ctx context.Context, subject, property string) ([]string, error) {
	pattern := fmt.Sprintf("%s %s ?target.", wikibase.ItemTerm(subject), wikibase.PropertyTerm(property))
	rows, err := q.q.Query(ctx, []string{"target"}, pattern)
	if err != nil {
		return nil, fmt.Errorf("claims of %s: %w", subject, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		id, err := wikibase.IDFromURL(r["target"])
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ProducerLabel returns the label of a producer item. An entity that is not
// a producer is reported as not found.
func (q *Query) ProducerLabel(ctx context.Context, id string) (string, error) {
	pattern := fmt.Sprintf(`%s %s %s; rdfs:label ?label. FILTER(LANG(?label) = "en")`,
		wikibase.ItemTerm(id), wikibase.PropertyTerm(q.e.Properties.InstanceOf), wikibase.ItemTerm(q.e.Items.Producer))
	rows, err := q.q.Query(ctx, []string{"label"}, pattern)
	if err != nil {
		return "", fmt.Errorf("producer %s: %w", id, err)
	}
	switch len(rows) {
	case 0:
		return "", fmt.Errorf("producer %s: %w", id, wikibase.ErrNotFound)
	case 1:
		return rows[0]["label"], nil
	}
	return "", fmt.Errorf("%w: %s has %d labels", ErrAmbiguousProducer, id, len(rows))
}

// isProducer reads the instance of claims of id from the write API.
func (q *Query) isProducer(ctx context.Context, id string) (bool, error) {
	types, err := q.dir.ItemClaims(ctx, id, q.e.Properties.InstanceOf)
	if err != nil {
		return false, err
	}
	return slices.Contains(types, q.e.Items.Producer), nil
}

// FindProducer returns the single producer labelled name. Items with that
// label which are not producers are ignored.
func (q *Query) FindProducer(ctx context.Context, name string) (string, error) {
	results, err := q.dir.SearchEntities(ctx, name, wikibase.ItemEntity)
	if err != nil {
		return "", fmt.Errorf("search producer %q: %w", name, err)
	}
	var ids []string
	for _, r := range results {
		if !strings.EqualFold(r.Label, name) {
			continue
		}
		ok, err := q.isProducer(ctx, r.ID)
		if err != nil {
			return "", fmt.Errorf("search producer %q: %w", name, err)
		}
		if !ok {
			q.logger.Debug("skipping namesake that is not a producer", "name", name, "id", r.ID)
			continue
		}
		ids = append(ids, r.ID)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("producer %q: %w", name, wikibase.ErrNotFound)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousProducer, name, strings.Join(ids, ", "))
}

// ResolveProducer accepts either an item identifier or a producer name and
// returns both the identifier and the label.
func (q *Query) ResolveProducer(ctx context.Context, ref string) (id, label string, err error) {
	if wikibase.IsItemID(ref) {
		q.logger.Info("searching the producer by id", "id", ref)
		label, err := q.ProducerLabel(ctx, ref)
		if errors.Is(err, wikibase.ErrNotFound) {
			// recent edits can take a while to reach the query service
			q.logger.Warn("producer not visible as a producer in the query service, reading the entity", "id", ref)
			label, err = q.producerFromAPI(ctx, ref)
		}
		if err != nil {
			return "", "", err
		}
		return ref, label, nil
	}
	q.logger.Info("searching the producer by name", "name", ref)
	id, err = q.FindProducer(ctx, ref)
	if err != nil {
		return "", "", err
	}
	return id, ref, nil
}

// producerFromAPI returns the label of id once its claims show it is a
// producer.
func (q *Query) producerFromAPI(ctx context.Context, id string) (string, error) {
	ok, err := q.isProducer(ctx, id)
	if err != nil {
		return "", fmt.Errorf("producer %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("producer %s: not an instance of producer: %w", id, wikibase.ErrNotFound)
	}
	return q.dir.Label(ctx, id)
}
