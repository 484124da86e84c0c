package importer

import (
	"context"
	"slices"
	"sort"

	"transit-topo/internal/wikibase"
)

func (r *run) record(ev LinkEvent) {
	r.mu.Lock()
	switch ev.Outcome {
	case Added:
		r.summary.LinksAdded++
	case Existing:
		r.summary.LinksExisting++
	case Skipped:
		r.summary.LinksSkipped++
	}
	r.mu.Unlock()
	r.im.notifyLink(ev)
}

func (r *run) stop(id string) (resolved, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stops[id]
	return s, ok
}

func (r *run) route(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.routes[id]
	return s, ok
}

// existingLinks returns the current targets of property on a stop. Stops
// created or refreshed by this run have none.
func (r *run) existingLinks(ctx context.Context, s resolved, property string) ([]string, error) {
	if s.outcome != Found {
		return nil, nil
	}
	return r.im.store.LinkedEntities(ctx, s.id, property)
}

// linkParents adds a part_of claim from every stop to its parent station.
func (r *run) linkParents(ctx context.Context) error {
	var children []string
	parentOf := make(map[string]string)
	for _, s := range r.uniqueStops() {
		if s.ParentStation == "" {
			continue
		}
		children = append(children, s.ID)
		parentOf[s.ID] = s.ParentStation
	}
	partOf := r.im.e.Properties.PartOf

	return r.im.each(ctx, len(children), func(ctx context.Context, i int) error {
		ev := LinkEvent{Relation: RelationPartOf, From: children[i], To: parentOf[children[i]]}
		child, childOK := r.stop(ev.From)
		parent, parentOK := r.stop(ev.To)
		ev.FromID, ev.ToID = child.id, parent.id
		if !childOK || !parentOK {
			r.im.logger.Warn("impossible to link a stop to its parent, one of them was not imported",
				"stop", ev.From, "stop_found", childOK, "parent", ev.To, "parent_found", parentOK)
			ev.Outcome = Skipped
			r.record(ev)
			return nil
		}

		existing, err := r.existingLinks(ctx, child, partOf)
		if err != nil {
			return err
		}
		if slices.Contains(existing, parent.id) {
			ev.Outcome = Existing
			r.record(ev)
			return nil
		}
		if err := r.im.store.AddClaims(ctx, child.id, wikibase.Item(partOf, parent.id)); err != nil {
			return err
		}
		ev.Outcome = Added
		r.record(ev)
		return nil
	})
}

// linkRoutes adds a connecting_line claim from every stop to each route
// whose trips visit it. Claims of one stop are written in a single edit.
func (r *run) linkRoutes(ctx context.Context) error {
	routesOf := make(map[string][]string)
	for routeID, stops := range r.feed.StopsByRoute() {
		for _, s := range stops {
			routesOf[s] = append(routesOf[s], routeID)
		}
	}
	stopIDs := make([]string, 0, len(routesOf))
	for s, routes := range routesOf {
		sort.Strings(routes)
		stopIDs = append(stopIDs, s)
	}
	sort.Strings(stopIDs)
	connecting := r.im.e.Properties.ConnectingLine

	return r.im.each(ctx, len(stopIDs), func(ctx context.Context, i int) error {
		stopID := stopIDs[i]
		stop, stopOK := r.stop(stopID)

		var events []LinkEvent
		var targets []string
		for _, routeID := range routesOf[stopID] {
			ev := LinkEvent{Relation: RelationConnectingLine, From: stopID, To: routeID, FromID: stop.id}
			routeEntity, routeOK := r.route(routeID)
			ev.ToID = routeEntity
			if !stopOK || !routeOK {
				r.im.logger.Warn("impossible to link a stop to a route, one of them was not imported",
					"stop", stopID, "stop_found", stopOK, "route", routeID, "route_found", routeOK)
				ev.Outcome = Skipped
				r.record(ev)
				continue
			}
			events = append(events, ev)
			targets = append(targets, routeEntity)
		}
		if len(targets) == 0 {
			return nil
		}

		existing, err := r.existingLinks(ctx, stop, connecting)
		if err != nil {
			return err
		}
		var claims []wikibase.Claim
		for j, target := range targets {
			if slices.Contains(existing, target) {
				events[j].Outcome = Existing
				continue
			}
			claims = append(claims, wikibase.Item(connecting, target))
			events[j].Outcome = Added
		}
		if len(claims) > 0 {
			if err := r.im.store.AddClaims(ctx, stop.id, claims...); err != nil {
				return err
			}
		}
		for _, ev := range events {
			r.record(ev)
		}
		return nil
	})
}
