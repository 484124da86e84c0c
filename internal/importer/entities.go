package importer

import (
	"context"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/topo"
)

func matchIDs(ms []topo.Match) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}

// uniqueRoutes drops records repeating an already seen route id.
func (r *run) uniqueRoutes() []gtfs.Route {
	seen := make(map[string]bool, len(r.feed.Routes))
	out := make([]gtfs.Route, 0, len(r.feed.Routes))
	for _, route := range r.feed.Routes {
		if seen[route.ID] {
			r.im.logger.Warn("route listed twice in the feed, keeping the first one", "gtfs_id", route.ID)
			continue
		}
		seen[route.ID] = true
		out = append(out, route)
	}
	return out
}

func (r *run) uniqueStops() []gtfs.Stop {
	seen := make(map[string]bool, len(r.feed.Stops))
	out := make([]gtfs.Stop, 0, len(r.feed.Stops))
	for _, s := range r.feed.Stops {
		if seen[s.ID] {
			r.im.logger.Warn("stop listed twice in the feed, keeping the first one", "gtfs_id", s.ID)
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

func (r *run) importRoutes(ctx context.Context) error {
	routes := r.uniqueRoutes()
	return r.im.each(ctx, len(routes), func(ctx context.Context, i int) error {
		return r.importRoute(ctx, routes[i])
	})
}

func (r *run) importRoute(ctx context.Context, route gtfs.Route) error {
	found, err := r.im.store.FindRoute(ctx, r.producer.ID, route.ID)
	if err != nil {
		return err
	}

	var id string
	var outcome Outcome
	switch len(found) {
	case 0:
		id, err = r.im.store.InsertRoute(ctx, route, r.dataSource(), r.producer.Name)
		if err != nil {
			return err
		}
		outcome = Created
		r.im.logger.Debug("route created", "gtfs_id", route.ID, "id", id)
	case 1:
		id, outcome = found[0].ID, Found
		r.im.logger.Debug("route already imported", "gtfs_id", route.ID, "id", id)
	default:
		return &DuplicateEntityError{Kind: KindRoute, GTFSID: route.ID, IDs: matchIDs(found)}
	}

	r.mu.Lock()
	r.routes[route.ID] = id
	if outcome == Created {
		r.summary.RoutesCreated++
	} else {
		r.summary.RoutesFound++
	}
	r.mu.Unlock()
	r.im.notifyEntity(EntityEvent{Kind: KindRoute, GTFSID: route.ID, EntityID: id, Outcome: outcome})
	return nil
}

func (r *run) importStops(ctx context.Context) error {
	stops := r.uniqueStops()
	return r.im.each(ctx, len(stops), func(ctx context.Context, i int) error {
		return r.importStop(ctx, stops[i])
	})
}

func (r *run) importStop(ctx context.Context, stop gtfs.Stop) error {
	found, err := r.im.store.FindStop(ctx, r.producer.ID, stop)
	if err != nil {
		return err
	}

	var res resolved
	switch len(found) {
	case 0:
		id, err := r.im.store.InsertStop(ctx, stop, r.dataSource())
		if err != nil {
			return err
		}
		res = resolved{id: id, outcome: Created}
	case 1:
		res = resolved{id: found[0].ID, outcome: Found}
		if r.im.opts.UpdateStops {
			if err := r.im.store.RefreshStop(ctx, res.id, stop, r.dataSource(), found[0].FirstSeenIn); err != nil {
				return err
			}
			res.outcome = Updated
		}
	default:
		return &DuplicateEntityError{Kind: KindStop, GTFSID: stop.ID, IDs: matchIDs(found)}
	}
	r.im.logger.Debug("stop resolved", "gtfs_id", stop.ID, "id", res.id, "outcome", res.outcome)

	r.mu.Lock()
	r.stops[stop.ID] = res
	switch res.outcome {
	case Created:
		r.summary.StopsCreated++
	case Found:
		r.summary.StopsFound++
	case Updated:
		r.summary.StopsUpdated++
	}
	r.mu.Unlock()
	r.im.notifyEntity(EntityEvent{Kind: KindStop, GTFSID: stop.ID, EntityID: res.id, Outcome: res.outcome})
	return nil
}
