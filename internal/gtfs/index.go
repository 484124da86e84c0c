package gtfs

import "sort"

// StopsByRoute returns, for every route referenced by a trip, the sorted set of
// distinct stop ids visited by the route's trips.
func (f *Feed) StopsByRoute() map[string][]string {
	routeOfTrip := make(map[string]string, len(f.Trips))
	for _, t := range f.Trips {
		routeOfTrip[t.ID] = t.RouteID
	}

	sets := make(map[string]map[string]struct{})
	for _, st := range f.StopTimes {
		routeID, ok := routeOfTrip[st.TripID]
		if !ok || st.StopID == "" {
			continue
		}
		set, ok := sets[routeID]
		if !ok {
			set = make(map[string]struct{})
			sets[routeID] = set
		}
		set[st.StopID] = struct{}{}
	}

	out := make(map[string][]string, len(sets))
	for routeID, set := range sets {
		stops := make([]string, 0, len(set))
		for id := range set {
			stops = append(stops, id)
		}
		sort.Strings(stops)
		out[routeID] = stops
	}
	return out
}
