package gtfs

import "strconv"

// RouteType is the route_type column of routes.txt, including the extended
// (hierarchical vehicle type) codes.
type RouteType int

const (
	RouteTramway    RouteType = 0
	RouteSubway     RouteType = 1
	RouteRail       RouteType = 2
	RouteBus        RouteType = 3
	RouteFerry      RouteType = 4
	RouteCableCar   RouteType = 5
	RouteGondola    RouteType = 6
	RouteFunicular  RouteType = 7
	RouteTrolleybus RouteType = 11
	RouteMonorail   RouteType = 12
)

// Mode collapses a route type, basic or extended, onto one of the basic modes.
// ok is false for codes with no sensible basic equivalent.
func (t RouteType) Mode() (mode RouteType, ok bool) {
	switch {
	case t >= RouteTramway && t <= RouteFunicular:
		return t, true
	case t == RouteTrolleybus:
		return RouteBus, true
	case t == RouteMonorail:
		return RouteRail, true
	case t >= 100 && t < 200: // railway service
		return RouteRail, true
	case t >= 200 && t < 300: // coach service
		return RouteBus, true
	case t >= 400 && t < 500: // urban railway service
		return RouteSubway, true
	case t >= 700 && t < 900: // bus and trolleybus service
		return RouteBus, true
	case t >= 900 && t < 1000: // tram service
		return RouteTramway, true
	case t >= 1000 && t < 1300: // water transport and ferry service
		return RouteFerry, true
	case t >= 1300 && t < 1400: // aerial lift service
		return RouteGondola, true
	case t >= 1400 && t < 1500:
		return RouteFunicular, true
	}
	return 0, false
}

func (t RouteType) String() string {
	mode, ok := t.Mode()
	if !ok {
		return "Other"
	}
	switch mode {
	case RouteTramway:
		return "Tramway"
	case RouteSubway:
		return "Subway"
	case RouteRail:
		return "Rail"
	case RouteBus:
		return "Bus"
	case RouteFerry:
		return "Ferry"
	case RouteCableCar:
		return "CableCar"
	case RouteGondola:
		return "Gondola"
	case RouteFunicular:
		return "Funicular"
	}
	return "RouteType(" + strconv.Itoa(int(t)) + ")"
}

// LocationType is the location_type column of stops.txt. An empty column means
// StopPoint.
type LocationType int

const (
	StopPoint LocationType = iota
	StopArea
	StationEntrance
	GenericNode
	BoardingArea
)

func (l LocationType) String() string {
	switch l {
	case StopPoint:
		return "StopPoint"
	case StopArea:
		return "StopArea"
	case StationEntrance:
		return "StationEntrance"
	case GenericNode:
		return "GenericNode"
	case BoardingArea:
		return "BoardingArea"
	}
	return "LocationType(" + strconv.Itoa(int(l)) + ")"
}
