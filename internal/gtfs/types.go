package gtfs

// Feed holds the records of one GTFS dataset. It is never mutated once loaded.
type Feed struct {
	Source    string // path or URL the feed was read from
	SHA256    string // hex checksum of the zip archive, empty for unpacked directories
	Agencies  []Agency
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

type Agency struct {
	ID   string
	Name string
	URL  string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Type      RouteType
	Color     string
	TextColor string
}

// PreferredName is the long name when present, the short name otherwise.
func (r Route) PreferredName() string {
	if r.LongName != "" {
		return r.LongName
	}
	return r.ShortName
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Lat           float64
	Lon           float64
	HasCoord      bool
	LocationType  LocationType
	ParentStation string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int
	ShapeID     string
}

type StopTime struct {
	TripID        string
	StopID        string
	StopSequence  int
	ArrivalTime   string // HH:MM:SS, may exceed 24h
	DepartureTime string
}
