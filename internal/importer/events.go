package importer

// Outcome is what happened to a feed record or link.
type Outcome string

const (
	Created Outcome = "created"
	Found   Outcome = "found"
	Updated Outcome = "updated"

	Added    Outcome = "added"
	Existing Outcome = "existing"
	Skipped  Outcome = "skipped"
)

const (
	KindDataSource = "data_source"
	KindRoute      = "route"
	KindStop       = "stop"

	RelationPartOf         = "part_of"
	RelationConnectingLine = "connecting_line"
)

type EntityEvent struct {
	Kind     string  `json:"kind"`
	GTFSID   string  `json:"gtfs_id,omitempty"`
	EntityID string  `json:"entity_id"`
	Outcome  Outcome `json:"outcome"`
}

// LinkEvent reports a claim between two feed records. FromID and ToID are
// empty for the side that could not be resolved.
type LinkEvent struct {
	Relation string  `json:"relation"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	FromID   string  `json:"from_id,omitempty"`
	ToID     string  `json:"to_id,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

// Observer is told about every entity and link outcome. Calls may come from
// several goroutines at once.
type Observer interface {
	Entity(ev EntityEvent)
	Link(ev LinkEvent)
}
