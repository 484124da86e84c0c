package known

import "transit-topo/internal/wikibase"

// MarkerName is the symbolic name of the marker property itself.
const MarkerName = "topo_id_id"

// MarkerLabel is the label of the marker property. It is the only schema
// element looked up by label instead of by marker value.
const MarkerLabel = "topo tools id"

// Element is one entry of the fixed schema.
type Element struct {
	Name     string
	Label    string
	Type     wikibase.EntityType
	DataType wikibase.DataType
}

// ItemDescription is set on every schema item. Items are only label-unique
// together with their description.
const ItemDescription = "transit-topo schema item"

func property(name, label string, dt wikibase.DataType) Element {
	return Element{Name: name, Label: label, Type: wikibase.PropertyEntity, DataType: dt}
}

func item(name, label string) Element {
	return Element{Name: name, Label: label, Type: wikibase.ItemEntity}
}

// Schema lists every known entity except the marker property.
var Schema = []Element{
	property("produced_by", "produced by", wikibase.DataTypeItem),
	property("instance_of", "instance of", wikibase.DataTypeItem),
	property("gtfs_id", "gtfs id", wikibase.DataTypeString),
	property("gtfs_short_name", "gtfs short name", wikibase.DataTypeString),
	property("gtfs_long_name", "gtfs long name", wikibase.DataTypeString),
	property("gtfs_name", "gtfs name", wikibase.DataTypeString),
	property("data_source", "data source", wikibase.DataTypeItem),
	property("first_seen_in", "first seen in", wikibase.DataTypeItem),
	property("source", "source", wikibase.DataTypeString),
	property("file_format", "file format", wikibase.DataTypeString),
	property("sha_256", "sha-256", wikibase.DataTypeString),
	property("has_physical_mode", "has physical mode", wikibase.DataTypeItem),
	property("tool_version", "tool version", wikibase.DataTypeString),
	property("part_of", "part of", wikibase.DataTypeItem),
	property("connecting_line", "connecting line", wikibase.DataTypeItem),
	property("coordinate_location", "coordinate location", wikibase.DataTypeCoordinate),

	item("physical_mode", "physical mode"),
	item("tramway", "tramway"),
	item("subway", "subway"),
	item("railway", "railway"),
	item("bus", "bus"),
	item("ferry", "ferry"),
	item("cable_car", "cable car"),
	item("gondola", "gondola"),
	item("funicular", "funicular"),
	item("producer", "producer"),
	item("route", "route"),
	item("stop_point", "stop point"),
	item("stop_area", "stop area"),
	item("stop_entrance", "stop entrance"),
	item("stop_generic_node", "stop generic node"),
	item("stop_boarding_area", "stop boarding area"),
}

// Names returns every symbolic name, marker included.
func Names() []string {
	names := make([]string, 0, len(Schema)+1)
	names = append(names, MarkerName)
	for _, e := range Schema {
		names = append(names, e.Name)
	}
	return names
}
