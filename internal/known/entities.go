package known

import (
	"fmt"

	"transit-topo/internal/gtfs"
)

// Properties holds the identifiers of the schema properties.
type Properties struct {
	TopoIDID           string `yaml:"topo_id_id"`
	ProducedBy         string `yaml:"produced_by"`
	InstanceOf         string `yaml:"instance_of"`
	GTFSID             string `yaml:"gtfs_id"`
	GTFSShortName      string `yaml:"gtfs_short_name"`
	GTFSLongName       string `yaml:"gtfs_long_name"`
	GTFSName           string `yaml:"gtfs_name"`
	DataSource         string `yaml:"data_source"`
	FirstSeenIn        string `yaml:"first_seen_in"`
	Source             string `yaml:"source"`
	FileFormat         string `yaml:"file_format"`
	SHA256             string `yaml:"sha_256"`
	HasPhysicalMode    string `yaml:"has_physical_mode"`
	ToolVersion        string `yaml:"tool_version"`
	PartOf             string `yaml:"part_of"`
	ConnectingLine     string `yaml:"connecting_line"`
	CoordinateLocation string `yaml:"coordinate_location"`
}

// Items holds the identifiers of the taxonomy items.
type Items struct {
	PhysicalMode     string `yaml:"physical_mode"`
	Tramway          string `yaml:"tramway"`
	Subway           string `yaml:"subway"`
	Railway          string `yaml:"railway"`
	Bus              string `yaml:"bus"`
	Ferry            string `yaml:"ferry"`
	CableCar         string `yaml:"cable_car"`
	Gondola          string `yaml:"gondola"`
	Funicular        string `yaml:"funicular"`
	Producer         string `yaml:"producer"`
	Route            string `yaml:"route"`
	StopPoint        string `yaml:"stop_point"`
	StopArea         string `yaml:"stop_area"`
	StopEntrance     string `yaml:"stop_entrance"`
	StopGenericNode  string `yaml:"stop_generic_node"`
	StopBoardingArea string `yaml:"stop_boarding_area"`
}

// Entities maps every symbolic schema name to its identifier in the store.
// It is built once by Discover or bootstrap and never modified afterwards.
type Entities struct {
	Properties Properties `yaml:"properties"`
	Items      Items      `yaml:"items"`
}

func (e *Entities) propertyFields() map[string]*string {
	p := &e.Properties
	return map[string]*string{
		"topo_id_id":          &p.TopoIDID,
		"produced_by":         &p.ProducedBy,
		"instance_of":         &p.InstanceOf,
		"gtfs_id":             &p.GTFSID,
		"gtfs_short_name":     &p.GTFSShortName,
		"gtfs_long_name":      &p.GTFSLongName,
		"gtfs_name":           &p.GTFSName,
		"data_source":         &p.DataSource,
		"first_seen_in":       &p.FirstSeenIn,
		"source":              &p.Source,
		"file_format":         &p.FileFormat,
		"sha_256":             &p.SHA256,
		"has_physical_mode":   &p.HasPhysicalMode,
		"tool_version":        &p.ToolVersion,
		"part_of":             &p.PartOf,
		"connecting_line":     &p.ConnectingLine,
		"coordinate_location": &p.CoordinateLocation,
	}
}

func (e *Entities) itemFields() map[string]*string {
	i := &e.Items
	return map[string]*string{
		"physical_mode":      &i.PhysicalMode,
		"tramway":            &i.Tramway,
		"subway":             &i.Subway,
		"railway":            &i.Railway,
		"bus":                &i.Bus,
		"ferry":              &i.Ferry,
		"cable_car":          &i.CableCar,
		"gondola":            &i.Gondola,
		"funicular":          &i.Funicular,
		"producer":           &i.Producer,
		"route":              &i.Route,
		"stop_point":         &i.StopPoint,
		"stop_area":          &i.StopArea,
		"stop_entrance":      &i.StopEntrance,
		"stop_generic_node":  &i.StopGenericNode,
		"stop_boarding_area": &i.StopBoardingArea,
	}
}

// set records the identifier of a symbolic name. It is only used while the
// map is being built.
func (e *Entities) set(name, id string) error {
	if f, ok := e.propertyFields()[name]; ok {
		*f = id
		return nil
	}
	if f, ok := e.itemFields()[name]; ok {
		*f = id
		return nil
	}
	return fmt.Errorf("unknown schema name %q", name)
}

// Builder assembles an Entities value from resolved identifiers.
type Builder struct {
	e   Entities
	set map[string]bool
}

func NewBuilder() *Builder { return &Builder{set: make(map[string]bool)} }

func (b *Builder) Set(name, id string) error {
	if err := b.e.set(name, id); err != nil {
		return err
	}
	b.set[name] = true
	return nil
}

// Build returns the finished map, failing if any symbolic name is missing.
func (b *Builder) Build() (*Entities, error) {
	for _, name := range Names() {
		if !b.set[name] {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
		}
	}
	e := b.e
	return &e, nil
}

// Resolve returns the identifier of any symbolic name.
func (e *Entities) Resolve(name string) (string, error) {
	if id, err := e.Property(name); err == nil {
		return id, nil
	}
	return e.Item(name)
}

// Property returns the identifier of a schema property.
func (e *Entities) Property(name string) (string, error) {
	f, ok := e.propertyFields()[name]
	if !ok || *f == "" {
		return "", fmt.Errorf("%w: property %s", ErrSchemaNotFound, name)
	}
	return *f, nil
}

// Item returns the identifier of a taxonomy item.
func (e *Entities) Item(name string) (string, error) {
	f, ok := e.itemFields()[name]
	if !ok || *f == "" {
		return "", fmt.Errorf("%w: item %s", ErrSchemaNotFound, name)
	}
	return *f, nil
}

// PhysicalMode returns the physical mode item of a route type. Unknown types
// map to bus.
func (e *Entities) PhysicalMode(t gtfs.RouteType) string {
	mode, ok := t.Mode()
	if !ok {
		return e.Items.Bus
	}
	switch mode {
	case gtfs.RouteTramway:
		return e.Items.Tramway
	case gtfs.RouteSubway:
		return e.Items.Subway
	case gtfs.RouteRail:
		return e.Items.Railway
	case gtfs.RouteFerry:
		return e.Items.Ferry
	case gtfs.RouteCableCar:
		return e.Items.CableCar
	case gtfs.RouteGondola:
		return e.Items.Gondola
	case gtfs.RouteFunicular:
		return e.Items.Funicular
	}
	return e.Items.Bus
}

// LocationType returns the stop taxonomy item of a location type. Unknown
// types map to stop point.
func (e *Entities) LocationType(t gtfs.LocationType) string {
	switch t {
	case gtfs.StopArea:
		return e.Items.StopArea
	case gtfs.StationEntrance:
		return e.Items.StopEntrance
	case gtfs.GenericNode:
		return e.Items.StopGenericNode
	case gtfs.BoardingArea:
		return e.Items.StopBoardingArea
	}
	return e.Items.StopPoint
}
