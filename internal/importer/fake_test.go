package importer

import (
	"context"
	"fmt"
	"sync"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/known"
	"transit-topo/internal/topo"
	"transit-topo/internal/wikibase"
)

func testEntities() *known.Entities {
	return &known.Entities{
		Properties: known.Properties{
			TopoIDID: "P1", ProducedBy: "P2", InstanceOf: "P3", GTFSID: "P4",
			GTFSShortName: "P5", GTFSLongName: "P6", GTFSName: "P7", DataSource: "P8",
			FirstSeenIn: "P9", Source: "P10", FileFormat: "P11", SHA256: "P12",
			HasPhysicalMode: "P13", ToolVersion: "P14", PartOf: "P15", ConnectingLine: "P16",
			CoordinateLocation: "P17",
		},
		Items: known.Items{
			PhysicalMode: "Q1", Tramway: "Q2", Subway: "Q3", Railway: "Q4", Bus: "Q5",
			Ferry: "Q6", CableCar: "Q7", Gondola: "Q8", Funicular: "Q9", Producer: "Q10",
			Route: "Q11", StopPoint: "Q12", StopArea: "Q13", StopEntrance: "Q14",
			StopGenericNode: "Q15", StopBoardingArea: "Q16",
		},
	}
}

type node struct {
	label  string
	claims []wikibase.Claim
}

// graph is an in-memory knowledge base behind the wikibase.Editor interface.
type graph struct {
	mu      sync.Mutex
	nodes   map[string]*node
	next    int
	creates int
	edits   int
}

func newGraph() *graph { return &graph{nodes: map[string]*node{}, next: 1000} }

func (g *graph) Create(_ context.Context, spec wikibase.EntitySpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("Q%d", g.next)
	g.next++
	g.creates++
	g.nodes[id] = &node{label: spec.Label, claims: wikibase.NonEmpty(spec.Claims)}
	return id, nil
}

func (g *graph) AttachClaims(ctx context.Context, id string, claims []wikibase.Claim, replace bool) error {
	return g.Edit(ctx, id, wikibase.EntitySpec{Claims: claims}, replace)
}

func (g *graph) Edit(_ context.Context, id string, spec wikibase.EntitySpec, replace bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", wikibase.ErrNotFound, id)
	}
	g.edits++
	if replace {
		n.claims = nil
		n.label = spec.Label
	}
	n.claims = append(n.claims, wikibase.NonEmpty(spec.Claims)...)
	return nil
}

func (g *graph) values(id, property string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for _, c := range n.claims {
		if c.Property != property {
			continue
		}
		switch v := c.Value.(type) {
		case wikibase.ItemValue:
			out = append(out, string(v))
		case wikibase.StringValue:
			out = append(out, string(v))
		}
	}
	return out
}

func (g *graph) has(id, property, value string) bool {
	for _, v := range g.values(id, property) {
		if v == value {
			return true
		}
	}
	return false
}

// fakeStore answers the importer's finds from the graph and writes through
// the real topo.Writer.
type fakeStore struct {
	*topo.Writer
	g       *graph
	e       *known.Entities
	findErr error
}

func newFakeStore(g *graph) *fakeStore {
	e := testEntities()
	return &fakeStore{Writer: topo.NewWriter(g, e, "test", nil), g: g, e: e}
}

func (s *fakeStore) find(producerID, typeID, gtfsID string) ([]topo.Match, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	p := s.e.Properties
	var out []topo.Match
	for id := range s.g.nodes {
		if !s.g.has(id, p.InstanceOf, typeID) || !s.g.has(id, p.GTFSID, gtfsID) {
			continue
		}
		for _, ds := range s.g.values(id, p.DataSource) {
			if s.g.has(ds, p.ProducedBy, producerID) {
				m := topo.Match{ID: id}
				if first := s.g.values(id, p.FirstSeenIn); len(first) > 0 {
					m.FirstSeenIn = first[0]
				}
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindRoute(_ context.Context, producerID, routeID string) ([]topo.Match, error) {
	return s.find(producerID, s.e.Items.Route, routeID)
}

func (s *fakeStore) FindStop(_ context.Context, producerID string, stop gtfs.Stop) ([]topo.Match, error) {
	return s.find(producerID, s.e.LocationType(stop.LocationType), stop.ID)
}

func (s *fakeStore) LinkedEntities(_ context.Context, subject, property string) ([]string, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.g.values(subject, property), nil
}

// entitiesOf returns the entities of a type with a gtfs id, whatever their producer.
func (g *graph) entitiesOf(e *known.Entities, typeID, gtfsID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for id := range g.nodes {
		if g.has(id, e.Properties.InstanceOf, typeID) && g.has(id, e.Properties.GTFSID, gtfsID) {
			out = append(out, id)
		}
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	entities []EntityEvent
	links    []LinkEvent
}

func (o *recordingObserver) Entity(ev EntityEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entities = append(o.entities, ev)
}

func (o *recordingObserver) Link(ev LinkEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, ev)
}
