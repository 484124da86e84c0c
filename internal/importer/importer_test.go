package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/topo"
	"transit-topo/internal/wikibase"
)

var bob = Producer{ID: "Q20", Name: "bob the bus mapper"}

func sampleFeed() *gtfs.Feed {
	return &gtfs.Feed{
		Source: "sample.zip",
		SHA256: "abc123",
		Routes: []gtfs.Route{
			{ID: "AB", ShortName: "AB", LongName: "Airport - Bullfrog", Type: gtfs.RouteBus},
			{ID: "T1", ShortName: "T1", Type: 900},
		},
		Stops: []gtfs.Stop{
			{ID: "STA", Name: "Airport", LocationType: gtfs.StopArea, Lat: 36.9, Lon: -116.7, HasCoord: true},
			{ID: "STA_1", Name: "Airport platform 1", ParentStation: "STA", Lat: 36.9, Lon: -116.7, HasCoord: true},
			{ID: "BULLFROG", Name: "Bullfrog"},
		},
		Trips: []gtfs.Trip{
			{ID: "AB1", RouteID: "AB"},
			{ID: "AB2", RouteID: "AB"},
		},
		StopTimes: []gtfs.StopTime{
			{TripID: "AB1", StopID: "STA_1", StopSequence: 1},
			{TripID: "AB1", StopID: "BULLFROG", StopSequence: 2},
			{TripID: "AB2", StopID: "BULLFROG", StopSequence: 1},
			{TripID: "AB2", StopID: "STA_1", StopSequence: 2},
		},
	}
}

func oldDataSource() topo.DataSource {
	return topo.DataSource{ProducerID: bob.ID, ProducerName: bob.Name, Source: "old.zip"}
}

func newTestImporter(store Store, opts Options) *Importer {
	return New(store, testEntities(), opts)
}

func only(t *testing.T, ids []string) string {
	t.Helper()
	require.Len(t, ids, 1)
	return ids[0]
}

func TestImportCreatesAndLinks(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	e := store.e

	sum, err := newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.RoutesCreated)
	assert.Equal(t, 3, sum.StopsCreated)
	assert.Equal(t, 3, sum.LinksAdded)
	assert.Zero(t, sum.LinksSkipped)
	assert.Equal(t, 1+2+3, g.creates)

	ds := sum.DataSourceID
	assert.Equal(t, []string{"Q20"}, g.values(ds, e.Properties.ProducedBy))
	assert.Equal(t, []string{"abc123"}, g.values(ds, e.Properties.SHA256))

	ab := only(t, g.entitiesOf(e, e.Items.Route, "AB"))
	assert.Equal(t, "Bus Airport - Bullfrog (bob the bus mapper)", g.nodes[ab].label)
	assert.Equal(t, []string{e.Items.Bus}, g.values(ab, e.Properties.HasPhysicalMode))
	assert.Equal(t, []string{ds}, g.values(ab, e.Properties.DataSource))
	t1 := only(t, g.entitiesOf(e, e.Items.Route, "T1"))
	assert.Equal(t, []string{e.Items.Tramway}, g.values(t1, e.Properties.HasPhysicalMode))
	assert.Empty(t, g.values(t1, e.Properties.GTFSLongName), "empty long name is not submitted")

	sta := only(t, g.entitiesOf(e, e.Items.StopArea, "STA"))
	sta1 := only(t, g.entitiesOf(e, e.Items.StopPoint, "STA_1"))
	bullfrog := only(t, g.entitiesOf(e, e.Items.StopPoint, "BULLFROG"))

	assert.Equal(t, []string{sta}, g.values(sta1, e.Properties.PartOf), "containment returns exactly the parent")
	assert.Empty(t, g.values(sta, e.Properties.PartOf))
	assert.Equal(t, []string{ab}, g.values(sta1, e.Properties.ConnectingLine))
	assert.Equal(t, []string{ab}, g.values(bullfrog, e.Properties.ConnectingLine))
}

func TestReimportDoesNotDuplicate(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	im := newTestImporter(store, Options{})

	first, err := im.Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)
	claimsBefore := len(g.nodes[only(t, g.entitiesOf(store.e, store.e.Items.StopPoint, "STA_1"))].claims)

	second, err := im.Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)

	assert.NotEqual(t, first.DataSourceID, second.DataSourceID, "every run gets its own data source")
	assert.Equal(t, 2, second.RoutesFound)
	assert.Equal(t, 3, second.StopsFound)
	assert.Zero(t, second.RoutesCreated+second.StopsCreated)
	assert.Equal(t, 3, second.LinksExisting)
	assert.Zero(t, second.LinksAdded)
	assert.Equal(t, 2+2+3, g.creates)

	sta1 := only(t, g.entitiesOf(store.e, store.e.Items.StopPoint, "STA_1"))
	assert.Len(t, g.nodes[sta1].claims, claimsBefore)
}

func TestReimportUpdatesStops(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	e := store.e

	first, err := newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)

	feed := sampleFeed()
	feed.Stops[2].Name = "Bullfrog Junction"
	second, err := newTestImporter(store, Options{UpdateStops: true}).Run(context.Background(), feed, bob)
	require.NoError(t, err)

	assert.Equal(t, 3, second.StopsUpdated)
	assert.Equal(t, 2, second.RoutesFound, "routes are never refreshed")
	assert.Equal(t, 3, second.LinksAdded, "links cleared by the refresh are added back")
	assert.Equal(t, 2+2+3, g.creates)

	bullfrog := only(t, g.entitiesOf(e, e.Items.StopPoint, "BULLFROG"))
	assert.Equal(t, "Bullfrog Junction", g.nodes[bullfrog].label)
	assert.Equal(t, []string{"Bullfrog Junction"}, g.values(bullfrog, e.Properties.GTFSName))
	assert.Equal(t, []string{second.DataSourceID}, g.values(bullfrog, e.Properties.DataSource))
	assert.Equal(t, []string{first.DataSourceID}, g.values(bullfrog, e.Properties.FirstSeenIn))

	sta := only(t, g.entitiesOf(e, e.Items.StopArea, "STA"))
	sta1 := only(t, g.entitiesOf(e, e.Items.StopPoint, "STA_1"))
	assert.Equal(t, []string{sta}, g.values(sta1, e.Properties.PartOf))
	assert.Len(t, g.values(sta1, e.Properties.ConnectingLine), 1)
}

func TestImportScopesByProducer(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	im := newTestImporter(store, Options{})

	_, err := im.Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)
	sum, err := im.Run(context.Background(), sampleFeed(), Producer{ID: "Q21", Name: "alice"})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.RoutesCreated)
	assert.Equal(t, 3, sum.StopsCreated)
	assert.Len(t, g.entitiesOf(store.e, store.e.Items.Route, "AB"), 2)
}

func TestDuplicateStopAborts(t *testing.T) {
	store := newFakeStore(newGraph())

	_, err := newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)

	// a faulty earlier import left a second BULLFROG stop
	ds, err := store.InsertDataSource(context.Background(), oldDataSource())
	require.NoError(t, err)
	_, err = store.InsertStop(context.Background(), gtfs.Stop{ID: "BULLFROG", Name: "Bullfrog"}, ds)
	require.NoError(t, err)

	_, err = newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	require.ErrorIs(t, err, ErrDuplicateEntity)

	var dup *DuplicateEntityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindStop, dup.Kind)
	assert.Equal(t, "BULLFROG", dup.GTFSID)
	assert.Len(t, dup.IDs, 2)
}

func TestDuplicateRouteAborts(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	ds, err := store.InsertDataSource(context.Background(), oldDataSource())
	require.NoError(t, err)
	for range 2 {
		_, err := store.InsertRoute(context.Background(), sampleFeed().Routes[0], ds, bob.Name)
		require.NoError(t, err)
	}

	_, err = newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	var dup *DuplicateEntityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindRoute, dup.Kind)
	assert.Equal(t, "AB", dup.GTFSID)
}

func TestFailedRunKeepsPartialSummary(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	ds, err := store.InsertDataSource(context.Background(), oldDataSource())
	require.NoError(t, err)
	for range 2 {
		_, err := store.InsertRoute(context.Background(), sampleFeed().Routes[1], ds, bob.Name)
		require.NoError(t, err)
	}

	sum, err := newTestImporter(store, Options{}).Run(context.Background(), sampleFeed(), bob)
	require.ErrorIs(t, err, ErrDuplicateEntity)
	require.NotNil(t, sum)
	assert.NotEmpty(t, sum.DataSourceID)
	assert.NotEqual(t, ds, sum.DataSourceID)
	assert.Equal(t, 1, sum.RoutesCreated, "AB is created before T1 fails")
	assert.Zero(t, sum.StopsCreated)
	assert.Len(t, g.entitiesOf(store.e, store.e.Items.Route, "AB"), 1)
}

func TestUnresolvedLinksAreSkipped(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	feed := sampleFeed()
	feed.Stops = append(feed.Stops, gtfs.Stop{ID: "ORPHAN", Name: "Orphan", ParentStation: "MISSING"})
	feed.Trips = append(feed.Trips, gtfs.Trip{ID: "X1", RouteID: "UNKNOWN"})
	feed.StopTimes = append(feed.StopTimes,
		gtfs.StopTime{TripID: "X1", StopID: "BULLFROG"},
		gtfs.StopTime{TripID: "AB1", StopID: "GHOST"},
	)
	obs := &recordingObserver{}

	sum, err := newTestImporter(store, Options{Observers: []Observer{obs}}).Run(context.Background(), feed, bob)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.LinksSkipped)
	assert.Equal(t, 3, sum.LinksAdded)
	orphan := only(t, g.entitiesOf(store.e, store.e.Items.StopPoint, "ORPHAN"))
	assert.Empty(t, g.values(orphan, store.e.Properties.PartOf))

	var skipped []LinkEvent
	for _, ev := range obs.links {
		if ev.Outcome == Skipped {
			skipped = append(skipped, ev)
		}
	}
	assert.ElementsMatch(t, []LinkEvent{
		{Relation: RelationPartOf, From: "ORPHAN", To: "MISSING", FromID: orphan, Outcome: Skipped},
		{Relation: RelationConnectingLine, From: "BULLFROG", To: "UNKNOWN", FromID: only(t, g.entitiesOf(store.e, store.e.Items.StopPoint, "BULLFROG")), Outcome: Skipped},
		{Relation: RelationConnectingLine, From: "GHOST", To: "AB", ToID: only(t, g.entitiesOf(store.e, store.e.Items.Route, "AB")), Outcome: Skipped},
	}, skipped)
}

func TestParallelImportHandlesEachIdentityOnce(t *testing.T) {
	g := newGraph()
	store := newFakeStore(g)
	feed := sampleFeed()
	feed.Routes = append(feed.Routes, feed.Routes...)
	feed.Stops = append(feed.Stops, feed.Stops...)

	sum, err := newTestImporter(store, Options{Workers: 8}).Run(context.Background(), feed, bob)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.RoutesCreated)
	assert.Equal(t, 3, sum.StopsCreated)
	assert.Equal(t, 3, sum.LinksAdded)
	assert.Len(t, g.entitiesOf(store.e, store.e.Items.Route, "AB"), 1)
	assert.Len(t, g.entitiesOf(store.e, store.e.Items.StopPoint, "BULLFROG"), 1)
}

func TestObserverSeesEveryEntity(t *testing.T) {
	obs := &recordingObserver{}
	_, err := newTestImporter(newFakeStore(newGraph()), Options{Observers: []Observer{obs}, Workers: 3}).
		Run(context.Background(), sampleFeed(), bob)
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, ev := range obs.entities {
		kinds[ev.Kind]++
		assert.Equal(t, Created, ev.Outcome)
	}
	assert.Equal(t, map[string]int{KindDataSource: 1, KindRoute: 2, KindStop: 3}, kinds)
	assert.Len(t, obs.links, 3)
}

func TestStoreErrorAborts(t *testing.T) {
	store := newFakeStore(newGraph())
	store.findErr = &wikibase.TransportError{Service: "sparql", Op: "query", Err: errors.New("connection refused")}

	_, err := newTestImporter(store, Options{Workers: 4}).Run(context.Background(), sampleFeed(), bob)
	var terr *wikibase.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, err.Error(), "routes")
}
