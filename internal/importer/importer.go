// Package importer synchronizes a GTFS feed into the store.
//
// An import runs four sequential passes: routes, stops, stop containment and
// route membership. Records inside a pass are independent and may be handled
// by several workers; a given gtfs id is only ever handled once per pass.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/known"
	"transit-topo/internal/topo"
	"transit-topo/internal/wikibase"
)

// ErrDuplicateEntity matches every *DuplicateEntityError.
var ErrDuplicateEntity = errors.New("duplicate entity")

// DuplicateEntityError means a search returned several entities for one feed
// record. The import stops rather than picking one.
type DuplicateEntityError struct {
	Kind   string
	GTFSID string
	IDs    []string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("%s %q is imported %d times: %s", e.Kind, e.GTFSID, len(e.IDs), strings.Join(e.IDs, ", "))
}

func (e *DuplicateEntityError) Is(target error) bool { return target == ErrDuplicateEntity }

// Store is what the importer needs from the knowledge base.
type Store interface {
	FindRoute(ctx context.Context, producerID, routeID string) ([]topo.Match, error)
	FindStop(ctx context.Context, producerID string, stop gtfs.Stop) ([]topo.Match, error)
	LinkedEntities(ctx context.Context, subject, property string) ([]string, error)

	InsertDataSource(ctx context.Context, ds topo.DataSource) (string, error)
	InsertRoute(ctx context.Context, r gtfs.Route, dataSourceID, producerName string) (string, error)
	InsertStop(ctx context.Context, s gtfs.Stop, dataSourceID string) (string, error)
	RefreshStop(ctx context.Context, id string, s gtfs.Stop, dataSourceID, firstSeenIn string) error
	AddClaims(ctx context.Context, id string, claims ...wikibase.Claim) error
}

// Producer identifies who published the feed.
type Producer struct {
	ID   string
	Name string
}

type Options struct {
	// UpdateStops refreshes the claims of stops that already exist.
	UpdateStops bool
	// Workers bounds the records handled concurrently within a pass.
	Workers   int
	Observers []Observer
	Logger    *slog.Logger
}

// Summary counts what an import did.
type Summary struct {
	DataSourceID  string
	RoutesCreated int
	RoutesFound   int
	StopsCreated  int
	StopsFound    int
	StopsUpdated  int
	LinksAdded    int
	LinksExisting int
	LinksSkipped  int
	Duration      time.Duration
}

type Importer struct {
	store  Store
	e      *known.Entities
	opts   Options
	logger *slog.Logger
}

func New(store Store, e *known.Entities, opts Options) *Importer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, e: e, opts: opts, logger: logger}
}

// Run imports feed for producer. On error, entities created so far are left
// in place and, once the data source exists, the returned summary counts
// them.
func (im *Importer) Run(ctx context.Context, feed *gtfs.Feed, producer Producer) (*Summary, error) {
	start := time.Now()
	r := &run{
		im:       im,
		feed:     feed,
		producer: producer,
		routes:   make(map[string]string),
		stops:    make(map[string]resolved),
	}

	dsID, err := im.store.InsertDataSource(ctx, topo.DataSource{
		ProducerID:   producer.ID,
		ProducerName: producer.Name,
		Source:       feed.Source,
		SHA256:       feed.SHA256,
	})
	if err != nil {
		return nil, err
	}
	r.summary.DataSourceID = dsID
	im.notifyEntity(EntityEvent{Kind: KindDataSource, EntityID: dsID, Outcome: Created})

	passes := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"routes", r.importRoutes},
		{"stops", r.importStops},
		{"stop containment", r.linkParents},
		{"route membership", r.linkRoutes},
	}
	for _, p := range passes {
		passStart := time.Now()
		if err := p.fn(ctx); err != nil {
			r.summary.Duration = time.Since(start)
			return &r.summary, fmt.Errorf("%s: %w", p.name, err)
		}
		im.logger.Info("pass finished", "pass", p.name, "duration", time.Since(passStart))
	}

	r.summary.Duration = time.Since(start)
	im.logger.Info("import finished",
		"data_source", dsID,
		"routes_created", r.summary.RoutesCreated,
		"routes_found", r.summary.RoutesFound,
		"stops_created", r.summary.StopsCreated,
		"stops_found", r.summary.StopsFound,
		"stops_updated", r.summary.StopsUpdated,
		"links_added", r.summary.LinksAdded,
		"links_existing", r.summary.LinksExisting,
		"links_skipped", r.summary.LinksSkipped,
		"duration", r.summary.Duration,
	)
	return &r.summary, nil
}

// each calls fn for every index in [0, n) on at most Workers goroutines. The
// first error cancels the remaining calls.
func (im *Importer) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i := range n {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}

func (im *Importer) notifyEntity(ev EntityEvent) {
	for _, o := range im.opts.Observers {
		o.Entity(ev)
	}
}

func (im *Importer) notifyLink(ev LinkEvent) {
	for _, o := range im.opts.Observers {
		o.Link(ev)
	}
}

type resolved struct {
	id      string
	outcome Outcome
}

// run is the state of one import. The maps are filled by the route and stop
// passes and only read by the link passes.
type run struct {
	im       *Importer
	feed     *gtfs.Feed
	producer Producer

	mu      sync.Mutex
	routes  map[string]string // gtfs route id -> entity
	stops   map[string]resolved
	summary Summary
}

func (r *run) dataSource() string { return r.summary.DataSourceID }
