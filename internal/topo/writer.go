package topo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/known"
	"transit-topo/internal/wikibase"
)

// DataSource describes one import run.
type DataSource struct {
	ProducerID   string
	ProducerName string
	Source       string // path or URL of the feed
	SHA256       string
}

type Writer struct {
	api         wikibase.Editor
	e           *known.Entities
	toolVersion string
	logger      *slog.Logger

	now func() time.Time
}

func NewWriter(api wikibase.Editor, e *known.Entities, toolVersion string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{api: api, e: e, toolVersion: toolVersion, logger: logger, now: time.Now}
}

// InsertDataSource always creates a new entity, even for a feed imported before.
func (w *Writer) InsertDataSource(ctx context.Context, ds DataSource) (string, error) {
	p := w.e.Properties
	label := fmt.Sprintf("Data source for %s - imported %s", ds.ProducerName, w.now().UTC().Format(time.RFC3339))
	claims := wikibase.NonEmpty([]wikibase.Claim{
		wikibase.Item(p.ProducedBy, ds.ProducerID),
		wikibase.String(p.Source, ds.Source),
		wikibase.String(p.FileFormat, "GTFS"),
		wikibase.String(p.ToolVersion, w.toolVersion),
		wikibase.String(p.SHA256, ds.SHA256),
	})
	id, err := w.api.Create(ctx, wikibase.EntitySpec{Type: wikibase.ItemEntity, Label: label, Claims: claims})
	if err != nil {
		return "", fmt.Errorf("insert data source: %w", err)
	}
	w.logger.Info("data source created", "id", id, "label", label)
	return id, nil
}

// RouteLabel is the label of a route entity, e.g. "Bus Airport - Bullfrog (bob the bus mapper)".
func RouteLabel(r gtfs.Route, producerName string) string {
	return fmt.Sprintf("%s %s (%s)", r.Type, r.PreferredName(), producerName)
}

// RouteClaims are the claims of a newly imported route, without empty names.
func (w *Writer) RouteClaims(r gtfs.Route, dataSourceID string) []wikibase.Claim {
	p := w.e.Properties
	return wikibase.NonEmpty([]wikibase.Claim{
		wikibase.Item(p.InstanceOf, w.e.Items.Route),
		wikibase.String(p.GTFSID, r.ID),
		wikibase.Item(p.DataSource, dataSourceID),
		wikibase.Item(p.FirstSeenIn, dataSourceID),
		wikibase.String(p.GTFSShortName, r.ShortName),
		wikibase.String(p.GTFSLongName, r.LongName),
		wikibase.Item(p.HasPhysicalMode, w.e.PhysicalMode(r.Type)),
	})
}

func (w *Writer) InsertRoute(ctx context.Context, r gtfs.Route, dataSourceID, producerName string) (string, error) {
	spec := wikibase.EntitySpec{
		Type:   wikibase.ItemEntity,
		Label:  RouteLabel(r, producerName),
		Claims: w.RouteClaims(r, dataSourceID),
	}
	id, err := w.api.Create(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("insert route %s: %w", r.ID, err)
	}
	return id, nil
}

// StopLabel is the stop name, or its id for unnamed stops.
func StopLabel(s gtfs.Stop) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// StopClaims are the claims of an imported stop. firstSeenIn is the data
// source that first imported it.
func (w *Writer) StopClaims(s gtfs.Stop, dataSourceID, firstSeenIn string) []wikibase.Claim {
	p := w.e.Properties
	claims := []wikibase.Claim{
		wikibase.Item(p.InstanceOf, w.e.LocationType(s.LocationType)),
		wikibase.String(p.GTFSID, s.ID),
		wikibase.Item(p.DataSource, dataSourceID),
		wikibase.Item(p.FirstSeenIn, firstSeenIn),
		wikibase.String(p.GTFSName, s.Name),
	}
	if s.HasCoord {
		claims = append(claims, wikibase.Coordinate(p.CoordinateLocation, s.Lat, s.Lon))
	}
	return wikibase.NonEmpty(claims)
}

func (w *Writer) InsertStop(ctx context.Context, s gtfs.Stop, dataSourceID string) (string, error) {
	spec := wikibase.EntitySpec{
		Type:   wikibase.ItemEntity,
		Label:  StopLabel(s),
		Claims: w.StopClaims(s, dataSourceID, dataSourceID),
	}
	id, err := w.api.Create(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("insert stop %s: %w", s.ID, err)
	}
	return id, nil
}

// RefreshStop replaces every claim of an existing stop. Links to parents and
// routes are removed too and must be added again.
func (w *Writer) RefreshStop(ctx context.Context, id string, s gtfs.Stop, dataSourceID, firstSeenIn string) error {
	if firstSeenIn == "" {
		firstSeenIn = dataSourceID
	}
	spec := wikibase.EntitySpec{
		Type:   wikibase.ItemEntity,
		Label:  StopLabel(s),
		Claims: w.StopClaims(s, dataSourceID, firstSeenIn),
	}
	if err := w.api.Edit(ctx, id, spec, true); err != nil {
		return fmt.Errorf("refresh stop %s (%s): %w", s.ID, id, err)
	}
	return nil
}

// AddClaims appends claims to an entity.
func (w *Writer) AddClaims(ctx context.Context, id string, claims ...wikibase.Claim) error {
	if err := w.api.AttachClaims(ctx, id, claims, false); err != nil {
		return fmt.Errorf("add claims to %s: %w", id, err)
	}
	return nil
}

// Store bundles the reads and writes used by an import.
type Store struct {
	*Query
	*Writer
}
