// Package bootstrap creates the known schema in an empty store and recovers
// the identifiers of whatever already exists.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"transit-topo/internal/known"
	"transit-topo/internal/wikibase"
)

// DefaultProducer is the producer created for demo and test stores.
const DefaultProducer = "bob the bus mapper"

// Client is the part of the write API used by the populator.
type Client interface {
	Create(ctx context.Context, spec wikibase.EntitySpec) (string, error)
	SearchEntities(ctx context.Context, label string, typ wikibase.EntityType) ([]wikibase.SearchResult, error)
}

type Populator struct {
	client Client
	logger *slog.Logger
}

func New(client Client, logger *slog.Logger) *Populator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Populator{client: client, logger: logger}
}

// EnsureSchema makes sure every schema element exists and returns their
// identifiers. It is idempotent, and concurrent runs converge on the same
// identifiers because the store rejects duplicate labels.
func (p *Populator) EnsureSchema(ctx context.Context) (*known.Entities, error) {
	marker, err := p.ensureMarker(ctx)
	if err != nil {
		return nil, fmt.Errorf("marker property: %w", err)
	}

	b := known.NewBuilder()
	if err := b.Set(known.MarkerName, marker); err != nil {
		return nil, err
	}
	for _, el := range known.Schema {
		spec := wikibase.EntitySpec{
			Type:     el.Type,
			DataType: el.DataType,
			Label:    el.Label,
			Claims:   []wikibase.Claim{wikibase.String(marker, el.Name)},
		}
		if el.Type == wikibase.ItemEntity {
			spec.Description = known.ItemDescription
		}
		id, err := p.createOrRecover(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("schema element %s: %w", el.Name, err)
		}
		if err := b.Set(el.Name, id); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ensureMarker finds the marker property by exact label, creating it when
// absent. It cannot be found through itself.
func (p *Populator) ensureMarker(ctx context.Context) (string, error) {
	id, err := p.findExact(ctx, known.MarkerLabel, wikibase.PropertyEntity)
	if err == nil {
		p.logger.Info("property already exists", "label", known.MarkerLabel, "id", id)
		return id, nil
	}
	if !errors.Is(err, wikibase.ErrNotFound) {
		return "", err
	}
	return p.createOrRecover(ctx, wikibase.EntitySpec{
		Type:     wikibase.PropertyEntity,
		DataType: wikibase.DataTypeString,
		Label:    known.MarkerLabel,
	})
}

func (p *Populator) createOrRecover(ctx context.Context, spec wikibase.EntitySpec) (string, error) {
	id, err := p.client.Create(ctx, spec)
	var conflict *wikibase.LabelConflictError
	switch {
	case errors.As(err, &conflict):
		p.logger.Info(spec.Type.String()+" already exists", "label", spec.Label, "id", conflict.ExistingID)
		return conflict.ExistingID, nil
	case err != nil:
		return "", err
	}
	p.logger.Info("created "+spec.Type.String(), "label", spec.Label, "id", id)
	return id, nil
}

// EnsureProducer returns the producer item labelled label, creating it with
// the extra claims when no entity has that exact label.
func (p *Populator) EnsureProducer(ctx context.Context, e *known.Entities, label string, extra ...wikibase.Claim) (string, error) {
	id, err := p.findExact(ctx, label, wikibase.ItemEntity)
	if err == nil {
		p.logger.Info("producer already exists", "label", label, "id", id)
		return id, nil
	}
	if !errors.Is(err, wikibase.ErrNotFound) {
		return "", err
	}
	return p.createOrRecover(ctx, wikibase.EntitySpec{
		Type:   wikibase.ItemEntity,
		Label:  label,
		Claims: append([]wikibase.Claim{wikibase.Item(e.Properties.InstanceOf, e.Items.Producer)}, extra...),
	})
}

func (p *Populator) findExact(ctx context.Context, label string, typ wikibase.EntityType) (string, error) {
	results, err := p.client.SearchEntities(ctx, label, typ)
	if err != nil {
		return "", err
	}
	var ids []string
	for _, r := range results {
		if r.Label == label {
			ids = append(ids, r.ID)
		}
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s %q", wikibase.ErrNotFound, typ, label)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("%w: %d %s entities labelled %q", known.ErrAmbiguousSchema, len(ids), typ, label)
}
