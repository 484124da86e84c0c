package topo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transit-topo/internal/claimexpr"
	"transit-topo/internal/wikibase"
)

// ErrAmbiguousEntity means several entities share a label and unique claims.
var ErrAmbiguousEntity = errors.New("too many entities")

// Search returns the entities matching every expression.
func (q *Query) Search(ctx context.Context, exprs []claimexpr.Expr) ([]string, error) {
	pattern, err := claimexpr.Pattern(exprs)
	if err != nil {
		return nil, err
	}
	rows, err := q.q.Query(ctx, []string{"item"}, pattern)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		id, err := wikibase.IDFromURL(r["item"])
		if err != nil {
			q.logger.Warn("skipping unreadable search result", "item", r["item"], "error", err)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CreateUnique returns the entity labelled spec.Label that carries every
// unique claim, creating it with spec.Claims and the unique claims when
// there is none.
func (s *Store) CreateUnique(ctx context.Context, spec wikibase.EntitySpec, unique []claimexpr.Expr) (id string, created bool, err error) {
	uniqueClaims, err := claimexpr.Claims(unique)
	if err != nil {
		return "", false, err
	}
	ids, err := s.Search(ctx, append([]claimexpr.Expr{claimexpr.Label(spec.Label)}, unique...))
	if err != nil {
		return "", false, err
	}
	switch len(ids) {
	case 0:
	case 1:
		s.Query.logger.Info("entity already exists", "label", spec.Label, "id", ids[0])
		return ids[0], false, nil
	default:
		return "", false, fmt.Errorf("%w with label %q: %s", ErrAmbiguousEntity, spec.Label, strings.Join(ids, ", "))
	}

	spec.Claims = append(append([]wikibase.Claim(nil), spec.Claims...), uniqueClaims...)
	id, err = s.api.Create(ctx, spec)
	if err != nil {
		return "", false, fmt.Errorf("create %q: %w", spec.Label, err)
	}
	s.Writer.logger.Info("entity created", "label", spec.Label, "id", id)
	return id, true, nil
}
