// Package attribute implements the change attributor: given one commit's
// DiffedFile, it derives a per-entity {kind, adds, dels} Change by
// intersecting hunk intervals against parsed entity spans on both blob
// sides.
package attribute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jlefever/cochange-tool/internal/diffcollect"
	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/jlefever/cochange-tool/internal/interval"
	"github.com/jlefever/cochange-tool/internal/model"
	"github.com/jlefever/cochange-tool/internal/parse"
	"github.com/jlefever/cochange-tool/internal/parsecache"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// Change is one entity's aggregated delta within the DiffedFile it was
// derived from.
type Change struct {
	Entity *entity.Entity
	Kind   model.ChangeKind
	Adds   uint32
	Dels   uint32
}

type builderEntry struct {
	entity *entity.Entity
	kind   model.ChangeKind
	adds   uint32
	dels   uint32
}

// Attribute implements spec steps 1-8 for one DiffedFile: parse both blob
// sides (through cache), sum hunk/entity intersections into a per-identity
// builder map, then mark deleted-only and added-only entities before
// emitting one Change per entity the builder touched.
func Attribute(
	ctx context.Context,
	repo *gitlib.Repository,
	p *parse.Parser,
	cache *parsecache.Cache,
	df diffcollect.DiffedFile,
	logger *slog.Logger,
) ([]Change, error) {
	if logger == nil {
		logger = slog.Default()
	}

	oldEntities, err := cache.GetOrParse(ctx, repo, p, df.Path, df.OldBlobID)
	if err != nil {
		return nil, fmt.Errorf("parse old blob %s: %w", df.Path, err)
	}

	newEntities, err := cache.GetOrParse(ctx, repo, p, df.Path, df.NewBlobID)
	if err != nil {
		return nil, fmt.Errorf("parse new blob %s: %w", df.Path, err)
	}

	builder := make(map[string]*builderEntry)

	for _, le := range oldEntities {
		var dels uint32

		for _, h := range df.Hunks {
			n := interval.Intersect(h.OldInterval, le.Interval)
			if n > 0 {
				dels += uint32(n)
			}
		}

		if dels > 0 {
			entry(builder, le.Entity).dels += dels
		}
	}

	for _, le := range newEntities {
		var adds uint32

		for _, h := range df.Hunks {
			n := interval.Intersect(h.NewInterval, le.Interval)
			if n > 0 {
				adds += uint32(n)
			}
		}

		if adds > 0 {
			entry(builder, le.Entity).adds += adds
		}
	}

	oldSet := identitySet(oldEntities)
	newSet := identitySet(newEntities)

	// Deleted first, then Added, so a hypothetical simultaneous match
	// resolves to Added (see spec open question on simultaneous add/delete).
	for key := range oldSet {
		if _, stillPresent := newSet[key]; stillPresent {
			continue
		}

		if b, ok := builder[key]; ok {
			b.kind = model.Deleted
		}
	}

	for key, e := range newSet {
		if _, wasPresent := oldSet[key]; wasPresent {
			continue
		}

		if b, ok := builder[key]; ok {
			b.kind = model.Added
		} else {
			logger.Debug("entity added with zero adds", "path", df.Path, "entity", e.Name)
		}
	}

	changes := make([]Change, 0, len(builder))
	for _, b := range builder {
		changes = append(changes, Change{Entity: b.entity, Kind: b.kind, Adds: b.adds, Dels: b.dels})
	}

	return changes, nil
}

func entry(builder map[string]*builderEntry, e *entity.Entity) *builderEntry {
	key := e.Key()

	b, ok := builder[key]
	if !ok {
		b = &builderEntry{entity: e, kind: model.Modified}
		builder[key] = b
	}

	return b
}

func identitySet(located []entity.LocatedEntity) map[string]*entity.Entity {
	set := make(map[string]*entity.Entity, len(located))
	for _, le := range located {
		set[le.Entity.Key()] = le.Entity
	}

	return set
}
