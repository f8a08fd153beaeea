package orchestrator

import (
	"fmt"

	"github.com/brianjwalters/lexorch/internal/model"
)

// dedupKey identifies an entity for cross-wave and cross-chunk
// deduplication: canonical entity type, exact matched text, and start
// offset. No fuzzy or overlap-based matching is performed.
func dedupKey(e model.Entity) string {
	return fmt.Sprintf("%s\x00%s\x00%d", e.EntityType, e.Text, e.Position.Start)
}

// dedupeEntities keeps the first-seen entity for each dedupKey and drops
// later duplicates, preserving input order (earlier waves and earlier
// chunks win).
func dedupeEntities(entities []model.Entity) ([]model.Entity, int) {
	seen := make(map[string]struct{}, len(entities))
	out := make([]model.Entity, 0, len(entities))
	removed := 0
	for _, e := range entities {
		key := dedupKey(e)
		if _, ok := seen[key]; ok {
			removed++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, removed
}
