package patternstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brianjwalters/lexorch/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// relationshipFile is the on-disk shape of a relationships/*.yaml file: a
// flat list of relationship pattern declarations, grouped by the file's
// stem into a category (get_relationship_categories/get_relationship_types).
type relationshipFile struct {
	Patterns []relationshipRecord `yaml:"patterns"`
}

type relationshipRecord struct {
	RelationshipType string   `yaml:"relationship_type"`
	SourceEntityType string   `yaml:"source_entity_type"`
	TargetEntityType string   `yaml:"target_entity_type"`
	Indicators       []string `yaml:"indicators"`
	Examples         []string `yaml:"examples"`
	Bidirectional    bool     `yaml:"bidirectional"`
	Confidence       *float64 `yaml:"confidence"`
}

// loadRelationshipPatternsLocked walks <dir>/relationships for *.yaml files
// and rebuilds the relationship-pattern namespace, separate from the entity
// pattern indexes. Caller must hold the write lock.
func (s *Store) loadRelationshipPatternsLocked(ctx context.Context) {
	relDir := filepath.Join(s.dir, "relationships")
	entries, err := os.ReadDir(relDir)
	if err != nil {
		s.relationshipPatterns = map[string][]model.RelationshipPattern{}
		return
	}

	patterns := make(map[string][]model.RelationshipPattern)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(relDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn(ctx, "patternstore: error reading relationship file", zap.String("path", path), zap.Error(err))
			continue
		}

		var file relationshipFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			s.logger.Warn(ctx, "patternstore: error parsing relationship file", zap.String("path", path), zap.Error(err))
			continue
		}

		category := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		for _, rec := range file.Patterns {
			if rec.RelationshipType == "" {
				continue
			}
			confidence := 0.7
			if rec.Confidence != nil {
				confidence = *rec.Confidence
			}
			patterns[category] = append(patterns[category], model.RelationshipPattern{
				RelationshipType: rec.RelationshipType,
				SourceEntityType: s.canonicalizeLocked(strings.ToUpper(rec.SourceEntityType)),
				TargetEntityType: s.canonicalizeLocked(strings.ToUpper(rec.TargetEntityType)),
				Indicators:       rec.Indicators,
				Examples:         rec.Examples,
				Bidirectional:    rec.Bidirectional,
				Category:         category,
				Confidence:       model.ClampConfidence(confidence),
			})
		}
	}
	s.relationshipPatterns = patterns
}

// GetRelationshipPatterns returns all relationship patterns grouped by
// category (the declaring file's stem).
func (s *Store) GetRelationshipPatterns() map[string][]model.RelationshipPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]model.RelationshipPattern, len(s.relationshipPatterns))
	for category, patterns := range s.relationshipPatterns {
		out[category] = append([]model.RelationshipPattern{}, patterns...)
	}
	return out
}

// GetRelationshipCategories returns, for each category, the sorted list of
// distinct relationship types it declares. Categories with no types are
// omitted.
func (s *Store) GetRelationshipCategories() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.relationshipPatterns))
	for category, patterns := range s.relationshipPatterns {
		seen := make(map[string]struct{})
		var types []string
		for _, p := range patterns {
			if _, ok := seen[p.RelationshipType]; !ok {
				seen[p.RelationshipType] = struct{}{}
				types = append(types, p.RelationshipType)
			}
		}
		if len(types) > 0 {
			sort.Strings(types)
			out[category] = types
		}
	}
	return out
}

// GetRelationshipTypes returns every distinct relationship type across all
// categories, sorted.
func (s *Store) GetRelationshipTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, patterns := range s.relationshipPatterns {
		for _, p := range patterns {
			seen[p.RelationshipType] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
