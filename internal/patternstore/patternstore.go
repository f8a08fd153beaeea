// Package patternstore loads declarative YAML pattern files describing
// regular-expression matchers for legal entities and relationships, and
// presents the canonical set of Patterns, PatternGroups, and relationship
// patterns to the rest of the extraction pipeline.
package patternstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianjwalters/lexorch/internal/logging"
	"github.com/brianjwalters/lexorch/internal/model"
	"go.uber.org/zap"
)

// knownEntityTypes is the set of canonical EntityType values patterns may
// resolve to. An alias or section fallback that doesn't land in this set is
// folded into EntityTypeLegalConcept.
var knownEntityTypes = map[model.EntityType]struct{}{
	model.EntityTypeCourt:          {},
	model.EntityTypeJudge:          {},
	model.EntityTypeAttorney:       {},
	model.EntityTypeParty:          {},
	model.EntityTypeOrganization:   {},
	model.EntityTypeDocument:       {},
	model.EntityTypeMotion:         {},
	model.EntityTypeBrief:         {},
	model.EntityTypeOrder:          {},
	model.EntityTypeJudgment:       {},
	model.EntityTypeDate:           {},
	model.EntityTypeMonetaryAmount: {},
	model.EntityTypeProceduralRule: {},
	model.EntityTypeDistrict:       {},
	model.EntityTypeJurisdiction:   {},
	model.EntityTypeVenue:          {},
	model.EntityTypeLocation:       {},
	model.EntityTypeLegalConcept:   {},
}

// sectionToEntityType is the last-resort fallback used when a pattern
// record declares no explicit entity_types field; the pattern file's
// section name is mapped to a canonical entity type.
var sectionToEntityType = map[string]model.EntityType{
	"attorneys":                model.EntityTypeAttorney,
	"judges":                   model.EntityTypeJudge,
	"justices":                 model.EntityTypeJudge,
	"courts":                   model.EntityTypeCourt,
	"parties":                  model.EntityTypeParty,
	"case_citations":           "CASE_CITATION",
	"citations":                "LEGAL_CITATION",
	"federal_citations":        "FEDERAL_CASE_CITATION",
	"state_citations":          "STATE_CASE_CITATION",
	"statute_citations":        "STATUTE_CITATION",
	"regulation_citations":     "REGULATION_CITATION",
	"constitutional_citations": "CONSTITUTIONAL_CITATION",
	"districts":                model.EntityTypeDistrict,
	"jurisdictions":            model.EntityTypeJurisdiction,
	"venues":                   model.EntityTypeVenue,
	"documents":                model.EntityTypeDocument,
	"motions":                  model.EntityTypeMotion,
	"briefs":                   model.EntityTypeBrief,
	"orders":                   model.EntityTypeOrder,
	"judgments":                model.EntityTypeJudgment,
	"dates":                    model.EntityTypeDate,
	"monetary":                 model.EntityTypeMonetaryAmount,
	"procedural":               model.EntityTypeProceduralRule,
	"organizations":            model.EntityTypeOrganization,
	"locations":                model.EntityTypeLocation,
}

// reservedSectionNames are top-level YAML keys that are never treated as a
// pattern section, matching the original loader's skip-list.
var reservedSectionNames = map[string]struct{}{
	"metadata":       {},
	"entity_types":   {},
	"validation":     {},
	"quality_metrics": {},
	"dependencies":   {},
	"testing":        {},
	"patterns":       {},
	"entity_patterns": {},
	"generic_state":  {},
}

// LoadMetrics summarizes one load_all/reload pass.
type LoadMetrics struct {
	FilesLoaded   int
	PatternsLoaded int
	LoadErrors    int
	LastLoadTime  time.Time
	TotalLoadTime time.Duration
}

// Store is the C1 Pattern Store. All fields are guarded by mu; readers take
// a read lock, mutators (LoadAll/Reload) take the write lock to apply parsed
// groups and rebuild the indexes, matching the teacher's registry.Registry
// locking idiom.
type Store struct {
	mu sync.RWMutex

	dir        string
	maxWorkers int
	logger     *logging.Logger

	groups                map[string]*model.PatternGroup
	patternIndex          map[string]string                 // full pattern name -> group name
	entityTypeIndex       map[model.EntityType][]string     // raw/declared entity type -> pattern names
	mappedEntityTypeIndex map[model.EntityType][]string     // canonical entity type -> pattern names
	dependencyGraph       map[string]map[string]struct{}    // pattern name -> dependency names
	fileHashes            map[string]string                // file path -> sha256 hex
	aggregatedExamples    map[model.EntityType][]string
	compiledRegex         map[string]*compiledPattern

	entityTypeMappings map[string]string // raw alias -> canonical string

	relationshipPatterns   map[string][]model.RelationshipPattern // category -> patterns
	relationshipTypesCache []string

	metrics LoadMetrics
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMaxWorkers bounds the worker pool used for parallel file parsing.
func WithMaxWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithLogger attaches a logger; if omitted a no-op test logger is used.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store rooted at dir and performs the initial LoadAll. A
// missing directory is a warning, not an error: the Store starts empty and
// Reload can pick up files created later.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:                   dir,
		maxWorkers:            4,
		groups:                make(map[string]*model.PatternGroup),
		patternIndex:          make(map[string]string),
		entityTypeIndex:       make(map[model.EntityType][]string),
		mappedEntityTypeIndex: make(map[model.EntityType][]string),
		dependencyGraph:       make(map[string]map[string]struct{}),
		fileHashes:            make(map[string]string),
		aggregatedExamples:    make(map[model.EntityType][]string),
		compiledRegex:         make(map[string]*compiledPattern),
		relationshipPatterns:  make(map[string][]model.RelationshipPattern),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewTestLogger().Logger
	}

	s.entityTypeMappings = loadEntityTypeMappings(s.dir, s.logger)

	if err := s.LoadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadAll recursively enumerates pattern files under dir, parses and
// compiles new/changed ones, and rebuilds all indexes. It always returns
// nil: a malformed individual file is logged and counted in LoadErrors, and
// a missing or unreadable directory is logged as a warning and treated as
// zero files.
func (s *Store) LoadAll() error {
	start := time.Now()
	ctx := context.Background()

	files, err := discoverPatternFiles(s.dir)
	if err != nil {
		s.logger.Warn(ctx, "patternstore: directory does not exist", zap.String("dir", s.dir), zap.Error(err))
		files = nil
	}

	// Files are parsed before the write lock is taken: loadPatternFile
	// takes the lock itself to read and record file hashes.
	groups, loaded, errs := s.loadFiles(ctx, files)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range groups {
		s.groups[g.group.GroupName] = g.group
	}

	s.buildIndexesLocked()
	s.aggregateExamplesLocked()
	s.loadRelationshipPatternsLocked(ctx)

	s.metrics.FilesLoaded += loaded
	s.metrics.LoadErrors += errs
	for _, g := range groups {
		s.metrics.PatternsLoaded += len(g.group.Patterns)
	}
	s.metrics.LastLoadTime = time.Now()
	s.metrics.TotalLoadTime += time.Since(start)

	s.logger.Info(ctx, "patternstore: load complete",
		zap.Int("files_loaded", loaded),
		zap.Int("load_errors", errs),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Reload re-walks the pattern directory and reloads only files whose
// content hash changed; groups backed by unchanged files remain live.
func (s *Store) Reload() error {
	return s.LoadAll()
}

// discoverPatternFiles walks root recursively for *.yaml/*.yml files. A
// missing root returns a nil slice and the stat error, never panics.
func discoverPatternFiles(root string) ([]string, error) {
	if root == "" {
		return nil, os.ErrNotExist
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, don't abort the walk
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// GetPattern returns a pattern by its full name ("group.pattern" or
// "section.pattern"), or nil if not found.
func (s *Store) GetPattern(fullName string) *model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPatternLocked(fullName)
}

// CanonicalizeEntityType maps a raw entity-type string (as declared in a
// pattern file, or returned by an LLM wave) through the alias table to its
// canonical form, folding to EntityTypeLegalConcept when unrecognised. The
// orchestrator uses this to normalise wave output before deduplication.
func (s *Store) CanonicalizeEntityType(raw string) model.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonicalizeLocked(raw)
}

func (s *Store) getPatternLocked(fullName string) *model.Pattern {
	groupName, ok := s.patternIndex[fullName]
	if !ok {
		return nil
	}
	group, ok := s.groups[groupName]
	if !ok {
		return nil
	}
	return group.Patterns[fullName]
}

// GetPatternsByEntityType returns every pattern declaring entityType,
// checking both the canonical (mapped) index and the raw declared-alias
// index so callers may query by either form.
func (s *Store) GetPatternsByEntityType(entityType model.EntityType) []*model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var patterns []*model.Pattern

	for _, name := range s.mappedEntityTypeIndex[entityType] {
		if _, ok := seen[name]; ok {
			continue
		}
		if p := s.getPatternLocked(name); p != nil {
			patterns = append(patterns, p)
			seen[name] = struct{}{}
		}
	}
	for _, name := range s.entityTypeIndex[entityType] {
		if _, ok := seen[name]; ok {
			continue
		}
		if p := s.getPatternLocked(name); p != nil {
			patterns = append(patterns, p)
			seen[name] = struct{}{}
		}
	}
	return patterns
}

// GetPatternsByConfidence returns every pattern with confidence >= min.
func (s *Store) GetPatternsByConfidence(min float64) []*model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var patterns []*model.Pattern
	for _, g := range s.groups {
		for _, p := range g.Patterns {
			if p.Confidence >= min {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

// GetEntityTypes returns every entity type indexed (raw and canonical),
// sorted.
func (s *Store) GetEntityTypes() []model.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.EntityType]struct{})
	for t := range s.entityTypeIndex {
		seen[t] = struct{}{}
	}
	for t := range s.mappedEntityTypeIndex {
		seen[t] = struct{}{}
	}
	return sortedEntityTypes(seen)
}

// GetEntityTypesWithExamples returns only entity types that have at least
// one aggregated or pattern-level example.
func (s *Store) GetEntityTypesWithExamples() []model.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.EntityType]struct{})
	for t := range s.entityTypeIndex {
		seen[t] = struct{}{}
	}
	for t := range s.mappedEntityTypeIndex {
		seen[t] = struct{}{}
	}

	var withExamples []model.EntityType
	for t := range seen {
		if len(s.aggregatedExamples[t]) > 0 {
			withExamples = append(withExamples, t)
			continue
		}
		for _, name := range append(append([]string{}, s.entityTypeIndex[t]...), s.mappedEntityTypeIndex[t]...) {
			if p := s.getPatternLocked(name); p != nil && len(p.Examples) > 0 {
				withExamples = append(withExamples, t)
				break
			}
		}
	}
	return sortedEntityTypes(toSet(withExamples))
}

// GetAggregatedExamples returns the examples aggregated across every
// pattern declaring entityType, trying the canonical form first.
func (s *Store) GetAggregatedExamples(entityType model.EntityType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapped := s.canonicalizeLocked(string(entityType))
	if ex, ok := s.aggregatedExamples[mapped]; ok {
		return append([]string{}, ex...)
	}
	if ex, ok := s.aggregatedExamples[entityType]; ok {
		return append([]string{}, ex...)
	}
	return nil
}

// ValidateDependencies returns, for every pattern declaring dependencies,
// the subset of those dependencies that do not resolve to a loaded pattern.
func (s *Store) ValidateDependencies() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	missing := make(map[string][]string)
	for name, deps := range s.dependencyGraph {
		var miss []string
		for dep := range deps {
			if _, ok := s.patternIndex[dep]; !ok {
				miss = append(miss, dep)
			}
		}
		if len(miss) > 0 {
			sort.Strings(miss)
			missing[name] = miss
		}
	}
	return missing
}

// CompiledRegex returns the compiled form (expression and *regexp.Regexp)
// of a pattern by full name, or nil if no loaded pattern has that name;
// patterns whose expression fails to compile are never loaded.
func (s *Store) CompiledRegex(fullName string) *compiledPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiledRegex[fullName]
}

func sortedEntityTypes(set map[model.EntityType]struct{}) []model.EntityType {
	out := make([]model.EntityType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toSet(types []model.EntityType) map[model.EntityType]struct{} {
	set := make(map[model.EntityType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}
