package patternstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/brianjwalters/lexorch/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// compiledPattern pairs a pattern's raw match expression with its compiled
// form; kept out of model.Pattern so the model package stays regexp-free.
type compiledPattern struct {
	Expression string
	Regex      *regexp.Regexp
}

type loadedGroup struct {
	path  string
	hash  string
	group *model.PatternGroup
}

// loadFiles parses files on a bounded worker pool (plain goroutines +
// sync.WaitGroup + buffered result channel, the teacher's SyncManager
// idiom), then serializes insertion into the shared indexes by returning
// results to the caller for sequential application.
func (s *Store) loadFiles(ctx context.Context, files []string) ([]loadedGroup, int, int) {
	if len(files) == 0 {
		return nil, 0, 0
	}

	type result struct {
		group *loadedGroup
		err   error
		path  string
	}

	jobs := make(chan string, len(files))
	results := make(chan result, len(files))

	workers := s.maxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				g, err := s.loadPatternFile(path)
				results <- result{group: g, err: err, path: path}
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var groups []loadedGroup
	filesLoaded, errs := 0, 0
	for r := range results {
		if r.err != nil {
			errs++
			s.logger.Warn(ctx, "patternstore: failed to load pattern file",
				zap.String("path", r.path), zap.Error(r.err))
			continue
		}
		if r.group == nil {
			// Unchanged (hash match) or genuinely empty file; not an error.
			continue
		}
		filesLoaded++
		groups = append(groups, *r.group)
	}
	return groups, filesLoaded, errs
}

// loadPatternFile reads, hashes, and parses a single pattern file. It
// returns (nil, nil) when the file is unchanged since the last load or is
// empty, and a non-nil error only for genuine parse/IO failures — those are
// logged and counted by the caller, never fatal to the overall load.
func (s *Store) loadPatternFile(path string) (*loadedGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	hash := fileHash(data)

	s.mu.RLock()
	prev, known := s.fileHashes[path]
	s.mu.RUnlock()
	if known && prev == hash {
		return nil, nil
	}

	var content map[string]any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if content == nil {
		return nil, nil
	}

	metadata := extractMetadata(content, path, hash)
	groupName := generateGroupName(path, metadata)
	dependencies := extractGroupDependencies(content)

	group := &model.PatternGroup{
		GroupName:    groupName,
		Patterns:     make(map[string]*model.Pattern),
		Metadata:     metadata,
		Dependencies: dependencies,
	}

	compiled := make(map[string]*compiledPattern)
	loadPatternsFromContent(content, group, metadata, compiled, s.entityTypeMappings)

	s.mu.Lock()
	s.fileHashes[path] = hash
	for name, cp := range compiled {
		s.compiledRegex[name] = cp
	}
	s.mu.Unlock()

	return &loadedGroup{path: path, hash: hash, group: group}, nil
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func extractMetadata(content map[string]any, path, hash string) model.PatternMetadata {
	raw, _ := content["metadata"].(map[string]any)
	md := model.PatternMetadata{
		PatternType:    "unknown",
		Jurisdiction:   "unknown",
		PatternVersion: "1.0",
		FilePath:       path,
		FileHash:       hash,
	}
	if raw == nil {
		return md
	}
	if v, ok := raw["pattern_type"].(string); ok && v != "" {
		md.PatternType = v
	}
	if v, ok := raw["jurisdiction"].(string); ok && v != "" {
		md.Jurisdiction = v
	}
	if v, ok := raw["court_level"].(string); ok {
		md.CourtLevel = v
	}
	if v, ok := raw["bluebook_compliance"].(string); ok {
		md.BluebookCompliance = v
	}
	if v, ok := raw["pattern_version"].(string); ok && v != "" {
		md.PatternVersion = v
	}
	if v, ok := raw["created_date"].(string); ok {
		md.CreatedDate = v
	}
	if v, ok := raw["last_updated"].(string); ok {
		md.LastUpdated = v
	}
	if v, ok := raw["description"].(string); ok {
		md.Description = v
	}
	return md
}

func generateGroupName(path string, metadata model.PatternMetadata) string {
	if metadata.PatternType != "" && metadata.PatternType != "unknown" {
		return metadata.PatternType
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extractGroupDependencies(content map[string]any) []string {
	raw, ok := content["dependencies"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]any:
		if requires, ok := v["requires"].([]any); ok {
			return toStringSlice(requires)
		}
	case []any:
		return toStringSlice(v)
	}
	return nil
}

// loadPatternsFromContent mirrors pattern_loader.py's _load_patterns_from_content:
// a flat top-level "patterns" list is handled first, then every remaining
// top-level map section is treated as a named group of patterns.
func loadPatternsFromContent(
	content map[string]any,
	group *model.PatternGroup,
	metadata model.PatternMetadata,
	compiled map[string]*compiledPattern,
	mappings map[string]string,
) {
	if flat, ok := content["patterns"].([]any); ok {
		for idx, entry := range flat {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				name = fmt.Sprintf("pattern_%d", idx)
			}
			p, cp := compilePattern("patterns", name, m, metadata, mappings)
			if p != nil {
				group.Patterns[p.Name] = p
				if cp != nil {
					compiled[p.Name] = cp
				}
			}
		}
	}

	for section, raw := range content {
		if _, reserved := reservedSectionNames[section]; reserved {
			continue
		}
		sectionContent, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for patternName, raw := range sectionContent {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			p, cp := compilePattern(section, patternName, m, metadata, mappings)
			if p != nil {
				group.Patterns[p.Name] = p
				if cp != nil {
					compiled[p.Name] = cp
				}
			}
		}
	}
}

// compilePattern builds a model.Pattern and its compiled regex from a
// decoded YAML map. A pattern with no "pattern" field, or whose match
// expression fails to compile, is skipped (nil, nil) rather than coerced.
func compilePattern(
	section, name string,
	data map[string]any,
	metadata model.PatternMetadata,
	mappings map[string]string,
) (*model.Pattern, *compiledPattern) {
	exprRaw, ok := data["pattern"]
	if !ok {
		return nil, nil
	}
	expr, ok := exprRaw.(string)
	if !ok || expr == "" {
		return nil, nil
	}

	regex, err := regexp.Compile(expr)
	if err != nil {
		return nil, nil
	}

	confidence := 0.7
	switch v := data["confidence"].(type) {
	case float64:
		confidence = v
	case int:
		confidence = float64(v)
	}

	components := map[string]string{}
	if raw, ok := data["components"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				components[k] = s
			}
		}
	}

	var examples []string
	if raw, ok := data["examples"].([]any); ok {
		examples = toStringSlice(raw)
	}

	entityType := resolveEntityType(section, data["entity_types"], mappings)

	var deps []string
	if raw, ok := data["dependencies"].([]any); ok {
		deps = toStringSlice(raw)
	}

	validation := map[string]any{}
	if raw, ok := data["validation"].(map[string]any); ok {
		validation = raw
	}

	fullName := section + "." + name
	pattern := &model.Pattern{
		Name:            fullName,
		GroupName:       section,
		MatchExpression: expr,
		Confidence:      model.ClampConfidence(confidence),
		Components:      components,
		Examples:        examples,
		EntityType:      entityType,
		Dependencies:    deps,
		ValidationRules: validation,
		Metadata:        metadata,
	}
	return pattern, &compiledPattern{Expression: expr, Regex: regex}
}

// resolveEntityType determines a pattern's declared entity type: explicit
// entity_types field first (first element if a list), falling back to the
// section-name mapping table, falling back to the upper-cased section name
// itself.
func resolveEntityType(section string, raw any, mappings map[string]string) model.EntityType {
	var declared string
	switch v := raw.(type) {
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				declared = strings.ToUpper(s)
			}
		}
	case string:
		declared = strings.ToUpper(v)
	}
	if declared != "" {
		return canonicalize(declared, mappings)
	}

	if mapped, ok := sectionToEntityType[strings.ToLower(section)]; ok {
		return canonicalize(string(mapped), mappings)
	}
	return canonicalize(strings.ToUpper(section), mappings)
}

func canonicalize(raw string, mappings map[string]string) model.EntityType {
	mapped := raw
	if m, ok := mappings[raw]; ok {
		mapped = m
	}
	if _, ok := knownEntityTypes[model.EntityType(mapped)]; ok {
		return model.EntityType(mapped)
	}
	// Citation-shaped types (e.g. CASE_CITATION) are legitimate non-Entity
	// index keys even though they aren't in the EntityType enum; only truly
	// unrecognised values collapse to LEGAL_CONCEPT.
	if strings.HasSuffix(mapped, "_CITATION") {
		return model.EntityType(mapped)
	}
	return model.EntityTypeLegalConcept
}

func (s *Store) canonicalizeLocked(raw string) model.EntityType {
	return canonicalize(raw, s.entityTypeMappings)
}

func toStringSlice(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// buildIndexesLocked rebuilds every derived index from s.groups. Caller
// must hold the write lock.
func (s *Store) buildIndexesLocked() {
	s.patternIndex = make(map[string]string)
	s.entityTypeIndex = make(map[model.EntityType][]string)
	s.mappedEntityTypeIndex = make(map[model.EntityType][]string)
	s.dependencyGraph = make(map[string]map[string]struct{})

	for groupName, group := range s.groups {
		for patternName, pattern := range group.Patterns {
			s.patternIndex[patternName] = groupName

			if pattern.EntityType != "" {
				s.entityTypeIndex[pattern.EntityType] = append(s.entityTypeIndex[pattern.EntityType], patternName)

				mapped := s.canonicalizeLocked(string(pattern.EntityType))
				if mapped != pattern.EntityType {
					s.mappedEntityTypeIndex[mapped] = append(s.mappedEntityTypeIndex[mapped], patternName)
				}
			}

			deps := s.dependencyGraph[patternName]
			if deps == nil {
				deps = make(map[string]struct{})
				s.dependencyGraph[patternName] = deps
			}
			for _, d := range pattern.Dependencies {
				deps[d] = struct{}{}
			}
			for _, d := range group.Dependencies {
				deps[d] = struct{}{}
			}
		}
	}
}

// aggregateExamplesLocked collects examples from every loaded pattern,
// keyed by both the canonical and original (if different) entity type.
// Caller must hold the write lock.
func (s *Store) aggregateExamplesLocked() {
	s.aggregatedExamples = make(map[model.EntityType][]string)
	seen := make(map[model.EntityType]map[string]struct{})

	add := func(t model.EntityType, example string) {
		if seen[t] == nil {
			seen[t] = make(map[string]struct{})
		}
		if _, dup := seen[t][example]; dup {
			return
		}
		seen[t][example] = struct{}{}
		s.aggregatedExamples[t] = append(s.aggregatedExamples[t], example)
	}

	for _, group := range s.groups {
		for _, pattern := range group.Patterns {
			if pattern.EntityType == "" || len(pattern.Examples) == 0 {
				continue
			}
			mapped := s.canonicalizeLocked(string(pattern.EntityType))
			for _, ex := range pattern.Examples {
				add(mapped, ex)
				if mapped != pattern.EntityType {
					add(pattern.EntityType, ex)
				}
			}
		}
	}
}
