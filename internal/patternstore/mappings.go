package patternstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/brianjwalters/lexorch/internal/logging"
	"go.uber.org/zap"
)

// entityTypeMappingsFile is the on-disk shape of entity_type_mappings.json:
// a flat alias -> canonical-entity-type-string table.
type entityTypeMappingsFile struct {
	EntityTypeMappings map[string]string `json:"entity_type_mappings"`
}

// loadEntityTypeMappings reads <patternsDir>/../config/entity_type_mappings.json.
// A missing file is a warning, not an error: the store runs with an empty
// mapping table and every declared entity type is used as its own canonical
// form (or folds to LEGAL_CONCEPT if unrecognised).
func loadEntityTypeMappings(patternsDir string, logger *logging.Logger) map[string]string {
	ctx := context.Background()
	if patternsDir == "" {
		return map[string]string{}
	}

	path := filepath.Join(filepath.Dir(patternsDir), "config", "entity_type_mappings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn(ctx, "patternstore: entity type mappings file not found", zap.String("path", path))
		return map[string]string{}
	}

	var parsed entityTypeMappingsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Error(ctx, "patternstore: failed to parse entity type mappings", zap.String("path", path), zap.Error(err))
		return map[string]string{}
	}

	logger.Info(ctx, "patternstore: loaded entity type mappings",
		zap.Int("count", len(parsed.EntityTypeMappings)), zap.String("path", path))
	return parsed.EntityTypeMappings
}
