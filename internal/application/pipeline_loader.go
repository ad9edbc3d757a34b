package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/internal/ports"
)

// PipelineLoader turns pipeline definitions into executable pipelines.
// Compiled pipelines are cached by the SHA256 of their normalized
// definition, and concurrent loads of the same definition compile once.
type PipelineLoader struct {
	// validator performs struct tag validation of definitions.
	validator *validator.Validate
	// unitRegistry creates units by type.
	unitRegistry ports.UnitRegistry
	// cache stores compiled pipelines by definition hash.
	// Cached pipelines MUST NOT be mutated with Add.
	cache   map[string]*Pipeline
	cacheMu sync.RWMutex
	sf      singleflight.Group
}

// NewPipelineLoader creates a loader that builds units from unitRegistry.
func NewPipelineLoader(unitRegistry ports.UnitRegistry) (*PipelineLoader, error) {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &PipelineLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		cache:        make(map[string]*Pipeline),
	}, nil
}

// LoadFromFile loads and compiles the pipeline definition at path.
// The returned pipeline is shared with the cache and must not be mutated.
func (pl *PipelineLoader) LoadFromFile(ctx context.Context, path string) (*Pipeline, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return pl.load(ctx, data)
}

// LoadFromReader loads and compiles a pipeline definition from r.
// The returned pipeline is shared with the cache and must not be mutated.
func (pl *PipelineLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Pipeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return pl.load(ctx, data)
}

// Build compiles an in-memory definition, sharing the cache with the
// YAML entry points.
func (pl *PipelineLoader) Build(ctx context.Context, def *PipelineDefinition) (*Pipeline, error) {
	return pl.compile(ctx, def)
}

func (pl *PipelineLoader) load(ctx context.Context, data []byte) (*Pipeline, error) {
	def, err := pl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return pl.compile(ctx, def)
}

func (pl *PipelineLoader) compile(ctx context.Context, def *PipelineDefinition) (*Pipeline, error) {
	hash, err := pl.calculateHash(def)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := pl.sf.Do(hash, func() (any, error) {
		if pipeline, ok := pl.getCached(hash); ok {
			return pipeline, nil
		}

		if err := pl.validateDefinition(def); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		pipeline, err := pl.buildPipeline(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to build pipeline: %w", err)
		}

		pl.storeCached(hash, pipeline)
		return pipeline, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

// parseYAML decodes data strictly, rejecting unknown fields so that
// typos in a definition are not silently ignored.
func (pl *PipelineLoader) parseYAML(data []byte) (*PipelineDefinition, error) {
	var def PipelineDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &def, nil
}

func (pl *PipelineLoader) validateDefinition(def *PipelineDefinition) error {
	if err := pl.validator.Struct(def); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := pl.validateSemantics(def); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics enforces unique unit IDs, known unit types, valid
// parameters and a final affinity_result stage, without which the
// pipeline would produce no result.
func (pl *PipelineLoader) validateSemantics(def *PipelineDefinition) error {
	supported := pl.unitRegistry.GetSupportedTypes()
	seen := make(map[string]struct{}, len(def.Units))

	for _, unit := range def.Units {
		if _, exists := seen[unit.ID]; exists {
			return fmt.Errorf("duplicate unit ID %q", unit.ID)
		}
		seen[unit.ID] = struct{}{}

		if !slices.Contains(supported, unit.Type) {
			return fmt.Errorf("unit %s has unsupported type %q", unit.ID, unit.Type)
		}
		if err := ValidateUnitParameters(unit.Type, unit.Parameters); err != nil {
			return fmt.Errorf("unit %s parameter validation failed: %w", unit.ID, err)
		}
	}

	if last := def.Units[len(def.Units)-1]; last.Type != UnitTypeAffinityResult {
		return fmt.Errorf("last unit must be of type %s, got %s", UnitTypeAffinityResult, last.Type)
	}
	return nil
}

func (pl *PipelineLoader) buildPipeline(ctx context.Context, def *PipelineDefinition) (*Pipeline, error) {
	pipeline := NewPipeline(def.Metadata.Name)

	for _, unitConfig := range def.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		unit, err := pl.createUnit(unitConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create unit %s: %w", unitConfig.ID, err)
		}
		if err := pipeline.Add(NewUnitAdapter(unit, unitConfig.ID)); err != nil {
			return nil, fmt.Errorf("failed to add unit to pipeline: %w", err)
		}
	}

	return pipeline, nil
}

func (pl *PipelineLoader) createUnit(config UnitConfig) (ports.Unit, error) {
	params, err := decodeParameters(config.Parameters)
	if err != nil {
		return nil, err
	}

	unit, err := pl.unitRegistry.CreateUnit(config.Type, config.ID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}
	return unit, nil
}

// calculateHash hashes the re-encoded definition so that formatting and
// key order do not affect caching.
func (pl *PipelineLoader) calculateHash(def *PipelineDefinition) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(def); err != nil {
		return "", fmt.Errorf("failed to encode definition for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode definition for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (pl *PipelineLoader) getCached(hash string) (*Pipeline, bool) {
	pl.cacheMu.RLock()
	defer pl.cacheMu.RUnlock()

	pipeline, ok := pl.cache[hash]
	return pipeline, ok
}

func (pl *PipelineLoader) storeCached(hash string, pipeline *Pipeline) {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache[hash] = pipeline
}

// ClearCache drops every compiled pipeline.
func (pl *PipelineLoader) ClearCache() {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache = make(map[string]*Pipeline)
}

// DefaultPipelineDefinition returns the standard five-stage affinity
// pipeline configured from cfg.
func DefaultPipelineDefinition(cfg AffinityConfig) (*PipelineDefinition, error) {
	matrixParams := map[string]any{
		"numeric_range":          cfg.NumericRange,
		"numeric_fallback_range": cfg.NumericFallbackRange,
		"text_strategy":          cfg.TextStrategy,
		"workers":                cfg.Workers,
	}
	groupParams := map[string]any{"threshold": cfg.Threshold}

	var matrixNode, groupNode yaml.Node
	if err := matrixNode.Encode(matrixParams); err != nil {
		return nil, fmt.Errorf("encode similarity_matrix parameters: %w", err)
	}
	if err := groupNode.Encode(groupParams); err != nil {
		return nil, fmt.Errorf("encode group_formation parameters: %w", err)
	}

	return &PipelineDefinition{
		Version: "1.0.0",
		Metadata: Metadata{
			Name:        "affinity",
			Description: "Validate submissions, score pairs, cluster, pick representatives.",
		},
		Units: []UnitConfig{
			{ID: "validate", Type: UnitTypeSubmissionValidation},
			{ID: "matrix", Type: UnitTypeSimilarityMatrix, Parameters: matrixNode},
			{ID: "cluster", Type: UnitTypeGroupFormation, Parameters: groupNode},
			{ID: "representative", Type: UnitTypeRepresentative},
			{ID: "result", Type: UnitTypeAffinityResult},
		},
	}, nil
}
