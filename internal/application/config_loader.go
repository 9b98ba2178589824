package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// modelsDir is the directory under a config root that holds model files.
const modelsDir = "models"

// ConfigLoader provides YAML parsing, validation, and caching for model
// configurations, turning declarative YAML into domain.ModelSpec values.
// Use ConfigLoader to load models from files or readers while benefiting
// from SHA256-based caching and comprehensive validation.
type ConfigLoader struct {
	// validator performs struct field validation and the custom
	// validation rules for model configurations.
	validator *validator.Validate
	// lookup, when set, is used to reject unknown local metric ids at
	// load time instead of at compute time.
	lookup ports.MetricLookup
	logger *slog.Logger

	// cache stores converted specs indexed by SHA256 hash of the normalized
	// configuration. Cached specs MUST NOT be mutated.
	cache   map[string]domain.ModelSpec
	cacheMu sync.RWMutex
	// sf prevents duplicate validation when multiple goroutines load the
	// same configuration simultaneously.
	sf singleflight.Group
}

// LoaderOption configures a ConfigLoader.
type LoaderOption func(*ConfigLoader)

// WithMetricLookup makes the loader reject local metrics that are not registered.
func WithMetricLookup(l ports.MetricLookup) LoaderOption {
	return func(cl *ConfigLoader) { cl.lookup = l }
}

// WithLoaderLogger sets the structured logger.
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(cl *ConfigLoader) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewConfigLoader creates a loader with the custom validators registered
// and an empty cache.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader(opts ...LoaderOption) (*ConfigLoader, error) {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	cl := &ConfigLoader{
		validator: v,
		logger:    slog.Default(),
		cache:     make(map[string]domain.ModelSpec),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// load parses, validates and converts configuration bytes, reusing a
// cached spec for semantically identical input.
func (cl *ConfigLoader) load(ctx context.Context, data []byte) (domain.ModelSpec, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelSpec{}, err
	}

	config, err := cl.parseYAML(data)
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Hash the normalized config, not raw bytes, so formatting differences
	// share a cache entry.
	hash, err := cl.calculateConfigHash(config)
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if spec, ok := cl.getCached(hash); ok {
			return spec, nil
		}

		if err := cl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		spec, err := config.Spec()
		if err != nil {
			return nil, fmt.Errorf("failed to convert config: %w", err)
		}

		cl.putCached(hash, spec)
		cl.logger.Debug("model config loaded", "model_id", spec.ID, "metrics", len(spec.Metrics))
		return spec, nil
	})
	if err != nil {
		return domain.ModelSpec{}, err
	}
	return v.(domain.ModelSpec), nil
}

// LoadFromFile loads a model configuration from a YAML file.
// The returned spec may be shared with other callers and MUST NOT be mutated.
// LoadFromFile returns an error if reading, parsing, validation or
// conversion fails; a missing file wraps ports.ErrConfigNotFound.
func (cl *ConfigLoader) LoadFromFile(ctx context.Context, path string) (domain.ModelSpec, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ModelSpec{}, ports.NewConfigError(cleanPath, ports.ErrConfigNotFound)
		}
		return domain.ModelSpec{}, fmt.Errorf("failed to read file: %w", err)
	}

	spec, err := cl.load(ctx, data)
	if err != nil {
		return domain.ModelSpec{}, ports.NewConfigError(cleanPath, err)
	}
	return spec, nil
}

// LoadFromReader loads a model configuration from r.
// LoadFromReader performs the same validation as LoadFromFile.
func (cl *ConfigLoader) LoadFromReader(ctx context.Context, r io.Reader) (domain.ModelSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("failed to read data: %w", err)
	}
	return cl.load(ctx, data)
}

// LoadModel loads <configDir>/models/<modelID>.yaml.
func (cl *ConfigLoader) LoadModel(ctx context.Context, configDir, modelID string) (domain.ModelSpec, error) {
	if !identifierPattern.MatchString(modelID) {
		return domain.ModelSpec{}, fmt.Errorf("%w: invalid model id %q", domain.ErrInvalidConfiguration, modelID)
	}
	spec, err := cl.LoadFromFile(ctx, ModelPath(configDir, modelID))
	if err != nil {
		return domain.ModelSpec{}, err
	}
	if spec.ID != modelID {
		return domain.ModelSpec{}, fmt.Errorf("%w: file for %q declares model_id %q", domain.ErrInvalidConfiguration, modelID, spec.ID)
	}
	return spec, nil
}

// ModelPath returns the configuration file path of modelID.
func ModelPath(configDir, modelID string) string {
	return filepath.Join(ModelsDir(configDir), modelID+".yaml")
}

// ModelsDir returns the directory holding the model files of configDir.
func ModelsDir(configDir string) string {
	return filepath.Join(configDir, modelsDir)
}

// ModelSummary is the catalogue entry of a model.
type ModelSummary struct {
	ID      string
	Name    string
	Version string
	Tags    []string
	Path    string
}

// ListModels loads every *.yaml file under <configDir>/models in name order.
// Files that fail to load are skipped and reported together in the returned
// error; the summaries of valid files are always returned.
func (cl *ConfigLoader) ListModels(ctx context.Context, configDir string) ([]ModelSummary, error) {
	dir := ModelsDir(configDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.NewConfigError(dir, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		out  []ModelSummary
		errs []error
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		spec, err := cl.LoadFromFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, ModelSummary{
			ID:      spec.ID,
			Name:    spec.Name,
			Version: spec.Version,
			Tags:    spec.Tags,
			Path:    path,
		})
	}
	return out, errors.Join(errs...)
}

// FilterByTag returns the summaries carrying tag. An empty tag keeps all.
func FilterByTag(models []ModelSummary, tag string) []ModelSummary {
	if tag == "" {
		return models
	}
	var out []ModelSummary
	for _, m := range models {
		for _, t := range m.Tags {
			if t == tag {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// parseYAML unmarshals YAML data into a ModelConfig using strict decoding
// so configuration typos are not silently ignored.
func (cl *ConfigLoader) parseYAML(data []byte) (*ModelConfig, error) {
	var config ModelConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("YAML decode failed: empty document")
		}
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct tag validation followed by semantic validation.
func (cl *ConfigLoader) validateConfig(config *ModelConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		verr := domain.NewValidationError(fmt.Sprintf("model %q", config.ModelID))
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.AddErrorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return verr
		}
		return fmt.Errorf("struct validation failed: %w", err)
	}

	return validateSemantics(config, cl.lookup)
}

// Validate runs all checks on config without converting or caching it.
func (cl *ConfigLoader) Validate(config *ModelConfig) error {
	return cl.validateConfig(config)
}

// calculateConfigHash computes the SHA256 hash of the re-encoded config.
func (cl *ConfigLoader) calculateConfigHash(config *ModelConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (cl *ConfigLoader) getCached(hash string) (domain.ModelSpec, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()
	spec, ok := cl.cache[hash]
	return spec, ok
}

func (cl *ConfigLoader) putCached(hash string, spec domain.ModelSpec) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache[hash] = spec
}

// CacheSize returns the number of cached specs.
func (cl *ConfigLoader) CacheSize() int {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()
	return len(cl.cache)
}

// ClearCache removes all cached specs.
func (cl *ConfigLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache = make(map[string]domain.ModelSpec)
}
