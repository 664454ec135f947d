package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"cds-backend/internal/storage"

	"gopkg.in/yaml.v2"
)

// ModelConfig describes where one family's weights live. An empty Weights
// prefix means the family runs on its built-in weights (local development
// and tests).
type ModelConfig struct {
	Weights string `yaml:"weights"`
}

type Registry struct {
	Models map[ModelFamily]ModelConfig `yaml:"models"`
}

func DefaultRegistry() *Registry {
	return &Registry{
		Models: map[ModelFamily]ModelConfig{
			FamilyImaging:    {},
			FamilyGenomic:    {},
			FamilyMultimodal: {},
		},
	}
}

// LoadRegistry reads the model registry file. Families the file does not
// mention fall back to built-in weights.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model registry %s: %w", path, err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse model registry %s: %w", path, err)
	}

	if registry.Models == nil {
		registry.Models = map[ModelFamily]ModelConfig{}
	}
	for family, cfg := range DefaultRegistry().Models {
		if _, ok := registry.Models[family]; !ok {
			registry.Models[family] = cfg
		}
	}

	return &registry, nil
}

// ModelCache owns the loaded models of one worker process. A model is loaded
// lazily on first use, with its weights fetched from the object store when
// the registry names a prefix, and stays resident until Release (worker
// shutdown or rotation).
type ModelCache struct {
	mu sync.Mutex

	registry      *Registry
	loaders       map[ModelFamily]ModelLoader
	store         storage.ObjectStore
	modelBucket   string
	localModelDir string

	models map[ModelFamily]Model
}

func NewModelCache(registry *Registry, store storage.ObjectStore, modelBucket, localModelDir string) *ModelCache {
	return &ModelCache{
		registry:      registry,
		loaders:       NewModelLoaders(),
		store:         store,
		modelBucket:   modelBucket,
		localModelDir: localModelDir,
		models:        make(map[ModelFamily]Model),
	}
}

func (c *ModelCache) Get(ctx context.Context, family ModelFamily) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if model, ok := c.models[family]; ok {
		return model, nil
	}

	cfg, ok := c.registry.Models[family]
	if !ok {
		return nil, fmt.Errorf("model family %s not present in registry", family)
	}

	loader, ok := c.loaders[family]
	if !ok {
		return nil, fmt.Errorf("no loader for model family %s", family)
	}

	modelDir := ""
	if cfg.Weights != "" {
		modelDir = filepath.Join(c.localModelDir, string(family))

		if _, err := os.Stat(modelDir); os.IsNotExist(err) {
			if c.store == nil {
				return nil, fmt.Errorf("model family %s requires weights %s but no object store is configured", family, cfg.Weights)
			}

			slog.Info("model weights not found locally, downloading", "family", family, "weights", cfg.Weights)
			if err := c.store.DownloadDir(ctx, c.modelBucket, cfg.Weights, modelDir, false); err != nil {
				return nil, fmt.Errorf("failed to download weights for %s: %w", family, err)
			}
		}
	}

	model, err := loader(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model: %w", family, err)
	}

	slog.Info("model loaded", "family", family, "weights", cfg.Weights)
	c.models[family] = model
	return model, nil
}

// Release tears down every resident model. Called at worker shutdown and
// before rotation so repeated load cycles cannot grow memory unbounded.
func (c *ModelCache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for family, model := range c.models {
		model.Release()
		delete(c.models, family)
	}
}
