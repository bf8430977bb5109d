package backend

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/model"
)

// Build assembles the adapter set from configuration. Backends without a
// credential are skipped with a warning; a duplicate name is an error
// because provenance is keyed by backend name.
func Build(cfgs []model.BackendConfig, cache model.CacheConfig, logger *zap.Logger) ([]Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var adapters []Adapter
	seen := make(map[string]bool)

	for _, bc := range cfgs {
		a, err := New(bc)
		if err != nil {
			if errors.Is(err, ErrMissingAPIKey) {
				logger.Warn("skipping backend without credentials",
					zap.String("backend", bc.Name),
					zap.String("provider", bc.Provider))
				continue
			}
			return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
		}
		if a == nil {
			continue
		}

		name := a.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate backend name: %s", name)
		}
		seen[name] = true

		if bc.RPS > 0 {
			a = WithRateLimit(a, bc.RPS, bc.Burst)
		}
		if cache.Enabled {
			a = WithCache(a, cache.TTL, cache.CleanupInterval)
		}

		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no research backends configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, XAI_API_KEY, GOOGLE_API_KEY, or configure ollama)")
	}

	return adapters, nil
}
