// Package model loads the wake-word classifier and scores feature tensors.
//
// Loading is strategy based. Each Strategy knows how to build a Scorer for
// one model architecture. A sidecar metadata file next to the model may pin
// the architecture; otherwise registered strategies are tried in order and
// the first that succeeds wins.
package model

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/features"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

// Architecture names a model family and its output interpretation.
type Architecture string

const (
	// ArchTFLiteSigmoid is a TFLite model with a single output logit.
	ArchTFLiteSigmoid Architecture = "tflite-sigmoid"
	// ArchTFLiteSoftmax is a TFLite model with [other, wake] output logits.
	ArchTFLiteSoftmax Architecture = "tflite-softmax"
)

// Scorer returns the probability that a feature tensor contains the wake word.
type Scorer interface {
	Predict(t *features.Tensor) (float64, error)
	Architecture() Architecture
	Close() error
}

// Options configures model loading.
type Options struct {
	// InputShape is the tensor shape the feature extractor produces. A model
	// declaring different dimensions is rejected.
	InputShape [3]int
	// Threads for the inference runtime, 0 picks a default.
	Threads int
	// XNNPACK enables the XNNPACK delegate when the runtime provides it.
	XNNPACK bool
	// Probabilities marks models whose outputs already have the activation applied.
	Probabilities bool
}

// Strategy builds a Scorer from raw model bytes.
type Strategy struct {
	Name Architecture
	Load func(data []byte, opts Options) (Scorer, error)
}

var (
	registryMu sync.RWMutex
	registry   []Strategy
)

// Register appends a strategy to the default load order. A strategy with an
// already registered name replaces the earlier one in place.
func Register(s Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()

	for i := range registry {
		if registry[i].Name == s.Name {
			registry[i] = s
			return
		}
	}
	registry = append(registry, s)
}

// Strategies returns the registered strategies in load order.
func Strategies() []Strategy {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return append([]Strategy(nil), registry...)
}

// Load reads the model at path and builds a Scorer using the registered strategies.
func Load(path string, opts Options) (Scorer, error) {
	return LoadWith(path, opts, Strategies())
}

// LoadWith is Load with an explicit strategy list.
func LoadWith(path string, opts Options, strategies []Strategy) (Scorer, error) {
	start := time.Now()
	log := GetLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		category := errors.CategoryModelLoad
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component(componentModel).
			Category(category).
			ModelContext(path, "").
			Build()
	}

	meta, err := LoadMetadata(path)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		if err := meta.CheckShape(opts.InputShape); err != nil {
			return nil, errors.New(err).
				Component(componentModel).
				Category(errors.CategoryValidation).
				ModelContext(path, string(meta.Architecture)).
				Build()
		}
		if meta.Probabilities {
			opts.Probabilities = true
		}
		if meta.Architecture != "" {
			strategies = selectStrategy(strategies, meta.Architecture)
			if len(strategies) == 0 {
				return nil, errors.Newf("no loader for model architecture %q", meta.Architecture).
					Component(componentModel).
					Category(errors.CategoryModelInit).
					ModelContext(path, string(meta.Architecture)).
					Build()
			}
		}
	}

	if len(strategies) == 0 {
		return nil, errors.Newf("no model loaders registered").
			Component(componentModel).
			Category(errors.CategoryModelInit).
			ModelContext(path, "").
			Build()
	}

	var errs []error
	for _, s := range strategies {
		scorer, err := s.Load(data, opts)
		if err == nil {
			log.Info("wake word model loaded",
				logger.String("path", path),
				logger.String("architecture", string(s.Name)),
				logger.Int("size_kb", len(data)/1024),
				logger.Duration("duration", time.Since(start)))
			return scorer, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	joined := errors.Join(errs...)
	log.Error("all model loaders failed",
		logger.String("path", path),
		logger.Int("attempts", len(errs)),
		logger.Error(joined))

	return nil, errors.New(joined).
		Component(componentModel).
		Category(errors.CategoryModelInit).
		ModelContext(path, "").
		Timing("model-load", time.Since(start)).
		Build()
}

func selectStrategy(strategies []Strategy, arch Architecture) []Strategy {
	for _, s := range strategies {
		if s.Name == arch {
			return []Strategy{s}
		}
	}
	return nil
}
