package server

import (
	"errors"
	"sync"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
)

type pipelineFactory func(cfg pipeline.Config) (pipelineInterface, error)

func buildPipeline(cfg pipeline.Config) (pipelineInterface, error) {
	pl, err := pipeline.NewBuilderFromConfig(cfg).Build()
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// pipelineCache holds one pipeline per code mode. Requests may override the
// configured gray_code setting; everything else comes from the base config.
type pipelineCache struct {
	mu      sync.Mutex
	base    pipeline.Config
	factory pipelineFactory
	byMode  map[bool]pipelineInterface
}

func newPipelineCache(base pipeline.Config, factory pipelineFactory) *pipelineCache {
	return &pipelineCache{
		base:    base,
		factory: factory,
		byMode:  make(map[bool]pipelineInterface),
	}
}

// DefaultGrayCode reports the configured code mode.
func (c *pipelineCache) DefaultGrayCode() bool {
	return c.base.Decode.GrayCode
}

// Get returns the pipeline for the given code mode, building it on first use.
func (c *pipelineCache) Get(grayCode bool) (pipelineInterface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pl, ok := c.byMode[grayCode]; ok {
		return pl, nil
	}
	cfg := c.base
	cfg.Decode.GrayCode = grayCode
	pl, err := c.factory(cfg)
	if err != nil {
		return nil, err
	}
	c.byMode[grayCode] = pl
	return pl, nil
}

// Info returns the info map of every built pipeline keyed by mode name.
func (c *pipelineCache) Info() map[string]map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]interface{}, len(c.byMode))
	for gray, pl := range c.byMode {
		out[modeName(gray)] = pl.Info()
	}
	return out
}

// Close closes all cached pipelines.
func (c *pipelineCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for gray, pl := range c.byMode {
		if err := pl.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.byMode, gray)
	}
	return errors.Join(errs...)
}

func modeName(gray bool) string {
	if gray {
		return "gray"
	}
	return "binary"
}
