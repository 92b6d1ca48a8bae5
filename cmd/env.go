package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/index"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/rawstore"
	"github.com/sells-group/assessment-cli/internal/registry"
	"github.com/sells-group/assessment-cli/internal/resilience"
	anthropicpkg "github.com/sells-group/assessment-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store, registries, and the pipeline
// used by the run/serve/status commands.
type pipelineEnv struct {
	Index    *index.Service
	Raw      *rawstore.Store
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Index != nil {
		_ = pe.Index.Store().Close()
	}
}

// initStore opens the configured assessment index backend.
func initStore(ctx context.Context) (index.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return index.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "", "sqlite":
		return index.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the index store, raw store, registry, provider client,
// and pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := registry.Load()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	submitter := anthropicpkg.NewSubmitter(client,
		anthropicpkg.WithSubmitRate(cfg.Batch.SubmitRatePerSec, cfg.Batch.SubmitBurst),
		anthropicpkg.WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			RateLimitAttempts: cfg.Retry.RateLimitAttempts,
			InitialBackoff:    time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:        time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		}),
	)

	idx := index.NewService(st)
	raw := rawstore.New(cfg.Data.Dir)
	artifacts := pipeline.NewArtifacts(cfg.Data.Dir)

	return &pipelineEnv{
		Index:    idx,
		Raw:      raw,
		Pipeline: pipeline.New(cfg, reg, raw, artifacts, idx, submitter),
		Registry: reg,
	}, nil
}
