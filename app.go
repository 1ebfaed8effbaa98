package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wa_message_composer/config"
	"wa_message_composer/generator"
	"wa_message_composer/provider"
	"wa_message_composer/sink"
)

// pipeline bundles everything needed to generate messages.
type pipeline struct {
	adapter      *provider.Adapter
	orchestrator *generator.Orchestrator
	regenerator  *generator.Regenerator
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	adapter := provider.NewAdapter(logger.Named("provider"))
	for _, s := range cfg.Providers {
		if s.Timeout == 0 {
			s.Timeout = cfg.Server.RequestTimeout
		}
		client, err := provider.NewClient(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", s.ID, err)
		}
		adapter.Register(s.ID, client)
	}

	gcfg := generator.Config{
		Providers:    cfg.PipelineProviders(),
		StageRetries: cfg.Pipeline.StageRetries,
		Options: provider.Options{
			Temperature: cfg.Pipeline.Temperature,
			MaxTokens:   cfg.Pipeline.MaxTokens,
		},
	}
	glog := logger.Named("generator")
	seq := generator.NewSequential(adapter, gcfg, glog)
	fan := generator.NewFanOut(adapter, gcfg, glog)

	var orch *generator.Orchestrator
	if cfg.Pipeline.Strategy == generator.StrategyFanOut {
		orch = generator.NewOrchestrator(glog, fan, seq)
	} else {
		orch = generator.NewOrchestrator(glog, seq, fan)
	}

	logger.Info("pipeline ready",
		zap.Strings("providers", adapter.Providers()),
		zap.String("strategy", cfg.Pipeline.Strategy),
		zap.Int("stage_retries", gcfg.StageRetries),
	)
	return &pipeline{
		adapter:      adapter,
		orchestrator: orch,
		regenerator:  generator.NewRegenerator(fan, glog),
	}, nil
}

func openStore(ctx context.Context, cfg config.SinkConfig) (sink.Store, error) {
	switch cfg.Kind {
	case "postgres":
		return sink.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "dynamodb":
		return sink.NewDynamoStore(cfg.DynamoDB.Region, cfg.DynamoDB.FeedbackTable, cfg.DynamoDB.AnalyticsTable)
	case "file", "":
		return sink.NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("sink kind %q not supported", cfg.Kind)
	}
}
