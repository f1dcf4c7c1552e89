package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hilife/servicereport-backend/internal/completion"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/metrics"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Consumer *completion.Consumer
	Gatherer prometheus.Gatherer
	// Dependencies are pinged once before consuming, keyed by name.
	Dependencies map[string]pinger
}

// Service hosts the completion consumer and the metrics listener.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	consumer *completion.Consumer
	gatherer prometheus.Gatherer
	deps     map[string]pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("completion consumer is required")
	}
	if params.Gatherer == nil {
		params.Gatherer = prometheus.DefaultGatherer
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		consumer: params.Consumer,
		gatherer: params.Gatherer,
		deps:     params.Dependencies,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := pingDependency(ctx, s.logg, name, dep.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()
	go func() {
		if err := metrics.Serve(ctx, s.cfg.App.MetricsPort, s.gatherer, s.logg); err != nil {
			s.logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "completion consumer stopped unexpectedly", err)
			return err
		}
		return err
	}
}
