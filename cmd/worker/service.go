package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type dependency struct {
	name string
	ping func(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []dependency
	Consumers    map[string]consumer
}

// Service runs every consumer until one fails or ctx ends.
type Service struct {
	logg      *logger.Logger
	deps      []dependency
	consumers map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumers: params.Consumers}, nil
}

func (s *Service) Run(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.consumers))
	for name, c := range s.consumers {
		go func() {
			err := c.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("consumer %s: %w", name, err)
			}
			errCh <- err
		}()
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err == nil {
			err = errors.New("consumer exited")
		}
		if !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		}
		return err
	}
}
