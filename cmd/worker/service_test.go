package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type consumerFunc func(ctx context.Context) error

func (f consumerFunc) Run(ctx context.Context) error { return f(ctx) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunStopsOnConsumerFailure(t *testing.T) {
	blocked := consumerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	broken := consumerFunc(func(context.Context) error { return errors.New("subscription deleted") })

	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: map[string]consumer{"blocked": blocked, "broken": broken},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer broken: subscription deleted")
}

func TestRunFailsFastOnDependency(t *testing.T) {
	called := false
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Dependencies: []dependency{
			{name: "redis", ping: func(context.Context) error { return errors.New("refused") }},
		},
		Consumers: map[string]consumer{"c": consumerFunc(func(context.Context) error {
			called = true
			return nil
		})},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.EqualError(t, err, "redis ping failed: refused")
	assert.False(t, called)
}

func TestRunReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Consumers: map[string]consumer{"c": consumerFunc(func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		})},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}
