package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// CloseFunc allows using a function as an io.Closer
type CloseFunc func() error

func (f CloseFunc) Close() error {
	return f()
}

type namedService struct {
	name   string
	closer io.Closer
}

// Closers shuts registered services down in reverse order of registration.
type Closers struct {
	mu       sync.Mutex
	services []namedService
	logger   *zap.Logger
}

func newClosers(logger *zap.Logger) *Closers {
	return &Closers{logger: logger}
}

// Add registers a service for shutdown
func (c *Closers) Add(name string, closer io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.services = append(c.services, namedService{name: name, closer: closer})
	c.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown function
func (c *Closers) AddFunc(name string, fn func() error) {
	c.Add(name, CloseFunc(fn))
}

// Shutdown closes every service, newest first. A service that has not
// returned when ctx ends is reported as timed out. Shutdown is idempotent.
func (c *Closers) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	services := c.services
	c.services = nil
	c.mu.Unlock()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]

		done := make(chan error, 1)
		go func() {
			done <- s.closer.Close()
		}()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Error("Failed to shutdown service",
					zap.String("service", s.name),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			c.logger.Debug("Service shutdown complete", zap.String("service", s.name))
		case <-ctx.Done():
			c.logger.Error("Shutdown timeout for service", zap.String("service", s.name))
			errs = append(errs, fmt.Errorf("%s: shutdown timeout: %w", s.name, ctx.Err()))
		}
	}

	return errors.Join(errs...)
}
