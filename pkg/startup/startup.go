package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is a startable piece of infrastructure (database, redis,
// kafka producer, http server, scheduler). Dependencies are started in
// dependency order and stopped in reverse.
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type status int

const (
	statusPending status = iota
	statusStarted
	statusStopped
	statusFailed
)

type Startup struct {
	dependencies []Dependency
	byName       map[string]Dependency
	statuses     map[string]status
	logger       ectologger.Logger
	maxAttempts  int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		logger:      logger,
		byName:      make(map[string]Dependency),
		statuses:    make(map[string]status),
		maxAttempts: maxAttempts,
	}
}

func (s *Startup) AddDependency(dependency Dependency) {
	s.dependencies = append(s.dependencies, dependency)
	s.byName[dependency.GetName()] = dependency
}

// Start brings up every registered dependency. Failed attempts are retried
// with fibonacci backoff up to maxAttempts.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, dependency := range s.dependencies {
			if err := s.startDependency(ctx, dependency); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", dependency.GetName(), attempt)
				lastErr = err
				break
			}
		}

		if lastErr == nil {
			return nil
		}

		if attempt >= s.maxAttempts {
			return fmt.Errorf("startup failed after %d attempts: %w", attempt, lastErr)
		}

		s.logger.Infof("Retrying in %d seconds (attempt %d/%d)", a, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a) * time.Second):
		}
		a, b = b, a+b
	}

	return lastErr
}

func (s *Startup) startDependency(ctx context.Context, dependency Dependency) error {
	if s.statuses[dependency.GetName()] == statusStarted {
		return nil
	}

	for _, name := range dependency.DependsOn() {
		if s.statuses[name] != statusStarted {
			dep, ok := s.byName[name]
			if !ok {
				return fmt.Errorf("dependency '%s' requires unregistered dependency '%s'", dependency.GetName(), name)
			}
			if err := s.startDependency(ctx, dep); err != nil {
				return err
			}
		}
	}

	s.logger.WithField("dependency", dependency.GetName()).Infof("Starting dependency '%s'", dependency.GetName())
	if err := dependency.Start(ctx); err != nil {
		s.statuses[dependency.GetName()] = statusFailed
		return err
	}
	s.statuses[dependency.GetName()] = statusStarted
	return nil
}

// Stop shuts down started dependencies in reverse registration order.
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.dependencies) - 1; i >= 0; i-- {
		dependency := s.dependencies[i]
		if s.statuses[dependency.GetName()] != statusStarted {
			continue
		}

		s.logger.WithField("dependency", dependency.GetName()).Infof("Stopping dependency '%s'", dependency.GetName())
		if err := dependency.Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", dependency.GetName()).Errorf("Failed to stop dependency '%s'", dependency.GetName())
			return err
		}
		s.statuses[dependency.GetName()] = statusStopped
	}
	return nil
}
