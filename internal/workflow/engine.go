// Package workflow runs an ordered list of named steps against a shared
// Context, retrying each step independently per its own policy. It is
// grounded in the lighter in-memory engine adapter pattern rather than a
// durable/replayable one: steps here are single-call, sub-second
// operations, not long-running agent workflows.
package workflow

import (
	"context"
	"fmt"
	"time"
)

// Step is one named unit of work executed against a shared Context.
type Step interface {
	Name() string
	Execute(ctx context.Context, wc *Context) error
}

// RetryPolicy bounds how many times a single step is retried and how
// long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// StepConfig declares one step's position, whether it runs, and its
// retry policy.
type StepConfig struct {
	Name    string
	Enabled bool
	Retry   RetryPolicy
}

// Engine runs declared steps, in order, against a Context.
type Engine struct {
	steps map[string]Step
}

// NewEngine returns an Engine with no steps registered.
func NewEngine() *Engine {
	return &Engine{steps: make(map[string]Step)}
}

// Register adds step under its own name. Registering the same name twice
// is a configuration error.
func (e *Engine) Register(step Step) error {
	name := step.Name()
	if _, dup := e.steps[name]; dup {
		return fmt.Errorf("workflow: step %q already registered", name)
	}
	e.steps[name] = step
	return nil
}

// Run executes configs in order against wc. Disabled steps are skipped.
// Each step is retried up to its RetryPolicy.MaxAttempts times, sleeping
// RetryPolicy.Delay between attempts; on final failure Run returns that
// error immediately without running subsequent steps. An unregistered
// step name is a configuration error.
func (e *Engine) Run(ctx context.Context, wc *Context, configs []StepConfig) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		step, ok := e.steps[cfg.Name]
		if !ok {
			return fmt.Errorf("workflow: unknown step %q", cfg.Name)
		}

		attempts := cfg.Retry.MaxAttempts
		if attempts <= 0 {
			attempts = 1
		}

		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			lastErr = step.Execute(ctx, wc)
			if lastErr == nil {
				break
			}
			if attempt < attempts && cfg.Retry.Delay > 0 {
				select {
				case <-time.After(cfg.Retry.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if lastErr != nil {
			return fmt.Errorf("workflow: step %q failed after %d attempt(s): %w", cfg.Name, attempts, lastErr)
		}
	}
	return nil
}
