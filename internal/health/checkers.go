package health

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotRunning is reported by [Pipeline] while no pipeline run is active.
var ErrNotRunning = errors.New("pipeline is not running")

// PipelineStatus is the view of the orchestrator a readiness check needs.
type PipelineStatus interface {
	Running() bool
}

// Pipeline returns a checker that passes while p has an active run.
func Pipeline(p PipelineStatus) Checker {
	return Checker{
		Name: "pipeline",
		Check: func(context.Context) error {
			if !p.Running() {
				return ErrNotRunning
			}
			return nil
		},
	}
}

// Pinger is implemented by storage backends that can verify connectivity,
// such as a pgx connection pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker named name that pings p.
func Ping(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}
