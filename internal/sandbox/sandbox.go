// Package sandbox runs learner-submitted scripts in a fresh interpreter and
// reports the top-level bindings they produced and everything they printed.
//
// The sandbox is an execution-isolation boundary, not a security boundary:
// scripts cannot see the host's variables and cannot write to the host's
// standard output, and every run is bounded by a step budget and a timeout,
// but no filesystem or network policy is enforced beyond the interpreter
// libraries that are left out.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runtime names the interpreter a script is written for.
type Runtime string

const (
	RuntimeStarlark Runtime = "starlark"
	RuntimeLua      Runtime = "lua"
)

// Valid reports whether r names a supported runtime.
func (r Runtime) Valid() bool {
	return r == RuntimeStarlark || r == RuntimeLua
}

// Execution is the outcome of running one script.
type Execution struct {
	Bindings  Bindings `json:"bindings"`
	Stdout    string   `json:"stdout"`
	Err       string   `json:"error,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Failed reports whether the script faulted.
func (e Execution) Failed() bool {
	return e.Err != ""
}

// Runner executes a script for a single runtime.
type Runner interface {
	Execute(ctx context.Context, script string) Execution
}

// Config bounds script execution.
type Config struct {
	Timeout        time.Duration
	MaxSteps       uint64
	MaxOutputBytes int
	MaxConcurrent  int
}

const (
	defaultTimeout        = 5 * time.Second
	defaultMaxSteps       = 10_000_000
	defaultMaxOutputBytes = 64 * 1024
	defaultMaxConcurrent  = 4

	// cancelGrace is how long Execute waits for an interrupted runner to
	// hand back its partial result before giving up on it.
	cancelGrace = 100 * time.Millisecond
)

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Timeout:        defaultTimeout,
		MaxSteps:       defaultMaxSteps,
		MaxOutputBytes: defaultMaxOutputBytes,
		MaxConcurrent:  defaultMaxConcurrent,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = d.MaxOutputBytes
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// Sandbox dispatches scripts to the runner for their runtime while bounding
// how many run at once and for how long.
type Sandbox struct {
	cfg     Config
	runners map[Runtime]Runner
	slots   semaphore
}

// New creates a sandbox with the Starlark and Lua runners.
func New(cfg Config) *Sandbox {
	cfg = cfg.withDefaults()
	return &Sandbox{
		cfg: cfg,
		runners: map[Runtime]Runner{
			RuntimeStarlark: NewStarlarkRunner(cfg),
			RuntimeLua:      NewLuaRunner(cfg),
		},
		slots: newSemaphore(cfg.MaxConcurrent),
	}
}

// Config returns the effective limits.
func (s *Sandbox) Config() Config {
	return s.cfg
}

// Execute runs script under rt. It never panics and never returns an error:
// every fault is reported in Execution.Err.
func (s *Sandbox) Execute(ctx context.Context, rt Runtime, script string) Execution {
	if rt == "" {
		rt = RuntimeStarlark
	}
	runner, ok := s.runners[rt]
	if !ok {
		return Execution{Bindings: Bindings{}, Err: fmt.Sprintf("unsupported runtime %q", rt)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.slots.acquire(ctx); err != nil {
		return Execution{Bindings: Bindings{}, Err: "sandbox busy: " + err.Error()}
	}

	start := time.Now()
	result := make(chan Execution, 1)
	go func() {
		// The slot is held until the runner really returns, so a runtime
		// that ignores cancellation still counts against the limit.
		defer s.slots.release()
		defer func() {
			if r := recover(); r != nil {
				result <- Execution{Bindings: Bindings{}, Err: fmt.Sprintf("interpreter panic: %v", r)}
			}
		}()
		result <- runner.Execute(ctx, script)
	}()

	var exec Execution
	select {
	case exec = <-result:
	case <-ctx.Done():
		select {
		case exec = <-result:
		case <-time.After(cancelGrace):
			exec = Execution{Bindings: Bindings{}, Err: fmt.Sprintf("execution cancelled: %v", ctx.Err())}
		}
	}

	slog.Debug("script executed",
		"runtime", rt,
		"duration_ms", time.Since(start).Milliseconds(),
		"bindings", len(exec.Bindings),
		"stdout_len", len(exec.Stdout),
		"failed", exec.Failed(),
	)
	return exec
}

// semaphore bounds concurrent executions.
type semaphore chan struct{}

func newSemaphore(n int) semaphore {
	return make(semaphore, n)
}

func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() {
	<-s
}
