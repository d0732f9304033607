// Package deploy runs the ordered steps of a configured deployment.
package deploy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eteu-technologies/hook-deployer/internal/config"
	"github.com/eteu-technologies/hook-deployer/internal/metrics"
)

// Notifier receives human-readable progress messages.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type Runner struct {
	executor Executor
	notifier Notifier
	guard    Guard
	logger   *zap.Logger
	metrics  *metrics.Metrics
	observer func(Progress)
}

type Option func(*Runner)

// WithGuard installs a concurrency guard around each run. The default guard
// lets runs overlap freely.
func WithGuard(g Guard) Option {
	return func(r *Runner) { r.guard = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithObserver registers fn to receive every state transition.
func WithObserver(fn func(Progress)) Option {
	return func(r *Runner) { r.observer = fn }
}

func NewRunner(executor Executor, notifier Notifier, opts ...Option) *Runner {
	r := &Runner{
		executor: executor,
		notifier: notifier,
		guard:    NopGuard{},
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("deploy")
	return r
}

// Run executes the steps of d in declared order inside d.Path, stopping at
// the first failing step. Progress is reported to the notifier; a failure is
// notified before it is returned.
func (r *Runner) Run(ctx context.Context, app string, d config.Deployment) (err error) {
	var release func()
	if release, err = r.guard.Acquire(ctx, app); err != nil {
		err = fmt.Errorf("failed to acquire deployment lock for %q: %w", app, err)
		return
	}
	defer release()

	start := time.Now()
	logger := r.logger.With(zap.String("app", app), zap.String("run_id", uuid.NewString()))

	progress := Progress{App: app, State: Pending, Step: -1}
	r.transition(&progress, Running, 0, "")

	logger.Info("deployment started", zap.Int("steps", len(d.Steps)), zap.String("path", d.Path))
	r.notifier.Notify(ctx, startingMessage(app))

	for idx, step := range d.Steps {
		r.transition(&progress, Running, idx, "")

		logger.Info("running step", zap.Int("idx", idx), zap.String("step", step.Name))
		r.notifier.Notify(ctx, executingMessage(step.Name))

		serr := r.executor.Execute(ctx, Command{
			App:     app,
			Step:    step.Name,
			Run:     step.Run,
			Dir:     d.Path,
			Env:     envList(d.Env),
			Timeout: d.StepTimeout(step),
		})
		r.metrics.ObserveStep(app, serr)
		if serr != nil {
			err = &StepError{App: app, Step: step.Name, Index: idx, Err: serr}
			break
		}
	}

	r.metrics.ObserveDeployment(app, time.Since(start), err)

	if err != nil {
		r.transition(&progress, Failed, progress.Step, err.Error())
		logger.Error("deployment failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		r.notifier.Notify(ctx, failureMessage(app, err))
		return
	}

	r.transition(&progress, Succeeded, -1, "")
	logger.Info("deployment succeeded", zap.Duration("took", time.Since(start)))
	r.notifier.Notify(ctx, successMessage(app))
	return
}

func (r *Runner) transition(p *Progress, state State, step int, detail string) {
	p.State = state
	p.Step = step
	p.Detail = detail
	if r.observer != nil {
		r.observer(*p)
	}
}

func envList(env map[string]string) (list []string) {
	for key, value := range env {
		list = append(list, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(list)
	return
}
