// Package worker runs import and render jobs on a bounded pool of
// goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/tile"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// Runner executes one task. Fetch, pack and render commands each provide
// their own.
type Runner interface {
	Run(ctx context.Context, task Task) (Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, task Task) (Output, error)

func (f RunnerFunc) Run(ctx context.Context, task Task) (Output, error) { return f(ctx, task) }

// Task is one unit of work: a category import or a tile render.
type Task struct {
	Category types.Category
	Endpoint string
	Coords   tile.Coords
}

// Name identifies the task in logs.
func (t Task) Name() string {
	if t.Category != "" {
		return string(t.Category)
	}
	return t.Coords.String()
}

// Output is what a Runner produced.
type Output struct {
	Path  string
	Count int
}

// Result represents the outcome of a task.
type Result struct {
	Task    Task
	Output  Output
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Runner     Runner
	OnProgress ProgressFunc
}

// Pool manages parallel task execution.
type Pool struct {
	workers    int
	runner     Runner
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		runner:     cfg.Runner,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns results in completion order.
// The function blocks until all tasks complete or the context is cancelled;
// tasks not started before cancellation are reported with ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// The channel is buffered for every task, so feeding never blocks.
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		defer close(done)
		failed := 0
		for result := range resultCh {
			results = append(results, result)
			if result.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(len(results), len(tasks), failed)
			}
		}
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Task: task, Err: err}
			continue
		}

		start := time.Now()
		out, err := p.runner.Run(ctx, task)
		results <- Result{
			Task:    task,
			Output:  out,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
