package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/MeKo-Tech/trafficmap/internal/worker"
)

// runTasks runs tasks on a worker pool with progress output and logs every
// failure. It returns an error for failures unless allowFailures is set.
func runTasks(ctx context.Context, what string, tasks []worker.Task, runner worker.Runner, workers int, showProgress, allowFailures bool) ([]worker.Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	progress := worker.NewProgress(len(tasks), what, showProgress)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Runner:     runner,
		OnProgress: progress.Callback(),
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Task failed", "task", r.Task.Name(), "error", r.Err)
			continue
		}
		logger.Debug("Task done", "task", r.Task.Name(), "path", r.Output.Path, "count", r.Output.Count, "elapsed", r.Elapsed)
	}

	logger.Info(progress.Summary())

	if failedCount > 0 {
		if !allowFailures {
			return results, fmt.Errorf("%d %s failed", failedCount, what)
		}
		logger.Warn("Some tasks failed, but continuing due to --allow-failures flag", "failed_count", failedCount)
	}
	return results, nil
}

// parseCategories parses a comma-separated category list; empty means all.
func parseCategories(s string) ([]types.Category, error) {
	if strings.TrimSpace(s) == "" {
		return append([]types.Category(nil), types.Categories...), nil
	}

	seen := make(map[types.Category]bool)
	var out []types.Category
	for _, part := range strings.Split(s, ",") {
		cat, err := types.ParseCategory(part)
		if err != nil {
			return nil, err
		}
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out, nil
}
