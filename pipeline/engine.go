package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/livepeer/dubworker/broker"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/progress"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/store"
	"github.com/livepeer/dubworker/video"
	"golang.org/x/sync/errgroup"
)

// Engine is the Pipeline Engine (C6): it consumes task-ids off the broker
// and runs the staged S1-S9 pipeline (§4.6) against the Task Registry,
// Artifact Store and Asset Deduplicator, reporting progress throughout.
// In the same Coordinator/errgroup supervision idiom, but
// reworked to be stage-based rather than single-handler-per-job.
type Engine struct {
	Registry *registry.Registry
	Store    *store.Store
	Broker   *broker.Broker
	Prober   video.Prober

	Downloader Downloader
	Renderer   Renderer
	EmitSRT    SubtitleEmitter
	Caps       *CapabilityRegistry
	ModelCache *ModelCache

	Cli config.Cli
}

// Run starts cli.WorkerConcurrency workers consuming the processing queue
// until ctx is cancelled (§4.6's worker-pool requirement; §9's errgroup
// supervision idiom, following the same main-loop pattern).
func (e *Engine) Run(ctx context.Context) error {
	deliveries, err := e.Broker.Consume(broker.ProcessingQueue, "dubworker-engine")
	if err != nil {
		return fmt.Errorf("starting broker consumer: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	concurrency := e.Cli.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultWorkerConcurrency
	}
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					e.processDelivery(ctx, d)
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) processDelivery(ctx context.Context, d broker.Delivery) {
	taskID := d.Envelope.TaskID
	metrics.Default.JobsInFlight.Inc()
	defer metrics.Default.JobsInFlight.Dec()

	hardCtx, cancel := context.WithTimeout(ctx, e.hardTimeLimit())
	defer cancel()

	if err := e.runTask(hardCtx, taskID); err != nil {
		log.LogError(taskID, "task failed", err)
	}
	// At-least-once delivery (§4.2): ack only after the terminal state is
	// durably recorded by runTask, success or failure alike, so a crash
	// mid-stage redelivers instead of silently losing the task.
	if err := d.Ack(); err != nil {
		log.LogError(taskID, "acking delivery", err)
	}
}

func (e *Engine) hardTimeLimit() time.Duration {
	if e.Cli.TaskHardTimeLimit > 0 {
		return e.Cli.TaskHardTimeLimit
	}
	return config.DefaultTaskHardTimeLimit
}

func (e *Engine) softTimeLimit() time.Duration {
	if e.Cli.TaskSoftTimeLimit > 0 {
		return e.Cli.TaskSoftTimeLimit
	}
	return config.DefaultTaskSoftTimeLimit
}

// runTask drives one task through S1-S9. A redelivered message for a task
// already in a terminal state is a no-op. Otherwise the stages run again
// from the start; only the probe stage reuses earlier work, skipping the
// probe when the record already carries SourceMetadata (§4.2).
func (e *Engine) runTask(ctx context.Context, taskID string) error {
	rec, err := e.Registry.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("loading task %s: %w", taskID, err)
	}
	if rec.State == registry.Success || rec.State == registry.Failure {
		return nil // already terminal; a redelivered message for a finished task is a no-op
	}

	workspace, err := e.Store.NewWorkspace(taskID)
	if err != nil {
		return e.fail(ctx, taskID, nil, errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("creating workspace: %v", err), err))
	}
	defer e.Store.DestroyWorkspace(workspace)

	weights := progress.NewWeightTable()
	if rec.UserChoices.TargetLang == "" {
		weights.Disable("translate")
	}
	if !rec.UserChoices.BurnIn {
		weights.Disable("burn_in")
	}
	reporter := progress.NewReporter(weights, func(snap progress.Snapshot) {
		if err := e.Registry.UpdateProgress(ctx, taskID, snap); err != nil {
			log.LogError(taskID, "publishing progress", err)
		}
	})

	soft, cancelSoft := context.WithTimeout(ctx, e.softTimeLimit())
	defer cancelSoft()

	run := &taskRun{engine: e, ctx: soft, taskID: taskID, workspace: workspace, rec: rec, reporter: reporter}
	result, taskErr := run.execute()

	if taskErr != nil {
		reporter.TaskFail()
		return e.fail(ctx, taskID, result, taskErr)
	}
	reporter.TaskComplete()
	if err := e.Registry.Complete(ctx, taskID, *result); err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}
	metrics.Default.TaskTerminalCount.WithLabelValues("Success", "").Inc()
	return nil
}

func (e *Engine) fail(ctx context.Context, taskID string, partial *registry.Result, taskErr *errors.TaskError) error {
	metrics.Default.TaskTerminalCount.WithLabelValues("Failure", string(taskErr.Code)).Inc()
	metrics.Default.StageFailureCount.WithLabelValues("unknown", string(taskErr.Code)).Inc()
	if err := e.Registry.Fail(ctx, taskID, taskErr, partial); err != nil {
		return fmt.Errorf("recording failure for task %s: %w", taskID, err)
	}
	return taskErr
}

// workspacePath joins a filename under this task's scratch directory.
func workspacePath(workspace, name string) string {
	return filepath.Join(workspace, name)
}

// mergeSegments assembles batch results back into a single, index-ordered
// slice (§4.6's streaming-overlap requirement: "in-order merge by segment
// index" once every batch has returned).
func mergeSegments(batches [][]Segment) []Segment {
	var total int
	for _, b := range batches {
		total += len(b)
	}
	out := make([]Segment, 0, total)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// boundedBatchTranslate runs TranslateBatch over sequential batches of
// segments with up to `parallel` batches in flight at once, preserving the
// original batch order in the returned slice (§4.6.3/§9).
func boundedBatchTranslate(ctx context.Context, translator Translator, segments []Segment, srcLang, tgtLang string, batchSize, parallel int) ([]Segment, error) {
	if batchSize <= 0 {
		batchSize = config.DefaultTranslationBatchSize
	}
	if parallel <= 0 {
		parallel = config.DefaultTranslationParallelism
	}

	var batches [][]Segment
	for i := 0; i < len(segments); i += batchSize {
		end := i + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batches = append(batches, segments[i:end])
	}

	results := make([][]Segment, len(batches))
	errs := make([]error, len(batches))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := translator.TranslateBatch(ctx, batch, srcLang, tgtLang)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = out
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return mergeSegments(results), nil
}
