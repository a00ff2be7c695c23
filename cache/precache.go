package cache

import (
	"context"
	"errors"
	"math"

	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
)

var errBudgetReached = errors.New("pre-cache budget reached")

// Task is a running pre-cache job.
type Task struct {
	URL    string
	Budget int64

	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Cancel stops the task at the next segment boundary. onError receives ErrPreCacheCancelled.
func (t *Task) Cancel() {
	t.cancel(ErrPreCacheCancelled)
}

// Done is closed after the task's final callback returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// PreCacheCallbacks receive a task's outcome. Any of them may be nil.
type PreCacheCallbacks struct {
	// OnProgress receives the percentage of the byte budget downloaded so far.
	OnProgress func(percent float64)
	OnComplete func()
	OnError    func(err error)
}

// Budget is the number of bytes that cover targetDurationMs of media at the assumed bitrate.
// 0 means uncapped; negative durations have no budget.
func Budget(targetDurationMs int64) int64 {
	return constant.AssumedBitrate * max(targetDurationMs, 0) / 8000
}

// PreCache downloads the start of url into the store built from cfg, in the background.
// It stops on its own once Budget(targetDurationMs) bytes were read and reports completion;
// any other failure goes to OnError only.
func (m *Manager) PreCache(url string, cfg config.Cache, targetDurationMs int64, callbacks PreCacheCallbacks) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithCancelCause(m.ctx)
	task := &Task{
		URL:    url,
		Budget: Budget(targetDurationMs),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.pending.Add(1)

	var (
		store *Store
		err   error
	)
	switch {
	case targetDurationMs < 0:
		err = ErrNegativeDuration
	case !cfg.Enabled:
		err = ErrCacheDisabled
	default:
		store, err = m.getOrCreate(cfg)
	}

	if err != nil {
		go func() {
			defer m.pending.Done()
			m.finish(task, callbacks, err)
		}()
		return task
	}

	src := NewCachingSource(store, m.upstream())
	downloader := m.newDownloader(url, src, m.limiter)
	pool := m.pool

	go func() {
		pool.Go(func() error {
			defer m.pending.Done()
			m.finish(task, callbacks, runPreCache(ctx, task, downloader, callbacks.OnProgress))
			return nil
		})
	}()

	return task
}

// runPreCache returns nil on completion, including when the budget cut the download short.
func runPreCache(ctx context.Context, task *Task, downloader Downloader, onProgress func(float64)) error {
	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var (
		downloaded int64
		reported   float64
	)

	progress := func(n int64) {
		downloaded += n
		metrics.PreCacheBytesTotal.Add(float64(n))

		if task.Budget <= 0 {
			return
		}

		percent := math.Min(100, float64(downloaded)*100/float64(task.Budget))
		if onProgress != nil && percent-reported >= constant.PreCacheProgressStep {
			reported = percent
			onProgress(percent)
		}

		if downloaded >= task.Budget {
			stop(errBudgetReached)
		}
	}

	err := downloader.Download(ctx, progress)

	if errors.Is(context.Cause(ctx), errBudgetReached) {
		return nil
	}
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (m *Manager) finish(task *Task, callbacks PreCacheCallbacks, err error) {
	defer close(task.done)
	defer task.cancel(nil)

	switch {
	case err == nil:
		metrics.PreCacheTotal.WithLabelValues("complete").Inc()
		log.Debugf("pre-cache of %s complete", task.URL)
		if callbacks.OnComplete != nil {
			callbacks.OnComplete()
		}
	default:
		if errors.Is(err, errManagerReleased) {
			err = ErrStoreReleased
		}
		outcome := "error"
		if errors.Is(err, ErrPreCacheCancelled) {
			outcome = "cancelled"
		}
		metrics.PreCacheTotal.WithLabelValues(outcome).Inc()
		log.Warnf("pre-cache of %s failed: %v", task.URL, err)
		if callbacks.OnError != nil {
			callbacks.OnError(err)
		}
	}
}
