package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pooow/syschange/internal/filesystem"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// HashStats counts how records were hashed
type HashStats struct {
	Inline  int
	Pooled  int
	Failed  int
	Workers int
}

// HashScheduler hashes small files on the caller's goroutine and hands large
// ones to a fixed pool of workers
type HashScheduler struct {
	workers   int
	threshold int64
	logger    *zap.Logger

	queue     chan *models.FileRecord
	wg        sync.WaitGroup
	startOnce sync.Once
	waitOnce  sync.Once

	inline atomic.Int64
	pooled atomic.Int64
	failed atomic.Int64
}

// DefaultWorkers returns the pool size used when none is configured
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()+4)
}

// NewHashScheduler creates a scheduler. Files larger than threshold bytes are
// hashed by the pool.
func NewHashScheduler(workers int, threshold int64, logger *zap.Logger) *HashScheduler {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &HashScheduler{
		workers:   workers,
		threshold: threshold,
		logger:    logger,
		queue:     make(chan *models.FileRecord, workers*2),
	}
}

// Start launches the worker pool
func (h *HashScheduler) Start() {
	h.startOnce.Do(func() {
		for i := 0; i < h.workers; i++ {
			h.wg.Add(1)
			go h.worker()
		}
	})
}

// Submit hashes rec inline or queues it for the pool. The record must not be
// touched by the caller until Wait returns.
func (h *HashScheduler) Submit(rec *models.FileRecord) {
	if rec.Size <= h.threshold {
		h.hash(rec)
		h.inline.Add(1)
		return
	}
	h.Start()
	h.queue <- rec
}

// Wait closes the queue and blocks until every queued record is hashed
func (h *HashScheduler) Wait() HashStats {
	h.waitOnce.Do(func() {
		close(h.queue)
		h.wg.Wait()
	})
	return HashStats{
		Inline:  int(h.inline.Load()),
		Pooled:  int(h.pooled.Load()),
		Failed:  int(h.failed.Load()),
		Workers: h.workers,
	}
}

// worker processes records from the queue
func (h *HashScheduler) worker() {
	defer h.wg.Done()

	for rec := range h.queue {
		h.hash(rec)
		h.pooled.Add(1)
	}
}

func (h *HashScheduler) hash(rec *models.FileRecord) {
	sum, err := filesystem.HashFile(rec.Path)
	if err != nil {
		rec.Hash = models.HashResult{
			Status: models.HashFailed,
			Err:    fmt.Errorf("%w: %s: %v", models.ErrHash, rec.Path, err),
		}
		h.failed.Add(1)
		h.logger.Warn("Failed to hash file", zap.String("path", rec.Path), zap.Error(err))
		return
	}
	rec.Hash = models.HashResult{Status: models.HashPresent, Value: sum}
}
