// Package worker provides an asynchronous worker pool for categorizing
// stored records using the provided extract.Extractor and storage.Driver.
//
// The pool decouples pattern extraction from the capture hot path so that
// inserting a record never waits on rule matching or a category write-back.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	RecordID string
	Input    extract.Input
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend the extracted category is written to.
	Driver storage.Driver

	// Extractor classifies record content.
	Extractor *extract.Extractor

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes extraction jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("extraction job queued",
			zap.String("record_id", job.RecordID),
		)
		return true
	default:
		p.logger.Error("extraction job not queued, queue full, job dropped",
			zap.String("record_id", job.RecordID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("extraction worker stopped", zap.Uint("worker_id", id))
}

// processJob extracts categories for the record and writes the primary
// category back. Extraction never fails outright; a fallback result still
// carries a usable category.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	result := p.config.Extractor.Extract(job.Input)
	if result.PrimaryCategory == "" {
		p.logger.Debug("no category extracted",
			zap.String("record_id", job.RecordID),
		)
		return
	}

	patch := record.Patch{
		Category: &result.PrimaryCategory,
		Metadata: map[string]any{
			"category_confidence": result.Confidence,
		},
	}
	for _, cat := range result.Categories {
		if cat.Name != result.PrimaryCategory {
			continue
		}
		patch.Metadata["category_source"] = string(cat.Source)
		if cat.HierarchyPath != "" {
			patch.Metadata["category_path"] = cat.HierarchyPath
		}
		break
	}

	if err := p.config.Driver.Update(ctx, job.RecordID, patch); err != nil {
		p.logger.Error("async category write-back failed",
			zap.String("record_id", job.RecordID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("record categorized",
		zap.String("record_id", job.RecordID),
		zap.String("category", result.PrimaryCategory),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("fallback", result.Fallback),
	)
}
