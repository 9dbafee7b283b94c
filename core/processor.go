package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nguyennamkkb/Simpleverse-home/config"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// Processor is the step runner shared by every tool session.  It is safe for
// concurrent use.
type Processor struct {
	cfg      config.Config
	registry Registry

	mu      sync.RWMutex
	hooks   []Hook
	logger  Logger
	metrics MetricsCollector

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config and codec registry.
func New(cfg config.Config, reg Registry) *Processor {
	return &Processor{
		cfg:      cfg,
		registry: reg,
		logger:   NopLogger{},
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	p.mu.Lock()
	p.logger = l
	p.mu.Unlock()
}

// Logger returns the attached logger (never nil).
func (p *Processor) Logger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

// AddHook registers a pipeline hook.
func (p *Processor) AddHook(h Hook) {
	p.mu.Lock()
	p.hooks = append(p.hooks, h)
	p.mu.Unlock()
}

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Config returns the configuration the processor was built with.
func (p *Processor) Config() config.Config { return p.cfg }

// Read drains src into memory, honouring MaxImageBytes.
func (p *Processor) Read(ctx context.Context, src Source) ([]byte, error) {
	if src.Reader == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "read", apperrors.ErrEmptyInput)
	}
	r := src.Reader
	if p.cfg.MaxImageBytes > 0 {
		r = &utils.LimitedReader{R: src.Reader, Max: p.cfg.MaxImageBytes}
	}

	buf, err := utils.DrainReader(ctx, r, p.cfg.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "read.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	p.mu.RLock()
	m := p.metrics
	p.mu.RUnlock()
	if m != nil {
		m.RecordThroughput(int64(len(raw)))
	}
	return raw, nil
}

// Process reads from src, runs steps, and returns a ProcessingResult.
func (p *Processor) Process(ctx context.Context, src Source, steps ...Step) (*ProcessingResult, error) {
	raw, err := p.Read(ctx, src)
	if err != nil {
		return nil, err
	}

	format := Format(utils.DetectFormat(raw))
	if hinted := FormatFromContentType(src.ContentType); hinted != FormatUnknown {
		format = hinted
	}

	return p.Run(ctx, &ImageData{
		Data:         raw,
		Format:       format,
		OriginalSize: int64(len(raw)),
	}, steps...)
}

// Run executes steps against an ImageData the caller already holds.  The
// input value is never mutated; steps return copies.
func (p *Processor) Run(ctx context.Context, img *ImageData, steps ...Step) (*ProcessingResult, error) {
	if len(steps) == 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, "run", apperrors.ErrEmptyInput)
	}

	p.mu.RLock()
	hooks := append([]Hook(nil), p.hooks...)
	p.mu.RUnlock()

	start := time.Now()
	timings := make(map[string]time.Duration, len(steps))
	current := img
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)
		}
		for _, h := range hooks {
			h.BeforeStep(ctx, step.Name(), current)
		}
		t := time.Now()
		next, stepErr := step.Execute(ctx, current)
		elapsed := time.Since(t)
		timings[step.Name()] += elapsed
		for _, h := range hooks {
			h.AfterStep(ctx, step.Name(), next, elapsed, stepErr)
		}
		if stepErr != nil {
			atomic.AddInt64(&p.errorCount, 1)
			return nil, stepErr
		}
		current = next
	}

	atomic.AddInt64(&p.processedCount, 1)

	return &ProcessingResult{
		Primary:        current,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}, nil
}

// ProcessedCount returns the total number of successful runs.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of failed runs.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
