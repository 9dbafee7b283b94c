// Package simpleverse wires codecs, the step processor, observability and
// one batch session per image tool into a single Workbench.
package simpleverse

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/archive"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/decoder"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/encoder"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/metadata"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/storage"
	"github.com/nguyennamkkb/Simpleverse-home/batch"
	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	"github.com/nguyennamkkb/Simpleverse-home/hooks"
	"github.com/nguyennamkkb/Simpleverse-home/pipeline"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// ── Tools ─────────────────────────────────────────────────────────────────────

// Tool names one image tool.  Each tool owns an independent session.
type Tool string

const (
	ToolConvert    Tool = "convert"
	ToolCompress   Tool = "compress"
	ToolResize     Tool = "resize"
	ToolCrop       Tool = "crop"
	ToolResizeCrop Tool = "resize-crop"
)

// Tools lists every tool in display order.
func Tools() []Tool {
	return []Tool{ToolConvert, ToolCompress, ToolResize, ToolCrop, ToolResizeCrop}
}

// ParseTool maps a name to a Tool.
func ParseTool(s string) (Tool, bool) {
	for _, t := range Tools() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Kind is the transform a tool's items start with.  The merged resize/crop
// tool starts as resize; items switch kind through a settings patch.
func (t Tool) Kind() settings.Kind {
	switch t {
	case ToolConvert:
		return settings.KindConvert
	case ToolCompress:
		return settings.KindCompress
	case ToolCrop:
		return settings.KindCrop
	}
	return settings.KindResize
}

// ── Workbench ─────────────────────────────────────────────────────────────────

// Workbench is the primary entry point.
type Workbench struct {
	cfg      config.Config
	reg      *core.DefaultRegistry
	proc     *core.Processor
	tr       *pipeline.Transformer
	metrics  *hooks.InMemoryMetrics
	previews *batch.Previews
	delivery core.Delivery
	logger   core.Logger
	shutdown []func()

	mu       sync.Mutex
	sessions map[Tool]*batch.Coordinator
}

// Option customises a Workbench.
type Option func(*Workbench)

// WithLogger attaches a structured logger and logs every pipeline step.
func WithLogger(l core.Logger) Option {
	return func(w *Workbench) { w.logger = l }
}

// WithDelivery overrides where downloads are saved.  Without it, downloads
// go to cfg.OutputDir when set.
func WithDelivery(d core.Delivery) Option {
	return func(w *Workbench) { w.delivery = d }
}

// WithCodecs lets an alternative backend replace codecs in the registry
// after the std codecs are in place.  shutdown, if non-nil, runs on Close.
func WithCodecs(register func(core.Registry), shutdown func()) Option {
	return func(w *Workbench) {
		register(w.reg)
		if shutdown != nil {
			w.shutdown = append(w.shutdown, shutdown)
		}
	}
}

// New creates a fully wired Workbench with std codecs for every supported
// format.
func New(cfg config.Config, opts ...Option) (*Workbench, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := core.NewRegistry()
	// Built-in codecs.  WebP has no pure-Go encoder; a vips backend adds one.
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.Quality.Convert))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatBMP, encoder.NewBMP())
	reg.RegisterEncoder(core.FormatGIF, encoder.NewGIF())
	reg.RegisterEncoder(core.FormatTinyPNG, encoder.NewTinyPNG(core.TinyPNGMaxBytes))
	reg.RegisterEncoder(core.FormatICO, encoder.NewICO())

	w := &Workbench{
		cfg:      cfg,
		reg:      reg,
		metrics:  hooks.NewInMemoryMetrics(),
		previews: batch.NewPreviews(),
		logger:   core.NopLogger{},
		sessions: make(map[Tool]*batch.Coordinator),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.delivery == nil && cfg.OutputDir != "" {
		local, err := storage.NewLocal(cfg.OutputDir, 0)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.delivery = local
	}

	w.proc = core.New(cfg, reg)
	w.proc.SetLogger(w.logger)
	w.proc.SetMetrics(w.metrics)
	w.proc.AddHook(hooks.NewLoggingHook(w.logger))
	w.proc.AddHook(hooks.NewMetricsHook(w.metrics))
	w.tr = pipeline.NewTransformer(w.proc, metadata.NewStripper())
	return w, nil
}

// Session returns the tool's batch session, creating it on first use.
func (w *Workbench) Session(t Tool) *batch.Coordinator {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.sessions[t]; ok {
		return c
	}
	opts := batch.Options{
		Kind:        t.Kind(),
		Concurrency: w.cfg.Concurrency,
		Delivery:    w.delivery,
		NewArchive:  func() core.ArchiveWriter { return archive.NewZip(nowFunc()) },
		Previews:    w.previews,
	}
	if t == ToolResizeCrop {
		opts.ArchiveName = batch.MixedArchiveName
	}
	c := batch.New(w.proc, w.tr, opts)
	w.sessions[t] = c
	w.logger.Debug("workbench.session.created", "tool", t, "kind", t.Kind())
	return c
}

// Previews returns the preview store shared by all sessions.
func (w *Workbench) Previews() *batch.Previews { return w.previews }

// Metrics returns a snapshot of step timings, errors and throughput.
func (w *Workbench) Metrics() hooks.MetricsSnapshot { return w.metrics.Snapshot() }

// Stats returns lightweight processing statistics.
func (w *Workbench) Stats() (processed, errors int64) {
	return w.proc.ProcessedCount(), w.proc.ErrorCount()
}

// Formats lists the formats the registry can encode to.
func (w *Workbench) Formats() []core.Format { return w.reg.EncodableFormats() }

// Config returns the configuration the workbench was built with.
func (w *Workbench) Config() config.Config { return w.cfg }

// Processor exposes the underlying core.Processor for advanced use.
func (w *Workbench) Processor() *core.Processor { return w.proc }

// Close ends every session, releasing previews, then shuts codec backends
// down.
func (w *Workbench) Close() error {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[Tool]*batch.Coordinator)
	w.mu.Unlock()

	var firstErr error
	for t, c := range sessions {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s session: %w", t, err)
		}
	}
	for i := len(w.shutdown) - 1; i >= 0; i-- {
		w.shutdown[i]()
	}
	w.shutdown = nil
	return firstErr
}

// ── Source constructors ───────────────────────────────────────────────────────

// FromReader creates a Source from an io.Reader.
func FromReader(r io.Reader) core.Source { return core.Source{Reader: r, Size: -1} }

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}

// FromBytes creates a named Source over an in-memory file.
func FromBytes(name, contentType string, data []byte) core.Source {
	return FromReaderWithMeta(bytes.NewReader(data), int64(len(data)), contentType, name)
}
