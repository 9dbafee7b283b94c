package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/decoder"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/pipeline"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// Transformer produces one item's artifact.
type Transformer interface {
	Transform(ctx context.Context, in pipeline.Input) (*pipeline.Output, error)
}

// Options configures a Coordinator.  Zero values fall back to the
// processor's configuration.
type Options struct {
	// Kind is the tool this session serves.
	Kind settings.Kind
	// Defaults are the initial global settings; zero means
	// settings.Defaults(Kind, cfg.Quality).
	Defaults *settings.Settings
	// Concurrency bounds ProcessAll; 1 is strictly sequential.
	Concurrency int

	Delivery   core.Delivery
	NewArchive func() core.ArchiveWriter
	Previews   *Previews
	// ArchiveName names packaged batches; nil means ArchiveName(Kind, t).
	ArchiveName func(at time.Time) string

	Clock func() time.Time
	NewID func() string
}

// Coordinator is the single owner of a session's items.  All reads and
// writes go through its methods; transforms run outside the lock.
type Coordinator struct {
	proc *core.Processor
	tr   Transformer
	log  core.Logger
	opts Options

	mu       sync.Mutex
	items    []*record
	index    map[string]*record
	defaults settings.Settings
}

// New creates a Coordinator.
func New(proc *core.Processor, tr Transformer, opts Options) *Coordinator {
	cfg := proc.Config()
	if !opts.Kind.Valid() {
		opts.Kind = settings.KindResize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(cfg.Concurrency, 1)
	}
	if opts.Previews == nil {
		opts.Previews = NewPreviews()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ArchiveName == nil {
		kind := opts.Kind
		opts.ArchiveName = func(at time.Time) string { return ArchiveName(kind, at) }
	}

	defaults := settings.Defaults(opts.Kind, cfg.Quality)
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}

	return &Coordinator{
		proc:     proc,
		tr:       tr,
		log:      proc.Logger(),
		opts:     opts,
		index:    make(map[string]*record),
		defaults: defaults,
	}
}

// Kind returns the tool this session serves.
func (c *Coordinator) Kind() settings.Kind { return c.opts.Kind }

// Previews returns the preview handle store.
func (c *Coordinator) Previews() *Previews { return c.opts.Previews }

// Defaults returns the settings new items start with.
func (c *Coordinator) Defaults() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}

// ── Collection ────────────────────────────────────────────────────────────────

// Add reads every source and appends one pending item per source, in order.
// Either all sources are added or, when a read fails, none are.
func (c *Coordinator) Add(ctx context.Context, sources ...core.Source) ([]string, error) {
	type loaded struct {
		src  core.Source
		data []byte
		meta core.Metadata
	}
	batch := make([]loaded, 0, len(sources))
	for _, src := range sources {
		data, err := c.proc.Read(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("add %q: %w", src.Name, err)
		}
		// Dimensions are informational; undecodable bytes surface as an
		// item error at transform time.
		meta, _ := decoder.Probe(data)
		batch = append(batch, loaded{src: src, data: data, meta: meta})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(batch))
	for _, l := range batch {
		format := core.FormatFromContentType(l.src.ContentType)
		if format == core.FormatUnknown {
			format = core.Format(utils.DetectFormat(l.data))
		}
		contentType := l.src.ContentType
		if contentType == "" {
			contentType = format.MediaType()
		}

		s := c.defaults
		s.Crop.Rect = settings.InitialRect(l.meta.Width, l.meta.Height, s.Crop.AspectRatio)

		id := c.opts.NewID()
		rec := &record{item: Item{
			ID:          id,
			Name:        utils.SanitizeFilename(l.src.Name),
			Size:        int64(len(l.data)),
			ContentType: contentType,
			Format:      format,
			Width:       l.meta.Width,
			Height:      l.meta.Height,
			Settings:    s,
			Status:      StatusPending,
			source:      l.data,
		}}
		rec.item.Preview = c.opts.Previews.Create(id, l.data, format)

		c.items = append(c.items, rec)
		c.index[id] = rec
		ids = append(ids, id)
		c.log.Debug("batch.item.added", "tool", c.opts.Kind, "id", id, "name", rec.item.Name,
			"size", rec.item.Size, "width", rec.item.Width, "height", rec.item.Height)
	}
	return ids, nil
}

// Remove deletes an item and releases its previews.  Unknown ids are a
// no-op.
func (c *Coordinator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.index[id]
	if !ok {
		return
	}
	delete(c.index, id)
	for i, r := range c.items {
		if r == rec {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	rec.revision++
	c.opts.Previews.RevokeOwner(id)
	c.log.Debug("batch.item.removed", "tool", c.opts.Kind, "id", id)
}

// Clear removes every item and releases every preview.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.items {
		rec.revision++
		c.opts.Previews.RevokeOwner(rec.item.ID)
	}
	n := len(c.items)
	c.items = nil
	c.index = make(map[string]*record)
	c.log.Debug("batch.cleared", "tool", c.opts.Kind, "items", n)
}

// Close ends the session: all items are dropped and previews released.
func (c *Coordinator) Close() error {
	c.Clear()
	return nil
}

// Items returns snapshots of all items in collection order.
func (c *Coordinator) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	for i, rec := range c.items {
		out[i] = rec.snapshot()
	}
	return out
}

// Item returns a snapshot of one item.
func (c *Coordinator) Item(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return rec.snapshot(), true
}

// Len returns the number of items.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ── Settings ──────────────────────────────────────────────────────────────────

// Update merges patch into one item's settings.  A completed item goes back
// to pending and loses its output.
func (c *Coordinator) Update(id string, patch settings.Patch) error {
	if err := patch.Validate(); err != nil {
		return apperrors.Wrap(apperrors.CategoryInput, "batch.update", err)
	}
	return c.mutate(id, func(it *Item) {
		it.Settings = settings.Apply(it.Settings, patch, it.Width, it.Height)
	})
}

// ApplyToAll merges patch into every item and into the defaults used by
// later Add calls.
func (c *Coordinator) ApplyToAll(patch settings.Patch) error {
	if err := patch.Validate(); err != nil {
		return apperrors.Wrap(apperrors.CategoryInput, "batch.apply_all", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.items {
		rec.item.Settings = settings.Apply(rec.item.Settings, patch, rec.item.Width, rec.item.Height)
		c.invalidate(rec)
	}
	c.defaults = settings.Apply(c.defaults, patch, 0, 0)
	c.log.Debug("batch.settings.applied", "tool", c.opts.Kind, "items", len(c.items))
	return nil
}

// MoveCrop drags an item's whole crop rectangle by (dx, dy) percent.
func (c *Coordinator) MoveCrop(id string, dx, dy float64) error {
	return c.mutate(id, func(it *Item) {
		it.Settings.Crop.Rect = settings.MoveRect(it.Settings.Crop.Rect, dx, dy)
	})
}

// DragCrop drags one resize handle of an item's crop rectangle.
func (c *Coordinator) DragCrop(id string, handle settings.Handle, dx, dy float64) error {
	if !handle.Valid() {
		return apperrors.New(apperrors.CategoryInput, "batch.drag_crop",
			fmt.Errorf("unknown handle %q", handle))
	}
	return c.mutate(id, func(it *Item) {
		it.Settings.Crop.Rect = settings.DragHandle(it.Settings.Crop.Rect, handle, dx, dy,
			it.Settings.Crop.AspectRatio, it.Width, it.Height)
	})
}

func (c *Coordinator) mutate(id string, fn func(*Item)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.index[id]
	if !ok {
		return notFound(id)
	}
	fn(&rec.item)
	c.invalidate(rec)
	return nil
}

// invalidate records a settings change: in-flight results become stale and
// a completed item returns to pending without output.  Caller holds c.mu.
func (c *Coordinator) invalidate(rec *record) {
	rec.revision++
	if rec.item.Status == StatusCompleted {
		c.reset(rec)
	}
}

// reset drops the output and returns the item to pending.  Caller holds c.mu.
func (c *Coordinator) reset(rec *record) {
	if rec.item.Output != nil {
		c.opts.Previews.Revoke(rec.item.Output.Preview)
	}
	rec.item.Output = nil
	rec.item.Status = StatusPending
	rec.item.Error = ""
}

// ── Processing ────────────────────────────────────────────────────────────────

// claim moves a runnable item to processing and returns its transform
// input.  Caller holds c.mu.
func (c *Coordinator) claim(rec *record) (pipeline.Input, uint64, bool) {
	if !rec.item.Status.Runnable() {
		return pipeline.Input{}, 0, false
	}
	rec.item.Status = StatusProcessing
	rec.item.Error = ""
	c.log.Debug("batch.item.processing", "tool", c.opts.Kind, "id", rec.item.ID)
	return pipeline.Input{
		Data:     rec.item.source,
		Format:   rec.item.Format,
		Settings: rec.item.Settings,
	}, rec.revision, true
}

// ProcessOne transforms a single pending or failed item.  Other statuses are
// a no-op.  A transform failure is recorded on the item, not returned; only
// an unknown id or cancellation produce an error.
func (c *Coordinator) ProcessOne(ctx context.Context, id string) error {
	c.mu.Lock()
	rec, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return notFound(id)
	}
	in, rev, ok := c.claim(rec)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.run(ctx, rec, rev, in)
}

// ProcessAll transforms every pending or failed item in collection order.
// At most Concurrency items run at once and they start in collection order;
// with the default of 1 each item finishes before the next starts.  One
// item's failure never stops the batch; cancellation stops dispatching and
// reverts in-flight items to pending.
func (c *Coordinator) ProcessAll(ctx context.Context) error {
	c.mu.Lock()
	queue := make([]*record, 0, len(c.items))
	for _, rec := range c.items {
		if rec.item.Status.Runnable() {
			queue = append(queue, rec)
		}
	}
	c.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}
	c.log.Info("batch.process_all.start", "tool", c.opts.Kind, "items", len(queue),
		"concurrency", c.opts.Concurrency)

	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	var wg sync.WaitGroup
	for _, rec := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		// Items removed or edited since the queue was built are re-checked
		// under the lock before they are claimed.
		var (
			in  pipeline.Input
			rev uint64
			ok  bool
		)
		c.mu.Lock()
		if c.index[rec.item.ID] == rec {
			in, rev, ok = c.claim(rec)
		}
		c.mu.Unlock()
		if !ok {
			sem.Release(1)
			continue
		}

		wg.Add(1)
		go func(rec *record) {
			defer wg.Done()
			defer sem.Release(1)
			_ = c.run(ctx, rec, rev, in)
		}(rec)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "batch.process_all", err)
	}
	c.log.Info("batch.process_all.done", "tool", c.opts.Kind, "items", len(queue))
	return nil
}

// run executes a claimed transform and records its outcome, unless the item
// changed or disappeared meanwhile.
func (c *Coordinator) run(ctx context.Context, rec *record, rev uint64, in pipeline.Input) error {
	out, err := c.tr.Transform(ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()

	id := rec.item.ID
	if c.index[id] != rec {
		return nil // removed while running
	}
	if rec.revision != rev {
		// Settings changed while running; the result no longer matches.
		if rec.item.Status == StatusProcessing {
			rec.item.Status = StatusPending
		}
		c.log.Debug("batch.item.stale", "tool", c.opts.Kind, "id", id)
		return nil
	}

	if err != nil {
		if ctx.Err() != nil {
			rec.item.Status = StatusPending
			c.log.Debug("batch.item.canceled", "tool", c.opts.Kind, "id", id)
			return apperrors.Wrap(apperrors.CategoryPipeline, "batch.process", ctx.Err())
		}
		rec.item.Status = StatusError
		rec.item.Error = FailureMessage
		c.log.Warn("batch.item.failed", "tool", c.opts.Kind, "id", id, "name", rec.item.Name,
			"category", apperrors.CategoryOf(err), "error", err.Error())
		return nil
	}

	rec.item.Status = StatusCompleted
	rec.item.Error = ""
	rec.item.Output = &Output{
		Data:    out.Data,
		Size:    int64(len(out.Data)),
		Width:   out.Width,
		Height:  out.Height,
		Format:  out.Format,
		Preview: c.opts.Previews.Create(id, out.Data, out.Format),
	}
	c.log.Debug("batch.item.completed", "tool", c.opts.Kind, "id", id,
		"width", out.Width, "height", out.Height, "bytes", len(out.Data),
		"elapsed_ms", out.Elapsed.Milliseconds())
	return nil
}

// ── Delivery ──────────────────────────────────────────────────────────────────

// Artifact returns the download of one item.  ok is false when the item has
// no output yet.
func (c *Coordinator) Artifact(id string) (art Artifact, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, found := c.index[id]
	if !found {
		return Artifact{}, false, notFound(id)
	}
	if rec.item.Output == nil {
		return Artifact{}, false, nil
	}
	return artifactFor(rec.snapshot()), true, nil
}

// Download delivers one item's artifact.  Items without output are
// silently skipped.
func (c *Coordinator) Download(ctx context.Context, id string) error {
	art, ok, err := c.Artifact(id)
	if err != nil || !ok {
		return err
	}
	if c.opts.Delivery == nil {
		return apperrors.New(apperrors.CategoryStorage, "batch.download", errNoDelivery)
	}
	if err := c.opts.Delivery.Deliver(ctx, art.Name, art.Data); err != nil {
		return err
	}
	c.log.Info("batch.item.delivered", "tool", c.opts.Kind, "id", id, "name", art.Name)
	return nil
}

// Archive packages every completed artifact into one zip.  Entry names
// drop the brand prefix except for converted items; duplicates get a
// numeric suffix.  With no
// completed items the archive is empty.
func (c *Coordinator) Archive(ctx context.Context) (Artifact, int, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, 0, apperrors.Wrap(apperrors.CategoryPipeline, "batch.archive", err)
	}
	if c.opts.NewArchive == nil {
		return Artifact{}, 0, apperrors.New(apperrors.CategoryStorage, "batch.archive", errNoArchive)
	}

	c.mu.Lock()
	completed := make([]Item, 0, len(c.items))
	for _, rec := range c.items {
		if rec.item.Output != nil {
			completed = append(completed, rec.snapshot())
		}
	}
	c.mu.Unlock()

	w := c.opts.NewArchive()
	seen := uniqueNames{}
	for _, it := range completed {
		if err := w.Put(seen.claim(entryName(it)), it.Output.Data); err != nil {
			return Artifact{}, 0, apperrors.Wrap(apperrors.CategoryStorage, "batch.archive.put", err)
		}
	}
	data, err := w.Build()
	if err != nil {
		return Artifact{}, 0, apperrors.Wrap(apperrors.CategoryStorage, "batch.archive.build", err)
	}
	return Artifact{
		Name:      c.opts.ArchiveName(c.opts.Clock()),
		Data:      data,
		MediaType: zipMediaType,
	}, len(completed), nil
}

// DownloadAll delivers the archive of all completed items.  Nothing is
// delivered when no item has completed.
func (c *Coordinator) DownloadAll(ctx context.Context) error {
	art, n, err := c.Archive(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if c.opts.Delivery == nil {
		return apperrors.New(apperrors.CategoryStorage, "batch.download_all", errNoDelivery)
	}
	if err := c.opts.Delivery.Deliver(ctx, art.Name, art.Data); err != nil {
		return err
	}
	c.log.Info("batch.archive.delivered", "tool", c.opts.Kind, "name", art.Name, "entries", n,
		"bytes", len(art.Data))
	return nil
}

// ── Aggregates ────────────────────────────────────────────────────────────────

// Stats is a point-in-time summary of the session.
type Stats struct {
	Items          int   `json:"items"`
	Pending        int   `json:"pending"`
	Processing     int   `json:"processing"`
	Completed      int   `json:"completed"`
	Failed         int   `json:"failed"`
	OriginalBytes  int64 `json:"original_bytes"`
	OutputBytes    int64 `json:"output_bytes"`
	SavingsPercent int   `json:"savings_percent"`

	OriginalSize string `json:"original_size"`
	OutputSize   string `json:"output_size"`
}

// Stats summarises the collection.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	for _, rec := range c.items {
		s.Items++
		s.OriginalBytes += rec.item.Size
		switch rec.item.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Failed++
		}
		if rec.item.Output != nil {
			s.OutputBytes += rec.item.Output.Size
		}
	}
	s.SavingsPercent = SavingsPercent(s.OriginalBytes, s.OutputBytes)
	s.OriginalSize = utils.FormatSize(s.OriginalBytes)
	s.OutputSize = utils.FormatSize(s.OutputBytes)
	return s
}

// HasCompleted reports whether any item has an output.
func (c *Coordinator) HasCompleted() bool { return c.Stats().Completed > 0 }

// IsProcessing reports whether any item is being transformed.
func (c *Coordinator) IsProcessing() bool { return c.Stats().Processing > 0 }

// TotalOriginalSize sums the source sizes of all items.
func (c *Coordinator) TotalOriginalSize() int64 { return c.Stats().OriginalBytes }

// TotalOutputSize sums the output sizes of completed items.
func (c *Coordinator) TotalOutputSize() int64 { return c.Stats().OutputBytes }

// TotalSavingsPercent is SavingsPercent over the whole collection.
func (c *Coordinator) TotalSavingsPercent() int { return c.Stats().SavingsPercent }

// SavingsPercent returns round((1 - output/original) * 100), or 0 when
// either total is 0.  Halves round up, so -12.5 becomes -12.
func SavingsPercent(original, output int64) int {
	if original == 0 || output == 0 {
		return 0
	}
	return int(math.Floor((1-float64(output)/float64(original))*100 + 0.5))
}

// ── Errors ────────────────────────────────────────────────────────────────────

var (
	errNoDelivery = errors.New("no delivery target configured")
	errNoArchive  = errors.New("no archive writer configured")
)

func notFound(id string) error {
	return apperrors.New(apperrors.CategoryInput, "batch",
		fmt.Errorf("%w: %s", apperrors.ErrItemNotFound, id))
}
