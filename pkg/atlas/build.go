package atlas

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/layout"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/source"
)

// Option configures a Build call.
type Option func(*config)

type config struct {
	workers int
	logger  *log.Logger
}

// WithWorkers processes up to n slots concurrently. Values below 2 keep the
// build sequential.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLogger sets the logger used for per-slot progress and failures.
// A nil logger is ignored.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Result is the output of a Build.
type Result struct {
	// Image is the composite, GridWidth*TileSize by GridHeight*TileSize.
	Image *image.NRGBA
	// Diagnostics lists every failed slot in ascending slot order.
	Diagnostics []Diagnostic
	// Slots has one report per slot, indexed by slot.
	Slots []SlotReport
	// Composited counts the slots whose source was placed.
	Composited int
	Duration   time.Duration
}

// OK reports whether every slot was composited.
func (r *Result) OK() bool { return len(r.Diagnostics) == 0 }

// Build composites one source per slot of grid into a new atlas.
//
// sourceIDs[i] is the identifier fetched for slot i, so its length must equal
// grid.SlotCount(). A mismatch, a nil grid or a nil loader fails with
// INVALID_CONFIG and no composite. Per-slot failures never fail the call:
// they leave the slot transparent and add a Diagnostic.
//
// ctx is passed to the loader unchanged.
func Build(ctx context.Context, grid *layout.Grid, sourceIDs []string, loader source.Loader, opts ...Option) (*Result, error) {
	if grid == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no grid")
	}
	if loader == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no source loader")
	}
	if n := grid.SlotCount(); len(sourceIDs) != n {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"%d source identifiers for %d slots", len(sourceIDs), n)
	}

	cfg := config{logger: log.NewWithOptions(io.Discard, log.Options{})}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	hooks := observability.Atlas()
	hooks.OnBuildStart(ctx, grid.SlotCount())

	b := &builder{
		grid:    grid,
		ids:     sourceIDs,
		loader:  loader,
		logger:  cfg.logger,
		hooks:   hooks,
		img:     image.NewNRGBA(grid.Bounds()),
		reports: make([]SlotReport, grid.SlotCount()),
	}
	cfg.logger.Debug("building atlas",
		"cols", grid.GridWidth(), "rows", grid.GridHeight(), "tile", grid.TileSize(), "workers", cfg.workers)

	if cfg.workers > 1 {
		var g errgroup.Group
		g.SetLimit(cfg.workers)
		for i := range b.reports {
			g.Go(func() error {
				b.slot(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range b.reports {
			b.slot(ctx, i)
		}
	}

	res := &Result{
		Image:       b.img,
		Diagnostics: make([]Diagnostic, 0),
		Slots:       b.reports,
	}
	for _, r := range b.reports {
		if r.Kind.Failed() {
			res.Diagnostics = append(res.Diagnostics, r.diagnostic())
		} else {
			res.Composited++
		}
	}
	res.Duration = time.Since(start)

	hooks.OnBuildComplete(ctx, res.Composited, len(res.Diagnostics), res.Duration)
	cfg.logger.Info("atlas built",
		"composited", res.Composited, "failed", len(res.Diagnostics), "duration", res.Duration)
	return res, nil
}

type builder struct {
	grid    *layout.Grid
	ids     []string
	loader  source.Loader
	logger  *log.Logger
	hooks   observability.AtlasHooks
	img     *image.NRGBA
	reports []SlotReport
}

// slot processes slot i. It only writes reports[i] and the pixels inside
// slot i, so concurrent calls for distinct slots do not race.
func (b *builder) slot(ctx context.Context, i int) {
	start := time.Now()
	id := b.ids[i]
	r := &b.reports[i]
	*r = SlotReport{Index: i, Source: id, Origin: b.grid.SlotOrigin(i)}

	img, err := b.loader.Fetch(ctx, id)
	if err == nil && isNilImage(img) {
		err = &source.DecodeError{Source: id, Err: stderrors.New("loader returned no image")}
	}
	if err == nil {
		r.SourceSize, err = sourceSize(id, img)
	}

	switch source.Classify(err) {
	case source.NotFound:
		r.Kind = MissingSource
		r.Err = errors.Wrap(errors.ErrCodeSourceNotFound, err, "source %q", id)
	case source.Undecodable:
		r.Kind = SourceDecodeError
		r.Err = errors.Wrap(errors.ErrCodeSourceDecode, err, "source %q", id)
	default:
		rgba, nerr := Normalize(img)
		if nerr != nil {
			r.Kind = NormalizeFailure
			r.Err = nerr
			break
		}
		r.Clipped = composite(b.img, rgba, r.Origin, b.grid.TileSize())
	}

	if r.Kind.Failed() {
		b.logger.Warn("slot failed", "slot", i, "source", id, "kind", r.Kind, "err", errors.UserMessage(r.Err))
	} else {
		b.logger.Debug("slot composited", "slot", i, "source", id, "size", r.SourceSize, "clipped", r.Clipped)
	}
	b.hooks.OnSlotComplete(ctx, i, r.Kind.String(), time.Since(start))
}

// sourceSize reads the bounds of a loaded image. A panicking Bounds is
// reported as a decode failure of that source.
func sourceSize(id string, img image.Image) (size image.Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &source.DecodeError{Source: id, Err: fmt.Errorf("unreadable bounds: %v", r)}
		}
	}()
	return img.Bounds().Size(), nil
}

// composite copies the top-left tile x tile region of src into dst at
// origin. It reports whether src had to be clipped.
func composite(dst, src *image.NRGBA, origin image.Point, tile int) bool {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	clipped := w > tile || h > tile
	w, h = min(w, tile), min(h, tile)
	for y := 0; y < h; y++ {
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		do := dst.PixOffset(origin.X, origin.Y+y)
		copy(dst.Pix[do:do+4*w], src.Pix[so:so+4*w])
	}
	return clipped
}
