package atlas

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/layout"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/source"
)

var (
	red         = color.NRGBA{R: 255, A: 255}
	green       = color.NRGBA{G: 255, A: 255}
	transparent = color.NRGBA{}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// fakeLoader serves images by id. Ids listed in broken fail to decode and
// everything else is not found.
type fakeLoader struct {
	images map[string]image.Image
	broken map[string]bool

	mu    sync.Mutex
	calls map[string]int
}

type badBounds struct{ panicImage }

func (badBounds) Bounds() image.Rectangle { panic("no bounds") }

func (l *fakeLoader) Fetch(_ context.Context, id string) (image.Image, error) {
	l.mu.Lock()
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[id]++
	l.mu.Unlock()

	if l.broken[id] {
		return nil, &source.DecodeError{Source: id, Err: stderrors.New("png: invalid format")}
	}
	if img, ok := l.images[id]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("%s: %w", id, source.ErrNotFound)
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("tile_%02d.png", i)
	}
	return out
}

func mustGrid(t *testing.T, w, h, tile int) *layout.Grid {
	t.Helper()
	g, err := layout.New(w, h, tile)
	if err != nil {
		t.Fatalf("layout.New() error = %v", err)
	}
	return g
}

type slotKind struct {
	Slot int
	Kind Kind
}

func kinds(diags []Diagnostic) []slotKind {
	out := make([]slotKind, len(diags))
	for i, d := range diags {
		out[i] = slotKind{d.Slot, d.Kind}
	}
	return out
}

func TestBuildRedGreen(t *testing.T) {
	grid := mustGrid(t, 4, 4, 2)
	names := ids(16)
	loader := &fakeLoader{images: map[string]image.Image{
		names[0]: solid(2, 2, red),
		names[5]: solid(2, 2, green),
	}}

	res, err := Build(context.Background(), grid, names, loader)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := res.Image.Rect; got != image.Rect(0, 0, 8, 8) {
		t.Fatalf("Image.Rect = %v, want (0,0)-(8,8)", got)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := transparent
			switch {
			case x < 2 && y < 2:
				want = red
			case x >= 2 && x < 4 && y >= 2 && y < 4:
				want = green
			}
			if got := res.Image.NRGBAAt(x, y); got != want {
				t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}

	var want []slotKind
	for i := 0; i < 16; i++ {
		if i != 0 && i != 5 {
			want = append(want, slotKind{i, MissingSource})
		}
	}
	if diff := cmp.Diff(want, kinds(res.Diagnostics)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if res.Composited != 2 {
		t.Errorf("Composited = %d, want 2", res.Composited)
	}
	if res.OK() {
		t.Error("OK() = true, want false")
	}
}

func TestBuildAllValid(t *testing.T) {
	grid := mustGrid(t, 3, 2, 4)
	names := ids(6)
	loader := &fakeLoader{images: map[string]image.Image{}}
	for i, n := range names {
		loader.images[n] = solid(4, 4, color.NRGBA{R: uint8(i * 40), G: 7, B: 9, A: 255})
	}

	res, err := Build(context.Background(), grid, names, loader)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !res.OK() || len(res.Diagnostics) != 0 {
		t.Fatalf("Diagnostics = %v, want none", res.Diagnostics)
	}
	for i := range names {
		o := grid.SlotOrigin(i)
		want := color.NRGBA{R: uint8(i * 40), G: 7, B: 9, A: 255}
		for _, p := range []image.Point{o, o.Add(image.Pt(3, 3))} {
			if got := res.Image.NRGBAAt(p.X, p.Y); got != want {
				t.Errorf("slot %d pixel %v = %v, want %v", i, p, got, want)
			}
		}
	}
	for n, c := range loader.calls {
		if c != 1 {
			t.Errorf("loader called %d times for %s, want 1", c, n)
		}
	}
}

func TestBuildAllMissing(t *testing.T) {
	grid := mustGrid(t, 2, 2, 2)
	res, err := Build(context.Background(), grid, ids(4), &fakeLoader{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(res.Diagnostics) != 4 {
		t.Errorf("len(Diagnostics) = %d, want 4", len(res.Diagnostics))
	}
	if !bytes.Equal(res.Image.Pix, make([]byte, len(res.Image.Pix))) {
		t.Error("composite is not fully transparent")
	}
}

func TestBuildSingleFailure(t *testing.T) {
	grid := mustGrid(t, 2, 2, 2)
	names := ids(4)

	tests := []struct {
		name string
		set  func(l *fakeLoader, id string)
		kind Kind
		code errors.Code
	}{
		{"missing", func(l *fakeLoader, id string) { delete(l.images, id) }, MissingSource, errors.ErrCodeSourceNotFound},
		{"corrupt", func(l *fakeLoader, id string) { l.broken = map[string]bool{id: true} }, SourceDecodeError, errors.ErrCodeSourceDecode},
		{"no colours", func(l *fakeLoader, id string) {
			l.images[id] = image.NewPaletted(image.Rect(0, 0, 2, 2), nil)
		}, NormalizeFailure, errors.ErrCodeNormalizeFailed},
		{"nil image", func(l *fakeLoader, id string) { l.images[id] = nil }, SourceDecodeError, errors.ErrCodeSourceDecode},
		{"typed nil image", func(l *fakeLoader, id string) {
			var p *image.NRGBA
			l.images[id] = p
		}, SourceDecodeError, errors.ErrCodeSourceDecode},
		{"palette index out of range", func(l *fakeLoader, id string) { l.images[id] = outOfRangePaletted() },
			NormalizeFailure, errors.ErrCodeNormalizeFailed},
		{"panicking pixel reads", func(l *fakeLoader, id string) { l.images[id] = panicImage{image.Rect(0, 0, 2, 2)} },
			NormalizeFailure, errors.ErrCodeNormalizeFailed},
		{"panicking bounds", func(l *fakeLoader, id string) { l.images[id] = badBounds{} },
			SourceDecodeError, errors.ErrCodeSourceDecode},
	}

	for _, tt := range tests {
		for k := range names {
			t.Run(fmt.Sprintf("%s/slot%d", tt.name, k), func(t *testing.T) {
				loader := &fakeLoader{images: map[string]image.Image{}}
				for _, n := range names {
					loader.images[n] = solid(2, 2, red)
				}
				tt.set(loader, names[k])

				res, err := Build(context.Background(), grid, names, loader)
				if err != nil {
					t.Fatalf("Build() error = %v", err)
				}
				if diff := cmp.Diff([]slotKind{{k, tt.kind}}, kinds(res.Diagnostics)); diff != "" {
					t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
				}
				if code := errors.GetCode(res.Diagnostics[0].Err); code != tt.code {
					t.Errorf("error code = %s, want %s", code, tt.code)
				}
				if res.Diagnostics[0].Source != names[k] {
					t.Errorf("Source = %q, want %q", res.Diagnostics[0].Source, names[k])
				}
				o := grid.SlotOrigin(k)
				if got := res.Image.NRGBAAt(o.X+1, o.Y+1); got != transparent {
					t.Errorf("failed slot pixel = %v, want transparent", got)
				}
				for i := range names {
					if i == k {
						continue
					}
					o := grid.SlotOrigin(i)
					if got := res.Image.NRGBAAt(o.X, o.Y); got != red {
						t.Errorf("slot %d pixel = %v, want red", i, got)
					}
				}
			})
		}
	}
}

func TestBuildSourceSizes(t *testing.T) {
	grid := mustGrid(t, 2, 1, 4)
	names := ids(2)

	big := solid(6, 6, green)
	big.SetNRGBA(4, 0, red) // outside the tile, must be clipped away
	loader := &fakeLoader{images: map[string]image.Image{
		names[0]: solid(2, 3, red),
		names[1]: big,
	}}

	res, err := Build(context.Background(), grid, names, loader)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Smaller source covers its own region only.
	if got := res.Image.NRGBAAt(1, 2); got != red {
		t.Errorf("covered pixel = %v, want red", got)
	}
	for _, p := range []image.Point{{2, 0}, {3, 3}, {0, 3}} {
		if got := res.Image.NRGBAAt(p.X, p.Y); got != transparent {
			t.Errorf("uncovered pixel %v = %v, want transparent", p, got)
		}
	}

	// Larger source is clipped to the tile, not scaled.
	for y := 0; y < 4; y++ {
		for x := 4; x < 8; x++ {
			if got := res.Image.NRGBAAt(x, y); got != green {
				t.Errorf("clipped slot pixel (%d,%d) = %v, want green", x, y, got)
			}
		}
	}
	if res.Slots[0].Clipped || !res.Slots[1].Clipped {
		t.Errorf("Clipped = %v/%v, want false/true", res.Slots[0].Clipped, res.Slots[1].Clipped)
	}
	if res.Slots[1].SourceSize != image.Pt(6, 6) {
		t.Errorf("SourceSize = %v, want (6,6)", res.Slots[1].SourceSize)
	}
}

func TestBuildNormalizesGray(t *testing.T) {
	grid := mustGrid(t, 1, 1, 2)
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	g.SetGray(0, 0, color.Gray{Y: 77})

	res, err := Build(context.Background(), grid, []string{"g"},
		&fakeLoader{images: map[string]image.Image{"g": g}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got, want := res.Image.NRGBAAt(0, 0), (color.NRGBA{77, 77, 77, 255}); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestBuildDeterministic(t *testing.T) {
	grid := mustGrid(t, 4, 4, 3)
	names := ids(16)
	loader := &fakeLoader{images: map[string]image.Image{}, broken: map[string]bool{names[9]: true}}
	for i, n := range names {
		if i%3 == 0 {
			continue
		}
		loader.images[n] = solid(1+i%4, 3, color.NRGBA{R: uint8(i), G: uint8(255 - i), B: 128, A: uint8(i * 15)})
	}

	seq, err := Build(context.Background(), grid, names, loader)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for run := 0; run < 3; run++ {
		for _, workers := range []int{1, 4, 16} {
			got, err := Build(context.Background(), grid, names, loader, WithWorkers(workers))
			if err != nil {
				t.Fatalf("Build(workers=%d) error = %v", workers, err)
			}
			if !bytes.Equal(seq.Image.Pix, got.Image.Pix) {
				t.Errorf("workers=%d: composite differs from sequential run", workers)
			}
			if diff := cmp.Diff(kinds(seq.Diagnostics), kinds(got.Diagnostics)); diff != "" {
				t.Errorf("workers=%d: diagnostics mismatch (-seq +got):\n%s", workers, diff)
			}
		}
	}
}

func TestBuildInvalidConfig(t *testing.T) {
	grid := mustGrid(t, 2, 2, 2)
	ctx := context.Background()

	tests := []struct {
		name   string
		grid   *layout.Grid
		ids    []string
		loader source.Loader
	}{
		{"too few ids", grid, ids(3), &fakeLoader{}},
		{"too many ids", grid, ids(5), &fakeLoader{}},
		{"nil grid", nil, ids(4), &fakeLoader{}},
		{"nil loader", grid, ids(4), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Build(ctx, tt.grid, tt.ids, tt.loader)
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Build() error = %v, want INVALID_CONFIG", err)
			}
			if res != nil {
				t.Error("Build() returned a result for invalid input")
			}
		})
	}
}

func TestBuildLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	grid := mustGrid(t, 2, 1, 2)
	names := ids(2)
	loader := &fakeLoader{images: map[string]image.Image{names[0]: solid(2, 2, red)}}

	if _, err := Build(context.Background(), grid, names, loader, WithLogger(logger)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"slot failed", names[1], "slot composited", "atlas built"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

type recordingHooks struct {
	observability.NoopAtlasHooks
	mu       sync.Mutex
	started  int
	slots    []int
	complete [2]int
}

func (h *recordingHooks) OnBuildStart(_ context.Context, slots int) { h.started = slots }

func (h *recordingHooks) OnSlotComplete(_ context.Context, slot int, _ string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots = append(h.slots, slot)
}

func (h *recordingHooks) OnBuildComplete(_ context.Context, composited, failed int, _ time.Duration) {
	h.complete = [2]int{composited, failed}
}

func TestBuildHooks(t *testing.T) {
	h := &recordingHooks{}
	observability.SetAtlasHooks(h)
	defer observability.Reset()

	grid := mustGrid(t, 2, 2, 2)
	names := ids(4)
	loader := &fakeLoader{images: map[string]image.Image{names[2]: solid(2, 2, green)}}

	if _, err := Build(context.Background(), grid, names, loader, WithWorkers(2)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if h.started != 4 {
		t.Errorf("OnBuildStart slots = %d, want 4", h.started)
	}
	if len(h.slots) != 4 {
		t.Errorf("OnSlotComplete called %d times, want 4", len(h.slots))
	}
	if h.complete != [2]int{1, 3} {
		t.Errorf("OnBuildComplete = %v, want [1 3]", h.complete)
	}
}
