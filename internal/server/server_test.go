package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/atlaspack/pkg/atlas"
	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
	"github.com/matzehuels/atlaspack/pkg/source"
)

func pngFile(t *testing.T, c color.NRGBA) *fstest.MapFile {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &fstest.MapFile{Data: buf.Bytes(), ModTime: time.Unix(1700000000, 0)}
}

func newTestServer(t *testing.T, opts pipeline.Options) *httptest.Server {
	t.Helper()
	fsys := fstest.MapFS{
		"red.png":   pngFile(t, color.NRGBA{R: 255, A: 255}),
		"green.png": pngFile(t, color.NRGBA{G: 255, A: 255}),
	}
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := log.NewWithOptions(io.Discard, log.Options{})
	runner := pipeline.NewRunner(c, nil, logger)
	srv := New(runner, opts, source.NewFSLoader(fsys), logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func testOptions() pipeline.Options {
	return pipeline.Options{
		GridWidth:  2,
		GridHeight: 2,
		TileSize:   4,
		Sources:    []string{"red.png", "green.png", "missing.png", "red.png"},
		Labels:     []string{"Red", "Green", "Gone", "Red again"},
	}
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testOptions())

	resp := get(t, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAtlasPNG(t *testing.T) {
	ts := newTestServer(t, testOptions())

	resp := get(t, ts.URL+"/atlas.png", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := resp.Header.Get("X-Atlas-Cache"); got != "miss" {
		t.Errorf("X-Atlas-Cache = %q, want miss", got)
	}
	if got := resp.Header.Get("X-Atlas-Failed-Slots"); got != "1" {
		t.Errorf("X-Atlas-Failed-Slots = %q, want 1", got)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 8, 8) {
		t.Fatalf("bounds = %v, want 8x8", got)
	}
	want := map[image.Point]color.NRGBA{
		{1, 1}: {R: 255, A: 255},
		{5, 1}: {G: 255, A: 255},
		{1, 5}: {},
		{5, 5}: {R: 255, A: 255},
	}
	for p, c := range want {
		if got := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA); got != c {
			t.Errorf("pixel %v = %v, want %v", p, got, c)
		}
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	second := get(t, ts.URL+"/atlas.png", nil)
	if got := second.Header.Get("X-Atlas-Cache"); got != "hit" {
		t.Errorf("second request X-Atlas-Cache = %q, want hit", got)
	}
	if got := second.Header.Get("ETag"); got != etag {
		t.Errorf("ETag changed from %s to %s", etag, got)
	}

	cond := get(t, ts.URL+"/atlas.png", http.Header{"If-None-Match": {etag}})
	if cond.StatusCode != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", cond.StatusCode)
	}

	refresh := get(t, ts.URL+"/atlas.png?refresh=true", nil)
	if got := refresh.Header.Get("X-Atlas-Cache"); got != "miss" {
		t.Errorf("refresh X-Atlas-Cache = %q, want miss", got)
	}
}

func TestDiagnostics(t *testing.T) {
	ts := newTestServer(t, testOptions())

	resp := get(t, ts.URL+"/diagnostics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body diagnosticsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.RunID == "" {
		t.Error("missing run id")
	}
	if body.Slots != 4 || body.Composited != 3 {
		t.Errorf("slots/composited = %d/%d, want 4/3", body.Slots, body.Composited)
	}

	type diag struct {
		Slot   int
		Source string
		Kind   atlas.Kind
	}
	var got []diag
	for _, d := range body.Diagnostics {
		got = append(got, diag{d.Slot, d.Source, d.Kind})
	}
	want := []diag{{2, "missing.png", atlas.MissingSource}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout(t *testing.T) {
	ts := newTestServer(t, testOptions())

	resp := get(t, ts.URL+"/layout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got []slotResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := []slotResponse{
		{Index: 0, X: 0, Y: 0, Size: 4, UV: [4]float64{0, 0, 0.5, 0.5}, Source: "red.png", Label: "Red"},
		{Index: 1, X: 4, Y: 0, Size: 4, UV: [4]float64{0.5, 0, 1, 0.5}, Source: "green.png", Label: "Green"},
		{Index: 2, X: 0, Y: 4, Size: 4, UV: [4]float64{0, 0.5, 0.5, 1}, Source: "missing.png", Label: "Gone"},
		{Index: 3, X: 4, Y: 4, Size: 4, UV: [4]float64{0.5, 0.5, 1, 1}, Source: "red.png", Label: "Red again"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.Sources = opts.Sources[:3]
	ts := newTestServer(t, opts)

	for _, path := range []string{"/atlas.png", "/diagnostics", "/layout"} {
		t.Run(path, func(t *testing.T) {
			resp := get(t, ts.URL+path, nil)
			if resp.StatusCode != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", resp.StatusCode)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, testOptions())
	resp := get(t, ts.URL+"/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

type recordingHTTPHooks struct {
	observability.NoopHTTPHooks
	mu        sync.Mutex
	responses []string
}

func (h *recordingHTTPHooks) OnResponse(_ context.Context, method, path string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, method+" "+path+" "+http.StatusText(status))
}

func TestObserveHooks(t *testing.T) {
	hooks := &recordingHTTPHooks{}
	observability.SetHTTPHooks(hooks)
	t.Cleanup(observability.Reset)

	ts := newTestServer(t, testOptions())
	get(t, ts.URL+"/healthz", nil)
	get(t, ts.URL+"/nope", nil)

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	want := []string{"GET /healthz OK", "GET /nope Not Found"}
	if diff := cmp.Diff(want, hooks.responses); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	srv := New(pipeline.NewRunner(nil, nil, logger), testOptions(), source.NewFSLoader(fstest.MapFS{}), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
