package gridfs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/atlaspack/pkg/source"
)

type fakeBucket struct {
	files map[string][]byte
	err   error
	calls int
}

func (b *fakeBucket) DownloadToStreamByName(name string, w io.Writer, _ ...*options.NameOptions) (int64, error) {
	b.calls++
	if b.err != nil {
		return 0, b.err
	}
	data, ok := b.files[name]
	if !ok {
		return 0, gridfs.ErrFileNotFound
	}
	n, err := w.Write(data)
	return int64(n), err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	img.SetGray(1, 1, color.Gray{Y: 200})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoaderFetch(t *testing.T) {
	b := &fakeBucket{files: map[string][]byte{
		"Grass/Grass_01.png": pngBytes(t),
		"broken.png":         []byte("garbage"),
	}}
	l := NewLoader(b)
	ctx := context.Background()

	img, err := l.Fetch(ctx, "Grass/Grass_01.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("width = %d, want 3", img.Bounds().Dx())
	}

	if _, err := l.Fetch(ctx, "missing.png"); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrNotFound", err)
	}

	_, err = l.Fetch(ctx, "broken.png")
	var de *source.DecodeError
	if !errors.As(err, &de) || de.Source != "broken.png" {
		t.Errorf("Fetch(broken) error = %v, want *source.DecodeError", err)
	}
}

func TestLoaderDriverError(t *testing.T) {
	l := NewLoader(&fakeBucket{err: errors.New("server selection timeout")})
	_, err := l.Fetch(context.Background(), "a.png")
	if source.Classify(err) != source.Undecodable {
		t.Errorf("driver error classified as %v, want Undecodable", source.Classify(err))
	}
}

func TestLoaderCancelledContext(t *testing.T) {
	b := &fakeBucket{files: map[string][]byte{"a.png": pngBytes(t)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLoader(b).Fetch(ctx, "a.png"); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
	if b.calls != 0 {
		t.Errorf("bucket called %d times after cancellation", b.calls)
	}
}

func TestConnectIntegration(t *testing.T) {
	uri := os.Getenv("ATLASPACK_MONGO_URI")
	if uri == "" {
		t.Skip("ATLASPACK_MONGO_URI not set")
	}
	ctx := context.Background()
	l, closeFn, err := Connect(ctx, uri, "atlaspack_test", "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer closeFn(ctx)

	if _, err := l.Fetch(ctx, "definitely-not-uploaded.png"); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("Fetch(unknown) error = %v, want ErrNotFound", err)
	}
}
