package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/disintegration/imaging"

	atlaserrors "github.com/matzehuels/atlaspack/pkg/errors"
)

// FSLoader loads sources from an io/fs tree. Identifiers are slash-separated
// paths relative to the root of the tree.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader creates a loader over fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// NewDirLoader creates a loader rooted at a directory on disk.
func NewDirLoader(dir string) *FSLoader {
	return NewFSLoader(os.DirFS(dir))
}

// Fetch reads and decodes the file named by id.
// Identifiers that are not safe relative paths never resolve.
func (l *FSLoader) Fetch(ctx context.Context, id string) (image.Image, error) {
	name, err := fsName(id)
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(l.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: id, Err: err}
	}
	return img, nil
}

// Fingerprint identifies the file by size and modification time.
func (l *FSLoader) Fingerprint(ctx context.Context, id string) (string, error) {
	name, err := fsName(id)
	if err != nil {
		return "", err
	}
	info, err := fs.Stat(l.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano()), nil
}

// Decode decodes any registered raster format without converting pixels.
func Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r)
}

func fsName(id string) (string, error) {
	if err := atlaserrors.ValidateSourceID(id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	name := path.Clean(id)
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return name, nil
}

var (
	_ Loader        = (*FSLoader)(nil)
	_ Fingerprinter = (*FSLoader)(nil)
)
