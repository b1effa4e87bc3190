// Package source defines how atlas slots acquire their images.
//
// A [Loader] turns a source identifier into a decoded raster image. The
// outcome is tagged through the returned error:
//
//   - nil: the image was found and decoded
//   - [ErrNotFound] (possibly wrapped): the identifier did not resolve
//   - anything else, usually a [*DecodeError]: the identifier resolved but no
//     usable pixels could be produced
//
// [Classify] collapses an error into one of those three outcomes. How
// identifiers map to storage is up to the loader: [FSLoader] reads an
// io/fs tree (a directory on disk, an embedded archive, a test MapFS) and
// package gridfs reads from MongoDB.
//
// Loaders are called at most once per slot per build and may be called from
// several goroutines at once when the build runs with workers.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrNotFound is returned when a source identifier cannot be resolved.
var ErrNotFound = errors.New("source not found")

// Loader fetches the image behind a source identifier.
type Loader interface {
	Fetch(ctx context.Context, id string) (image.Image, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, id string) (image.Image, error)

// Fetch calls f(ctx, id).
func (f LoaderFunc) Fetch(ctx context.Context, id string) (image.Image, error) {
	return f(ctx, id)
}

// Fingerprinter is implemented by loaders that can cheaply identify the
// current content of a source without decoding it. The pipeline uses
// fingerprints to key cached atlases; loaders without it are never cached.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, id string) (string, error)
}

// DecodeError reports a source that resolved but could not be decoded.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Outcome is the tag of a Fetch result.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Undecodable
)

// Classify maps a Fetch error to its outcome. Errors that are neither
// ErrNotFound nor nil (permission problems, network failures) count as
// Undecodable: the identifier resolved to something that yielded no pixels.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Found
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return Undecodable
	}
}
