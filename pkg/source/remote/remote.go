// Package remote loads atlas sources over HTTP.
//
// Source identifiers are slash-separated paths resolved against a base URL,
// so "Grass/Grass_01.png" with base "https://cdn.example.com/textures/"
// fetches "https://cdn.example.com/textures/Grass/Grass_01.png". A 404 or
// 410 response means the source is missing.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"

	"github.com/matzehuels/atlaspack/pkg/httputil"
	"github.com/matzehuels/atlaspack/pkg/source"

	atlaserrors "github.com/matzehuels/atlaspack/pkg/errors"
)

// Loader fetches sources below a base URL.
type Loader struct {
	base   *url.URL
	client *httputil.Client
}

// NewLoader creates a loader for baseURL. A nil client uses
// httputil.NewClient defaults.
func NewLoader(baseURL string, client *httputil.Client) (*Loader, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.ErrCodeInvalidConfig, err, "base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, atlaserrors.New(atlaserrors.ErrCodeInvalidConfig, "base url %q must be an absolute http(s) url", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = httputil.NewClient()
	}
	return &Loader{base: u, client: client}, nil
}

// URL returns the address id resolves to.
func (l *Loader) URL(id string) (string, error) {
	if err := atlaserrors.ValidateSourceID(id); err != nil {
		return "", fmt.Errorf("%w: %v", source.ErrNotFound, err)
	}
	return l.base.ResolveReference(&url.URL{Path: id}).String(), nil
}

// Fetch downloads and decodes id.
func (l *Loader) Fetch(ctx context.Context, id string) (image.Image, error) {
	u, err := l.URL(id)
	if err != nil {
		return nil, err
	}
	data, _, err := l.client.Get(ctx, u)
	switch {
	case errors.Is(err, httputil.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", id, source.ErrNotFound)
	case errors.Is(err, httputil.ErrTooLarge):
		return nil, &source.DecodeError{Source: id, Err: err}
	case err != nil:
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	img, err := source.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &source.DecodeError{Source: id, Err: err}
	}
	return img, nil
}

// Fingerprint identifies id by its ETag, or by Last-Modified and
// Content-Length when the server sends no ETag. Servers sending neither
// cannot be fingerprinted.
func (l *Loader) Fingerprint(ctx context.Context, id string) (string, error) {
	u, err := l.URL(id)
	if err != nil {
		return "", err
	}
	h, err := l.client.Head(ctx, u)
	if errors.Is(err, httputil.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", id, source.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return fingerprint(h)
}

func fingerprint(h http.Header) (string, error) {
	if etag := h.Get("ETag"); etag != "" {
		return "etag:" + etag, nil
	}
	if lm := h.Get("Last-Modified"); lm != "" {
		return "lm:" + lm + ":" + h.Get("Content-Length"), nil
	}
	return "", errors.New("no ETag or Last-Modified header")
}

var (
	_ source.Loader        = (*Loader)(nil)
	_ source.Fingerprinter = (*Loader)(nil)
)
