package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/atlaspack/pkg/source"
)

// DefaultBucket is the GridFS bucket name used when none is configured.
const DefaultBucket = "textures"

// Bucket is the subset of *gridfs.Bucket the loader needs.
type Bucket interface {
	DownloadToStreamByName(filename string, stream io.Writer, opts ...*options.NameOptions) (int64, error)
}

// Loader fetches sources from a GridFS bucket.
type Loader struct {
	bucket Bucket
}

// NewLoader creates a loader over bucket.
func NewLoader(bucket Bucket) *Loader {
	return &Loader{bucket: bucket}
}

// Connect dials MongoDB at uri and opens bucketName in database. The returned
// function disconnects the client.
func Connect(ctx context.Context, uri, database, bucketName string) (*Loader, func(context.Context) error, error) {
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("open bucket %s: %w", bucketName, err)
	}
	return NewLoader(bucket), client.Disconnect, nil
}

// Fetch downloads and decodes the file named id.
func (l *Loader) Fetch(ctx context.Context, id string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := l.bucket.DownloadToStreamByName(id, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", id, source.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", id, err)
	}

	img, err := source.Decode(&buf)
	if err != nil {
		return nil, &source.DecodeError{Source: id, Err: err}
	}
	return img, nil
}

var _ source.Loader = (*Loader)(nil)
