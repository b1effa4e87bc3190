// Package gridfs loads atlas sources from a MongoDB GridFS bucket.
//
// Source identifiers are GridFS file names. When several revisions share a
// name, GridFS returns the most recent upload. A missing file maps to
// source.ErrNotFound; any other driver error and undecodable content are
// reported as decode failures for the slot.
//
//	loader, closeFn, err := gridfs.Connect(ctx, uri, "atlaspack", "textures")
//	if err != nil {
//	    return err
//	}
//	defer closeFn(context.Background())
package gridfs
