// Package pkg provides the core libraries of atlaspack, a texture atlas
// compositor.
//
// # Overview
//
// Atlaspack assembles a fixed grid of square source images into one RGBA8
// texture atlas. Every slot keeps its position, sources are converted to
// 8-bit non-premultiplied RGBA, and a slot whose source is missing or broken
// stays transparent and is reported instead of failing the build.
//
// # Architecture
//
// The data flow of a build:
//
//	TOML manifest
//	     ↓
//	[manifest] (grid, source identifiers, store)
//	     ↓
//	[pipeline] (validate, cache lookup by source fingerprints)
//	     ↓
//	[atlas] (fetch through a [source] loader, normalize, composite)
//	     ↓
//	PNG artifact + per-slot diagnostics
//
// # Main Packages
//
// [layout] - The slot table: slot origins, bounds and UV rectangles of a
// fixed grid.
//
// [atlas] - The compositor. [atlas.Build] processes every slot, sequentially
// or with workers, and returns the composite with its diagnostics.
//
// [source] - Loaders that turn identifiers into images: an io/fs tree,
// MongoDB GridFS ([source/gridfs]) or HTTP ([source/remote]).
//
// [pipeline] - Runs builds for the CLI and the HTTP server, with caching
// keyed by the fingerprints of every source.
//
// [cache] - Artifact caches: local files, Redis, or none.
//
// [manifest] - Atlas manifests in TOML, including the built-in block atlas.
//
// [errors] - Structured error codes shared by every package.
//
// [observability] - Hooks for metrics about builds, caching and requests.
//
// # Quick Start
//
//	grid, _ := layout.New(4, 4, 512)
//	res, err := atlas.Build(ctx, grid, ids, source.NewDirLoader("textures"))
//	if err != nil {
//	    return err
//	}
//	for _, d := range res.Diagnostics {
//	    log.Warn("slot not filled", "slot", d.Slot, "kind", d.Kind)
//	}
//
// [layout]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/layout
// [atlas]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/atlas
// [atlas.Build]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/atlas#Build
// [source]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/source
// [source/gridfs]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/source/gridfs
// [source/remote]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/source/remote
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/cache
// [manifest]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/manifest
// [errors]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/observability
package pkg
