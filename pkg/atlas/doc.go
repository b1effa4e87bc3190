// Package atlas composites a fixed grid of source images into one RGBA8
// texture atlas.
//
// [Build] walks every slot of a [layout.Grid] in index order, fetches the
// slot's source through a [source.Loader], normalizes it to 8-bit NRGBA and
// copies it into the composite at the slot origin. Sources do not have to
// match the tile size: smaller images leave the rest of the slot transparent,
// larger ones are clipped to their top-left tile-sized region. Nothing is
// ever resampled.
//
// # Failure Model
//
// Invalid configuration (a source list whose length differs from the slot
// count, a nil grid or loader) fails the whole call before the composite is
// allocated. Everything that goes wrong with a single slot is recorded as a
// [Diagnostic] and the slot is left fully transparent:
//
//   - MissingSource: the loader could not resolve the identifier
//   - SourceDecodeError: it resolved but did not decode
//   - NormalizeFailure: it decoded but could not be converted to RGBA8
//
// A build in which every slot failed still returns a transparent composite
// and N diagnostics.
//
// # Concurrency
//
// By default slots are processed one at a time. [WithWorkers] fetches and
// composites several slots at once; slot regions never overlap and
// diagnostics are merged in slot order, so the composite and the diagnostic
// list are identical to a sequential run.
package atlas
