package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/manifest"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
)

// buildFlags holds flags shared by commands that run a build.
type buildFlags struct {
	output   string
	basePath string
	store    string
	workers  int
	noCache  bool
	refresh  bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.basePath, "base-path", "", "directory source identifiers are relative to (overrides manifest)")
	cmd.Flags().StringVar(&f.store, "store", "", "source store: dir, gridfs, http (overrides manifest)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "slots processed concurrently (default from manifest, 1)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "rebuild even when a cached atlas exists")
}

// apply overrides manifest fields with flags and re-validates the result.
func (f *buildFlags) apply(m *manifest.Manifest) error {
	if f.basePath != "" {
		abs, err := filepath.Abs(f.basePath)
		if err != nil {
			return fmt.Errorf("resolve base path: %w", err)
		}
		m.BasePath = abs
	}
	if f.store != "" {
		m.Store.Kind = f.store
	}
	if f.workers != 0 {
		m.Workers = f.workers
	}
	return m.Validate()
}

// options returns the pipeline options for m with flag overrides applied.
func (f *buildFlags) options(ctx context.Context, m *manifest.Manifest) pipeline.Options {
	opts := m.Options()
	if f.output != "" {
		opts.Output = f.output
	}
	opts.Refresh = f.refresh
	opts.Logger = loggerFromContext(ctx)
	return opts
}

// buildCommand creates the build command.
func (c *CLI) buildCommand() *cobra.Command {
	var (
		flags  buildFlags
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "build [manifest.toml]",
		Short: "Composite a manifest's sources into a PNG texture atlas",
		Long: `Composite a manifest's sources into a PNG texture atlas.

Each slot of the grid is filled with its source image, normalized to RGBA8.
Slots whose source is missing, corrupt or unconvertible stay transparent
and are listed after the build. Without a manifest the built-in block atlas
layout is used.

Results are cached locally (or in Redis when ATLASPACK_REDIS_URL is set)
keyed by the grid and the size and modification time of every source.`,
		Example: `  # Build the built-in block atlas from the current directory
  atlaspack build

  # Build from a manifest, failing when any slot is empty
  atlaspack build textures/atlas.toml --strict

  # Override the output and read sources from GridFS
  atlaspack build atlas.toml -o out/atlas.png --store gridfs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(manifestArg(args))
			if err != nil {
				return err
			}
			if err := flags.apply(m); err != nil {
				return err
			}
			return c.runBuild(cmd.Context(), m, &flags, strict, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output PNG path (overrides manifest)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when any slot could not be filled")
	flags.register(cmd)

	return cmd
}

// runBuild executes the build and writes the atlas.
func (c *CLI) runBuild(ctx context.Context, m *manifest.Manifest, flags *buildFlags, strict bool, args []string) error {
	logger := loggerFromContext(ctx)
	opts := flags.options(ctx, m)

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	loader, closeLoader, err := openLoader(ctx, m)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}
	defer closeLoader(context.Background())

	prog := newProgress(logger)
	spinner := newSpinner(ctx, fmt.Sprintf("Compositing %d slots...", len(opts.Sources)))
	spinner.Start()

	res, err := runner.Execute(ctx, opts, loader)
	if err != nil {
		spinner.StopWithError("Build failed")
		return err
	}
	spinner.Stop()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := pipeline.WriteFile(opts.Output, res.PNG); err != nil {
		return err
	}
	prog.done("atlas written")

	b := res.Grid.Bounds()
	printSuccess("Built %dx%d atlas", b.Dx(), b.Dy())
	printStats(res.Stats, res.CacheInfo.Hit)
	printFile(opts.Output)

	diags := res.Diagnostics()
	if len(diags) == 0 {
		return nil
	}

	fmt.Println()
	printWarning("%d of %d slots could not be filled", len(diags), res.Stats.Slots)
	fmt.Println(diagnosticsTable(diags))
	if strict {
		return errors.New(errors.ErrCodeInvalidInput, "%d slots failed", len(diags))
	}
	printNextStep("Browse slot results", "atlaspack inspect "+manifestArg(args))
	return nil
}
