package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/buildinfo"
	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/httputil"
	"github.com/matzehuels/atlaspack/pkg/manifest"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
	"github.com/matzehuels/atlaspack/pkg/source"
	"github.com/matzehuels/atlaspack/pkg/source/gridfs"
	"github.com/matzehuels/atlaspack/pkg/source/remote"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "atlaspack"

	// Environment variables read at startup (a .env file is loaded first).
	envRedisURL = "ATLASPACK_REDIS_URL"
	envMongoURI = "ATLASPACK_MONGO_URI"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
	LogWarn  = log.WarnLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Atlaspack composites block textures into a texture atlas",
		Long:         `Atlaspack packs a fixed grid of source images into one RGBA texture atlas, reporting every slot it could not fill.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.initCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	completeManifests(root)

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cache, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cache, nil, c.Logger), nil
}

// newCache picks the shared Redis cache when ATLASPACK_REDIS_URL is set and
// the local file cache otherwise.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if url := os.Getenv(envRedisURL); url != "" {
		rc, err := cache.NewRedisCache(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("connect to redis cache: %w", err)
		}
		c.Logger.Debug("using redis cache")
		return rc, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Manifests and Sources
// =============================================================================

// loadManifest reads the manifest at path, or the built-in block atlas
// manifest when path is empty.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.Default(), nil
	}
	return manifest.Load(path)
}

// manifestArg returns the optional manifest argument.
func manifestArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// openLoader opens the source store selected by the manifest. The returned
// close function must be called when the loader is no longer needed.
func openLoader(ctx context.Context, m *manifest.Manifest) (source.Loader, func(context.Context) error, error) {
	switch m.StoreKind() {
	case manifest.StoreGridFS:
		uri := m.Store.URI
		if uri == "" {
			uri = os.Getenv(envMongoURI)
		}
		if uri == "" {
			return nil, nil, fmt.Errorf("gridfs store needs a uri in [store] or %s", envMongoURI)
		}
		db := m.Store.Database
		if db == "" {
			db = manifest.DefaultDatabase
		}
		l, closeFn, err := gridfs.Connect(ctx, uri, db, m.Store.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return l, closeFn, nil
	case manifest.StoreHTTP:
		l, err := remote.NewLoader(m.Store.URI, httputil.NewClient())
		if err != nil {
			return nil, nil, err
		}
		return l, noClose, nil
	default:
		return source.NewDirLoader(m.SourceRoot()), noClose, nil
	}
}

func noClose(context.Context) error { return nil }

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/atlaspack/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
