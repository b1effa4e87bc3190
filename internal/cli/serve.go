package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/internal/server"
	"github.com/matzehuels/atlaspack/pkg/manifest"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		flags buildFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve [manifest.toml]",
		Short: "Serve the atlas and its diagnostics over HTTP",
		Long: `Serve the atlas over HTTP. Every request for /atlas.png checks the
sources and rebuilds the atlas when one of them changed, so editors can keep
a texture preview open while artists work.

Routes:
  GET /healthz       liveness check
  GET /atlas.png     the composite (?refresh=true forces a rebuild)
  GET /diagnostics   slots of the last build that could not be filled
  GET /layout        slot origins and UV rectangles`,
		Example: `  # Serve the built-in block atlas on :8080
  atlaspack serve

  # Serve a manifest on another port
  atlaspack serve atlas.toml --addr 127.0.0.1:9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadManifest(manifestArg(args))
			if err != nil {
				return err
			}
			if err := flags.apply(m); err != nil {
				return err
			}
			return c.runServe(ctx, m, &flags, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	flags.register(cmd)

	return cmd
}

func (c *CLI) runServe(ctx context.Context, m *manifest.Manifest, flags *buildFlags, addr string) error {
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

	srv := server.New(runner, opts, loader, logger)
	printInfo("Serving atlas on %s", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
