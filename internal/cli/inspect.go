package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "inspect [manifest.toml]",
		Short: "Browse per-slot build results interactively",
		Long: `Build the atlas (or load it from the cache) and browse every slot: its
origin, UV rectangle, source and, for slots that could not be filled, why.
Nothing is written to disk.`,
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

			spinner := newSpinner(ctx, "Compositing...")
			spinner.Start()
			res, err := runner.Execute(ctx, opts, loader)
			spinner.Stop()
			if err != nil {
				return err
			}

			p := tea.NewProgram(NewSlotListModel(slotRows(res, opts.Sources, opts.Labels)))
			_, err = p.Run()
			return err
		},
	}

	flags.register(cmd)

	return cmd
}
