package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// completionScripts maps each supported shell to its script generator.
var completionScripts = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":        func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
}

// manifestCommands take a manifest path as their only argument.
var manifestCommands = []string{"build", "layout", "inspect", "serve"}

func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Print a shell completion script",
		Long: `Print a completion script for the given shell.

The script completes subcommands and flags, and offers *.toml files for
the manifest argument of build, layout, inspect and serve.

  $ source <(atlaspack completion bash)
  $ atlaspack completion zsh > "${fpath[1]}/_atlaspack"
  $ atlaspack completion fish > ~/.config/fish/completions/atlaspack.fish
  PS> atlaspack completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionScripts[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}
}

// completeManifests wires manifest path completion into the subcommands of
// root that accept one.
func completeManifests(root *cobra.Command) {
	for _, name := range manifestCommands {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			continue
		}
		cmd.ValidArgsFunction = func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return []string{"toml"}, cobra.ShellCompDirectiveFilterFileExt
		}
	}
}
