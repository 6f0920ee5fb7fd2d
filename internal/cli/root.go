package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/depcheck/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Commands:
//   - check: fail when dependencies are outdated and not covered by a caveat
//   - caveats: list caveats and record new ones
//   - serve: expose check results over HTTP
//   - cache: manage the registry response cache
//   - completion: generate shell completions
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "depcheck keeps npm dependencies up to date",
		Long:         `depcheck compares the dependency ranges in package.json with the stable versions on the npm registry and fails when a dependency has fallen behind without an acknowledged caveat.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.dir, "dir", "C", c.dir, "project root containing package.json")

	root.AddCommand(c.checkCommand())
	root.AddCommand(c.caveatsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
