package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depcheck/pkg/caveat"
	"github.com/matzehuels/depcheck/pkg/freshness"
)

// caveatsOpts holds the flags shared by the caveats commands.
type caveatsOpts struct {
	json    bool
	noCache bool
	refresh bool
	all     bool
	reason  string
}

// caveatsCommand creates the caveats command.
func (c *CLI) caveatsCommand() *cobra.Command {
	var opts caveatsOpts

	cmd := &cobra.Command{
		Use:   "caveats",
		Short: "List dependency caveats and whether they still apply",
		Long: `List every caveat with its status:

  active   the dependency is outdated and the caveat accepts it
  stale    the dependency is outdated but the caveat no longer matches
  unused   the dependency is up to date, the caveat can be removed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCaveatsList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "disable the registry response cache")
	cmd.PersistentFlags().BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print caveats as JSON")

	cmd.AddCommand(c.caveatsAddCommand(&opts))

	return cmd
}

// caveatsAddCommand creates the "caveats add" subcommand.
func (c *CLI) caveatsAddCommand(opts *caveatsOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record caveats for outdated dependencies",
		Long: `Run the check and record a caveat for outdated dependencies, accepting
their current state. Without --all an interactive list is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCaveatsAdd(cmd.Context(), *opts, pickInteractive)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "accept every outdated dependency without prompting")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "reason stored with each new caveat")

	return cmd
}

func (c *CLI) runCaveatsList(ctx context.Context, w io.Writer, opts caveatsOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	p, err := c.loadProject(cfg)
	if err != nil {
		return err
	}
	if p.caveats.Len() == 0 && !opts.json {
		printInfo("No caveats in %s", cfg.Caveats)
		return nil
	}

	store, err := newCache(ctx, cfg, opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()
	checker := c.newChecker(p, store)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	audits, err := checker.Audit(ctx, p.manifest, opts.refresh)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(audits)
	}

	fmt.Fprintln(w, caveatTable(audits).Render())

	stale := 0
	for _, a := range audits {
		if a.Status == freshness.StatusStale {
			stale++
		}
	}
	if stale > 0 {
		printWarning("%d stale caveats no longer hide their dependency", stale)
		printNextStep("Refresh them", appName+" caveats add")
	}
	return nil
}

func caveatTable(audits []freshness.CaveatAudit) *table.Table {
	var rows [][]string
	for _, a := range audits {
		stable := "-"
		if a.Outdated != nil {
			stable = a.Outdated.Stable
		}
		rows = append(rows, []string{a.Name, string(a.Status), a.Caveat.OverrideVersion, a.Caveat.CurrentVersion, stable, a.Caveat.Reason})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Package", "Status", "Override", "Current", "NPM Stable", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if col != 1 {
				return StyleValue
			}
			switch audits[row].Status {
			case freshness.StatusActive:
				return StyleSuccess
			case freshness.StatusStale:
				return StyleWarning
			}
			return StyleDim
		})
}

// picker lets the user choose which items receive a caveat.
type picker func(items []outdatedItem) ([]outdatedItem, error)

func pickInteractive(items []outdatedItem) ([]outdatedItem, error) {
	finalModel, err := tea.NewProgram(NewOutdatedListModel(items)).Run()
	if err != nil {
		return nil, err
	}
	fm, ok := finalModel.(OutdatedListModel)
	if !ok {
		return nil, nil
	}
	return fm.Selected(), nil
}

func (c *CLI) runCaveatsAdd(ctx context.Context, opts caveatsOpts, pick picker) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	p, err := c.loadProject(cfg)
	if err != nil {
		return err
	}

	store, err := newCache(ctx, cfg, opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()
	checker := c.newChecker(p, store)

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	report, err := checker.CheckAll(checkCtx, p.manifest, opts.refresh)
	if err != nil {
		return err
	}

	var items []outdatedItem
	for _, g := range report.Groups() {
		for _, name := range g.Residual.Names() {
			items = append(items, outdatedItem{Group: g.Group, Dep: g.Residual[name]})
		}
	}
	if len(items) == 0 {
		printSuccess("All dependencies are up to date or accepted")
		return nil
	}

	selected := items
	if !opts.all {
		if selected, err = pick(items); err != nil {
			return err
		}
	}
	if len(selected) == 0 {
		printDetail("No selection made")
		return nil
	}

	entries := make(map[string]caveat.Caveat, len(selected))
	for _, item := range selected {
		entries[item.Dep.Name] = caveat.Caveat{
			OverrideVersion: item.Dep.Required,
			CurrentVersion:  item.Dep.Stable,
			Reason:          opts.reason,
		}
	}
	if err := p.caveats.With(entries).Save(cfg.Caveats); err != nil {
		return err
	}

	printSuccess("Recorded %d caveats", len(entries))
	for _, item := range selected {
		printDetail("%s %s (stable %s)", item.Dep.Name, item.Dep.Required, item.Dep.Stable)
	}
	printDetail("File: %s", cfg.Caveats)
	return nil
}
