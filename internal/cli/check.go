package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/freshness"
	"github.com/matzehuels/depcheck/pkg/observability"
)

// checkOpts holds the command-line flags for the check command.
type checkOpts struct {
	devOnly     bool          // skip the runtime group
	runtimeOnly bool          // skip the dev group
	json        bool          // print the report as JSON
	timeout     time.Duration // overrides the configured timeout when set
	noCache     bool          // disable the response cache
	refresh     bool          // bypass cached responses but update the cache
}

func (o checkOpts) groups() freshness.Groups {
	switch {
	case o.devOnly:
		return freshness.Groups{Dev: true}
	case o.runtimeOnly:
		return freshness.Groups{Runtime: true}
	}
	return freshness.AllGroups
}

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var opts checkOpts

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fail if dependencies are out of date",
		Long: `Check that the dependencies of the project are up to date.

Both dependencies and devDependencies are resolved against the npm registry.
Outdated dependencies listed in the caveat file are accepted as long as the
caveat still matches the registry. The command exits with status 1 when any
dependency remains outdated, the registry cannot be queried, or the check
does not finish in time.

Set TRAVIS_PULL_REQUEST (or the configured skip_env) to skip the check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.devOnly, "dev-only", false, "check devDependencies only")
	cmd.Flags().BoolVar(&opts.runtimeOnly, "runtime-only", false, "check dependencies only")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the report as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the check after this duration (default from config, 10s)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the registry response cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	cmd.MarkFlagsMutuallyExclusive("dev-only", "runtime-only")

	return cmd
}

// runCheck executes a check and returns an OUTDATED_DEPENDENCIES error when
// the report fails.
func (c *CLI) runCheck(ctx context.Context, w io.Writer, opts checkOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		// A broken config must not fail pull request builds.
		if freshness.Skip(c.getenv, freshness.DefaultSkipEnv) {
			printWarning("Skipping dependency checks for pull request")
			return nil
		}
		return err
	}
	if freshness.Skip(c.getenv, cfg.SkipEnv) {
		printWarning("Skipping dependency checks for pull request")
		return nil
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
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

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c.Logger.Info("Starting check for dependencies", "manifest", p.manifest.Path)
	prog := newProgress(c.Logger)

	var spinner *Spinner
	if !opts.json && c.Logger.GetLevel() > log.DebugLevel {
		spinner = newSpinnerWithContext(ctx, "Checking dependencies...")
		prev := observability.Check()
		observability.SetCheckHooks(spinnerHooks{spinner: spinner})
		defer observability.SetCheckHooks(prev)
		spinner.Start()
	}

	report, err := checker.CheckGroups(ctx, p.manifest, opts.groups(), opts.refresh)
	if spinner != nil {
		if err != nil {
			spinner.StopWithError("Dependency check failed")
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Wrap(errors.ErrCodeTimeout, err, "check did not finish within %s", cfg.Timeout)
		}
		return err
	}
	prog.done(fmt.Sprintf("Checked %d dependencies", checkedCount(p, opts.groups())))

	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return report.Err()
	}

	printReport(report)
	return report.Err()
}

// spinnerHooks shows the group currently being resolved.
type spinnerHooks struct {
	observability.NoopCheckHooks
	spinner *Spinner
}

func (h spinnerHooks) OnCheckStart(ctx context.Context, group string) {
	h.spinner.SetMessage("Resolving " + group + "...")
}

func (h spinnerHooks) OnCheckComplete(ctx context.Context, group string, outdated, residual int, d time.Duration, err error) {
	if err == nil {
		h.spinner.SetMessage(fmt.Sprintf("Resolved %s, %d outdated", group, residual))
	}
}

func checkedCount(p *project, groups freshness.Groups) int {
	n := 0
	if groups.Runtime {
		n += len(p.manifest.Dependencies)
	}
	if groups.Dev {
		n += len(p.manifest.DevDependencies)
	}
	return n
}

// printReport renders a report for the terminal.
func printReport(r *freshness.Report) {
	if r.Project != "" {
		printInfo("%s %s", StyleTitle.Render(r.Project), StyleDim.Render(r.Manifest))
	}
	if r.Runtime != nil {
		printGroup(r.Runtime, false)
	}
	if r.Dev != nil {
		printGroup(r.Dev, true)
	}
	if r.Failed() {
		printNewline()
		printNextStep("Accept an outdated dependency", appName+" caveats add")
	}
}
