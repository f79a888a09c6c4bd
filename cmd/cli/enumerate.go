package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/hostenum/internal/config"
	"github.com/anstrom/hostenum/internal/enumeration"
	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/metrics"
	"github.com/anstrom/hostenum/internal/profiles"
	"github.com/anstrom/hostenum/internal/report"
	"github.com/anstrom/hostenum/internal/scanning"
	"github.com/anstrom/hostenum/internal/targets"
	"github.com/anstrom/hostenum/internal/tools"
)

var (
	enumExclude     string
	enumOutput      string
	enumFormat      string
	enumProfile     string
	enumPorts       string
	enumConcurrency int
	enumYes         bool
	enumNoWindows   bool
	enumMetricsAddr string
)

// newToolRunner builds the runner chain used for external tools.
var newToolRunner = func(cfg *config.Config, pm *metrics.PrometheusMetrics, logger *logging.Logger) tools.Runner {
	return &tools.InstrumentedRunner{
		Next: &tools.RetryRunner{
			Next:              tools.NewExecRunner(),
			MaxRetries:        cfg.Retry.MaxRetries,
			Delay:             cfg.Retry.RetryDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			Logger:            logger,
		},
		Metrics: pm,
		Logger:  logger,
	}
}

// newResolver builds the resolver for DNS target names.
var newResolver = func(server string, timeout time.Duration) targets.Resolver {
	return targets.NewDNSResolver(server, timeout)
}

// errAborted is returned when the operator declines DNS resolution.
var errAborted = fmt.Errorf("aborted: DNS resolution was not confirmed")

// enumerateCmd represents the enumerate command.
var enumerateCmd = &cobra.Command{
	Use:   "enumerate <targets>...",
	Short: "Enumerate hosts and write an evidence report",
	Long: `Run the enumeration pipeline against one or more targets. Targets may be
single IPv4 addresses, CIDR blocks (/16 or smaller), ranges such as
192.168.1.1-50 or 10.0.0.1-10.0.0.20, and DNS names. Several targets can be
given as separate arguments or as a comma-separated list.

Each host gets a general TCP scan, OS detection and, for the thorough profile,
a UDP scan. Hosts that look like Windows machines are additionally enumerated
over SMB, NetBIOS and LDAP. DNS names are only resolved after confirmation
unless --yes is given.`,
	Example: `  hostenum enumerate 192.168.1.10
  hostenum enumerate 192.168.1.0/24 -e 192.168.1.1 --profile full
  hostenum enumerate dc01.corp.local --yes -o dc01.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnumerate,
}

func init() {
	rootCmd.AddCommand(enumerateCmd)

	enumerateCmd.Flags().StringVarP(&enumExclude, "exclude", "e", "", "Targets to exclude, same syntax as targets")
	enumerateCmd.Flags().StringVarP(&enumOutput, "output", "o", "", "Report file (default is a timestamped file in the report directory)")
	enumerateCmd.Flags().StringVar(&enumFormat, "format", "", "Report format: markdown, json or yaml")
	enumerateCmd.Flags().StringVar(&enumProfile, "profile", "", "Scan profile: "+strings.Join(profiles.Names(), ", "))
	enumerateCmd.Flags().StringVar(&enumPorts, "ports", "", "Custom TCP ports, overriding the profile (e.g. '22,80,443' or '1-1024')")
	enumerateCmd.Flags().IntVar(&enumConcurrency, "concurrency", 0, "Number of hosts enumerated at the same time")
	enumerateCmd.Flags().BoolVarP(&enumYes, "yes", "y", false, "Skip the DNS safety confirmation")
	enumerateCmd.Flags().BoolVar(&enumNoWindows, "no-windows", false, "Disable the SMB, NetBIOS and LDAP stages")
	enumerateCmd.Flags().StringVar(&enumMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

// applyEnumerateFlags overrides configuration with the flags that were set.
func applyEnumerateFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("profile") {
		cfg.Enumeration.Profile = enumProfile
	}
	if flags.Changed("ports") {
		cfg.Enumeration.Ports = enumPorts
	}
	if flags.Changed("concurrency") {
		cfg.Enumeration.Concurrency = enumConcurrency
	}
	if flags.Changed("no-windows") && enumNoWindows {
		cfg.Enumeration.Windows.Enabled = false
	}
	if flags.Changed("format") {
		cfg.Report.Format = enumFormat
		if f, err := report.ParseFormat(enumFormat); err == nil {
			cfg.Report.Format = string(f)
		}
	} else if ext := strings.TrimPrefix(filepath.Ext(enumOutput), "."); ext != "" {
		if f, err := report.ParseFormat(ext); err == nil {
			cfg.Report.Format = string(f)
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = enumMetricsAddr != ""
		cfg.Metrics.ListenAddr = enumMetricsAddr
	}
}

func runEnumerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyEnumerateFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "invalid configuration", err)
	}

	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}
	profile, err := profiles.Get(cfg.Enumeration.Profile)
	if err != nil {
		return err
	}
	planner, err := scanning.NewPlanner(cfg, profile)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := logging.Default().WithRunID(runID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := strings.Join(args, ",")
	expansion, err := expandTargets(ctx, cmd, cfg, spec)
	if err != nil {
		return err
	}
	for _, name := range expansion.Unresolved {
		logger.Warn("Could not resolve target name", "name", name)
	}
	if len(expansion.Targets) == 0 {
		return errors.NewTargetError(errors.CodeTargetInvalid, "no targets left to enumerate", spec)
	}

	pm := metrics.NewPrometheusMetrics()
	warnMissingTools(ctx, cfg, logger)

	if cfg.Metrics.Enabled {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		srv := metrics.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, pm, logger.Logger)
		go func() {
			if err := srv.Start(srvCtx); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	orchestrator := enumeration.New(planner, newToolRunner(cfg, pm, logger),
		enumeration.WithLogger(logger),
		enumeration.WithMetrics(pm),
		enumeration.WithConcurrency(cfg.Enumeration.Concurrency),
	)

	startedAt := time.Now()
	results, summary := orchestrator.Run(ctx, expansion.Targets)
	finishedAt := time.Now()

	meta := report.Meta{
		RunID:      runID,
		Targets:    spec,
		Excluded:   enumExclude,
		Profile:    profile.Name,
		Version:    version,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Unresolved: expansion.Unresolved,
	}

	path := reportPath(cfg, format, finishedAt)
	if err := report.WriteFile(path, results, meta, format); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := report.Console(out, results); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReport written to %s\n", path)

	if cfg.Metrics.Textfile != "" {
		if err := pm.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	logger.Info("Enumeration finished",
		"targets", summary.Targets,
		"records", summary.Records,
		"windows_hosts", summary.Windows,
		"duration", summary.Duration)

	if ctx.Err() != nil {
		return errors.NewToolError(errors.CodeCanceled, "hostenum", "enumeration interrupted, partial report written")
	}
	return nil
}

// expandTargets resolves the include and exclude specs, asking for
// confirmation before any DNS query is sent.
func expandTargets(ctx context.Context, cmd *cobra.Command, cfg *config.Config, spec string) (*targets.Expansion, error) {
	var resolver targets.Resolver
	if targets.HasDNSNames(spec) || targets.HasDNSNames(enumExclude) {
		server, err := targets.DNSServer(cfg.DNS.Server, cfg.DNS.ResolvConf)
		if err != nil {
			return nil, errors.WrapTargetError(errors.CodeDNSResolution, "no DNS server available", spec, err)
		}
		if !enumYes && !targets.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), spec, server) {
			return nil, errAborted
		}
		resolver = newResolver(server, cfg.DNS.Timeout)
	}
	return targets.Expand(ctx, spec, enumExclude, resolver)
}

// warnMissingTools logs every configured tool that cannot be found. Missing
// tools only skip their stages.
func warnMissingTools(ctx context.Context, cfg *config.Config, logger *logging.Logger) {
	for _, st := range tools.Missing(tools.Availability(ctx, cfg.Tools.Binaries(), lookPath)) {
		logger.Warn("Tool not available, its stages will be skipped", "tool", st.Tool, "binary", st.Binary)
	}
}

// reportPath returns the -o path or the configured default location.
func reportPath(cfg *config.Config, format report.Format, finishedAt time.Time) string {
	if enumOutput != "" {
		return enumOutput
	}
	name := cfg.Report.Filename
	if name == "" {
		name = report.DefaultFilename(finishedAt, format)
	}
	return filepath.Join(cfg.Report.OutputDir, name)
}
