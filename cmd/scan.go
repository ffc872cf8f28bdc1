// File: cmd/scan.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/reporting"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/service"
)

// scanOptions are the per-run settings of the scan command.
type scanOptions struct {
	RepositoryURL string
	TeamID        string
	Output        string
	Format        string
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd(factory service.ComponentFactory) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <repo-url>",
		Short: "Runs the open-source and code-security scans against a GitHub repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyScanFlagOverrides(cmd, cfg)

			opts := scanOptions{RepositoryURL: args[0]}
			opts.TeamID, _ = cmd.Flags().GetString("team")
			opts.Output, _ = cmd.Flags().GetString("output")
			opts.Format, _ = cmd.Flags().GetString("format")

			return runScan(ctx, logger, cfg, opts, factory, cmd.OutOrStdout())
		},
	}

	scanCmd.Flags().StringP("team", "t", "", "Team whose running statistics the results are folded into.")
	scanCmd.Flags().StringP("output", "o", "", "Output file path for the report. If unset, no report is generated.")
	scanCmd.Flags().StringP("format", "f", reporting.FormatSARIF, "Format for the output report ('sarif' or 'json').")
	scanCmd.Flags().String("dispatch", "", "Run the two scans 'concurrent' or 'sequential'. (Overrides config/env)")
	scanCmd.Flags().Duration("timeout", 0, "Timeout of each scan engine call. (Overrides config/env)")

	return scanCmd
}

// applyScanFlagOverrides copies explicitly set flags into cfg.
func applyScanFlagOverrides(cmd *cobra.Command, cfg config.Interface) {
	logger := observability.GetLogger()
	if cmd.Flags().Changed("dispatch") {
		mode, _ := cmd.Flags().GetString("dispatch")
		switch mode {
		case config.DispatchConcurrent, config.DispatchSequential:
			cfg.SetSessionDispatch(mode)
		default:
			logger.Warn("Invalid --dispatch value, keeping configured mode",
				zap.String("dispatch", mode), zap.String("configured", cfg.Session().Dispatch))
		}
	}
	if cmd.Flags().Changed("timeout") {
		d, _ := cmd.Flags().GetDuration("timeout")
		if d > 0 {
			cfg.SetScannerTimeout(d)
		} else {
			logger.Warn("Ignoring non-positive --timeout", zap.Duration("timeout", d))
		}
	}
}

// runScan drives one session to completion, prints a summary and writes the
// optional report. A failed session is returned as an error after the
// report has been written.
func runScan(ctx context.Context, logger *zap.Logger, cfg config.Interface, opts scanOptions, factory service.ComponentFactory, out io.Writer) error {
	if err := repository.Validate(opts.RepositoryURL); err != nil {
		return err
	}
	if opts.Output != "" && opts.Format != reporting.FormatJSON && opts.Format != reporting.FormatSARIF {
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scan components: %w", err)
	}
	defer components.Shutdown()

	session, err := components.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create scan session: %w", err)
	}
	defer session.Close()

	start := time.Now()
	gen, err := session.StartScan(ctx, opts.RepositoryURL, opts.TeamID)
	if err != nil {
		return err
	}

	snap, err := session.Await(ctx, gen)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Scan aborted", zap.String("repository", opts.RepositoryURL))
		}
		return err
	}
	logger.Info("Scan finished",
		zap.String("state", string(snap.State)),
		zap.Duration("elapsed", time.Since(start)),
	)

	printSummary(out, snap)

	if opts.Output != "" {
		if err := writeReport(&snap, opts.Format, opts.Output); err != nil {
			return err
		}
		logger.Info("Report generated successfully.", zap.String("path", opts.Output), zap.String("format", opts.Format))
	}

	if snap.State == schemas.StateFailed {
		if snap.Err != nil {
			return fmt.Errorf("scan failed: %w", snap.Err)
		}
		return fmt.Errorf("scan failed: %s", snap.Error)
	}
	return nil
}

func writeReport(snap *schemas.SessionSnapshot, format, output string) error {
	reporter, err := reporting.New(format, output, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(snap); err != nil {
		reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// printSummary renders the severity counts of a finished session.
func printSummary(out io.Writer, snap schemas.SessionSnapshot) {
	fmt.Fprintf(out, "\nRepository: %s\n", snap.RepositoryURL)

	stats := snap.Stats
	if snap.State == schemas.StateFailed {
		fmt.Fprintf(out, "Scan failed: %s\n", snap.Error)
		if snap.Partial == nil {
			return
		}
		stats = snap.Partial
		fmt.Fprintln(out, "Partial results:")
	}
	if stats == nil {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tHIGH\tMEDIUM\tLOW")
	fmt.Fprintf(w, "Open source\t%d\t%d\t%d\n", stats.OpenSource.High, stats.OpenSource.Medium, stats.OpenSource.Low)
	fmt.Fprintf(w, "Code security\t%d\t%d\t%d\n", stats.CodeSecurity.High, stats.CodeSecurity.Medium, stats.CodeSecurity.Low)
	w.Flush()

	switch {
	case snap.TeamStats != nil:
		ts := snap.TeamStats
		fmt.Fprintf(out, "Team %s averages: high %.2f, medium %.2f, low %.2f\n",
			snap.TeamID, ts.AvgHighVulCnt, ts.AvgMidVulCnt, ts.AvgLowVulCnt)
	case snap.StatsStale:
		fmt.Fprintf(out, "Team %s averages could not be updated.\n", snap.TeamID)
	}
}
