package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"shockstudy/internal/config"
	"shockstudy/internal/infrastructure"
	"shockstudy/internal/marketdata"
	"shockstudy/internal/operations"
)

// studyFlags are the study parameters settable on the command line
type studyFlags struct {
	preDays, postDays, gapDays, leadDays int
	carK1, carK2                         int
	kPre, kPost                          int
	dropStart, dropEnd                   string
	downloadStart, downloadEnd           string
	volModel                             string
	workers                              int
}

func (s *studyFlags) register(fs *pflag.FlagSet) {
	d := config.Default().Study
	fs.IntVar(&s.preDays, "pre-days", d.PreDays, "estimation window length in trading days")
	fs.IntVar(&s.postDays, "post-days", d.PostDays, "trading days after the event")
	fs.IntVar(&s.gapDays, "gap-days", d.GapDays, "trading days between estimation window and event window")
	fs.IntVar(&s.leadDays, "lead-days", d.LeadDays, "trading days of the event window before the event")
	fs.IntVar(&s.carK1, "car-k1", d.CARK1, "short CAR horizon")
	fs.IntVar(&s.carK2, "car-k2", d.CARK2, "long CAR horizon")
	fs.IntVar(&s.kPre, "k-pre", d.KPre, "trading days before the event for macro shocks")
	fs.IntVar(&s.kPost, "k-post", d.KPost, "trading days after the event for macro shocks")
	fs.StringVar(&s.dropStart, "drop-start", "", "first date of the excluded window (DiD/DDD)")
	fs.StringVar(&s.dropEnd, "drop-end", "", "last date of the excluded window (DiD/DDD)")
	fs.StringVar(&s.downloadStart, "start", d.DownloadStartDate, "first download date")
	fs.StringVar(&s.downloadEnd, "end", d.DownloadEndDate, "download end date, exclusive")
	fs.StringVar(&s.volModel, "vol-model", d.VolatilityModel, "volatility model: auto, garch or stddev")
	fs.IntVar(&s.workers, "workers", d.Workers, "parallel per-ticker workers")
}

// apply copies the flags set explicitly on the command line over cfg
func (s *studyFlags) apply(fs *pflag.FlagSet, cfg *config.StudyConfig) {
	ints := map[string]struct {
		src *int
		dst *int
	}{
		"pre-days":  {&s.preDays, &cfg.PreDays},
		"post-days": {&s.postDays, &cfg.PostDays},
		"gap-days":  {&s.gapDays, &cfg.GapDays},
		"lead-days": {&s.leadDays, &cfg.LeadDays},
		"car-k1":    {&s.carK1, &cfg.CARK1},
		"car-k2":    {&s.carK2, &cfg.CARK2},
		"k-pre":     {&s.kPre, &cfg.KPre},
		"k-post":    {&s.kPost, &cfg.KPost},
		"workers":   {&s.workers, &cfg.Workers},
	}
	for name, f := range ints {
		if fs.Changed(name) {
			*f.dst = *f.src
		}
	}

	strs := map[string]struct {
		src *string
		dst *string
	}{
		"drop-start": {&s.dropStart, &cfg.DropStart},
		"drop-end":   {&s.dropEnd, &cfg.DropEnd},
		"start":      {&s.downloadStart, &cfg.DownloadStartDate},
		"end":        {&s.downloadEnd, &cfg.DownloadEndDate},
		"vol-model":  {&s.volModel, &cfg.VolatilityModel},
	}
	for name, f := range strs {
		if fs.Changed(name) {
			*f.dst = *f.src
		}
	}
}

// newStageCmd runs a single stage. Its inputs must already exist in the
// results tree.
func newStageCmd(opts *options, study *studyFlags, stage operations.Stage) *cobra.Command {
	return &cobra.Command{
		Use:   stage.ID(),
		Short: stage.Name(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts, study, stage.ID())
		},
	}
}

func newRunCmd(opts *options, study *studyFlags) *cobra.Command {
	var skipDownload bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !skipDownload {
				return runPipeline(cmd, opts, study)
			}
			registry, err := operations.NewStudyRegistry()
			if err != nil {
				return err
			}
			var ids []string
			for _, id := range registry.ListIDs() {
				if id != config.StageDownload {
					ids = append(ids, id)
				}
			}
			return runPipeline(cmd, opts, study, ids...)
		},
	}
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "reuse the merged price file already on disk")
	return cmd
}

// runPipeline wires configuration, logging, telemetry and the market-data
// client, then runs the requested stages
func runPipeline(cmd *cobra.Command, opts *options, study *studyFlags, ids ...string) error {
	cfg, err := loadConfig(cmd, opts, study)
	if err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	paths, err := config.NewPaths(cfg.Paths.BaseDir)
	if err != nil {
		return err
	}
	paths.LogPathResolution(logger)

	universe, err := config.LoadUniverse(cfg.Study.UniverseFile)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	state, err := operations.NewState(cfg, universe, paths, logger)
	if err != nil {
		return err
	}
	state.Fetcher = newFetcher(cfg.Provider, providers, logger)

	registry, err := operations.NewStudyRegistry()
	if err != nil {
		return err
	}
	runnerCfg := operations.NewConfig()
	if opts.stageTimeout > 0 {
		for _, id := range registry.ListIDs() {
			runnerCfg.SetStageTimeout(id, opts.stageTimeout)
		}
	}
	if state.EventDate != "" {
		runnerCfg.ManifestPath = paths.ManifestPath(state.EventDate)
	}
	runnerCfg.MetricsTextfile = metricsTextfile(cfg.Telemetry, paths)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = operations.NewRunner(registry, runnerCfg, providers, logger).Run(ctx, state, ids...)
	return err
}

// newFetcher builds the rate-limited provider client
func newFetcher(pc config.ProviderConfig, providers *infrastructure.OTelProviders, logger *slog.Logger) marketdata.Fetcher {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = marketdata.DefaultTimeout
	}
	opts := []marketdata.ClientOption{
		marketdata.WithBaseURL(pc.BaseURL),
		marketdata.WithHTTPClient(&http.Client{Timeout: timeout}),
		marketdata.WithRateLimit(pc.RequestsPerSec, pc.Burst),
		marketdata.WithRetries(pc.MaxRetries, time.Second),
		marketdata.WithMetrics(providers.Metrics),
		marketdata.WithLogger(logger),
	}
	if pc.UserAgent != "" {
		opts = append(opts, marketdata.WithUserAgent(pc.UserAgent))
	}
	return marketdata.NewClient(opts...)
}

// metricsTextfile resolves the textfile path; relative paths live under the
// base directory
func metricsTextfile(tc config.TelemetryConfig, paths *config.Paths) string {
	if !tc.EnableMetrics || tc.MetricsTextfile == "" {
		return ""
	}
	if filepath.IsAbs(tc.MetricsTextfile) {
		return tc.MetricsTextfile
	}
	return filepath.Join(paths.BaseDir, tc.MetricsTextfile)
}
