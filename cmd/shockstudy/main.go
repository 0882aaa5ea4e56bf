// Command shockstudy runs the event-study pipeline: download prices, estimate
// abnormal returns, test the treated and defensive groups, contrast
// volatility and link it to macro shocks. Each stage is its own subcommand;
// "run" chains them and "serve" exposes the results over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shockstudy/internal/config"
	"shockstudy/internal/infrastructure"
	"shockstudy/internal/operations"
)

// Version is set at build time with -ldflags
var Version = "dev"

// options holds the persistent flags
type options struct {
	configFile   string
	universeFile string
	baseDir      string
	logLevel     string
	eventDate    string
	stageTimeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportFatal(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	study := &studyFlags{}

	root := &cobra.Command{
		Use:           "shockstudy",
		Short:         "Event study of a macro shock on sector returns and volatility",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	pf.StringVar(&opts.universeFile, "universe", "", "universe YAML file (default: embedded NIFTY 50 universe)")
	pf.StringVar(&opts.baseDir, "base-dir", "", "directory holding data/ and results/ (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&opts.eventDate, "event-date", "", "event date, YYYY-MM-DD")
	pf.DurationVar(&opts.stageTimeout, "stage-timeout", 0, "per-stage timeout (default: 30m for download, 10m otherwise)")
	study.register(pf)

	registry, err := operations.NewStudyRegistry()
	if err != nil {
		// the built-in registry is static; failing here is a programming error
		panic(err)
	}
	for _, stage := range registry.List() {
		root.AddCommand(newStageCmd(opts, study, stage))
	}
	root.AddCommand(
		newRunCmd(opts, study),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers defaults, file, environment and flags, then validates
func loadConfig(cmd *cobra.Command, opts *options, study *studyFlags) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.baseDir != "" {
		cfg.Paths.BaseDir = opts.baseDir
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.eventDate != "" {
		cfg.Study.EventDate = opts.eventDate
	}
	if opts.universeFile != "" {
		cfg.Study.UniverseFile = opts.universeFile
	}
	study.apply(cmd.Flags(), &cfg.Study)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// reportFatal logs a failed command. A missing artifact names the stage that
// produces it.
func reportFatal(err error) {
	logger := infrastructure.GetLogger()
	if missing, ok := operations.MissingInput(err); ok {
		logger.Error("required input is missing",
			"artifact", missing.Context["artifact"],
			"run_stage", missing.Hint,
			"failed_stage", operations.FailedStage(err))
		return
	}
	var opErr *operations.OperationError
	if errors.As(err, &opErr) {
		logger.Error("stage failed", "stage", opErr.Stage, "type", string(opErr.Type), "error", err)
		return
	}
	logger.Error("command failed", "error", err)
}
