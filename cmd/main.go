// Copyright (c) 2025 A Bit of Help, Inc.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/abitofhelp/mp3toogg/pkg/command"
	"github.com/abitofhelp/mp3toogg/pkg/config"
	"github.com/abitofhelp/mp3toogg/pkg/deps"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/logger"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/transcode"
	"github.com/abitofhelp/mp3toogg/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ExitFunc is a function that exits the program with a given status code
type ExitFunc func(int)

// DefaultExitFunc is the default implementation of ExitFunc
var DefaultExitFunc = os.Exit

// ConvertFunc converts the given files and returns the run statistics
type ConvertFunc func(ctx context.Context, log *zap.Logger, cfg *config.Config, paths []string, stdout io.Writer) (*stats.Stats, error)

// cliFlags holds the command line overrides of the configuration file
type cliFlags struct {
	configPath      string
	workers         int
	outputDir       string
	logFile         string
	tempDir         string
	softCap         int
	queueCapacity   int
	monitorInterval string
	toolTimeout     string
	tagTool         string
	decoder         string
	encoder         string
	verbose         bool
}

// run is the main logic of the application, extracted for testability
func run(args []string, stdout, stderr io.Writer, exit ExitFunc, convert ConvertFunc) {
	cmd := newRootCommand(stdout, stderr, convert)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer, convert ConvertFunc) *cobra.Command {
	var flags cliFlags

	rootCmd := &cobra.Command{
		Use:           "mp3toogg [flags] file...",
		Short:         "Convert MP3 files to Ogg Vorbis, keeping their tags",
		Long:          "mp3toogg converts each file through a four stage pipeline (tags, decode, encode, cleanup)\nand appends one line per converted file to the result log.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.SetOut(stderr)
				_ = cmd.Usage()
				return fmt.Errorf("%w: at least one file is required", customErrors.ErrInvalidInput)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			log := logger.InitLogger(cfg.Verbose)
			defer func() {
				// Ensure logger syncs before exit
				logger.SafeSync(log)
			}()

			// Create a context with cancellation for safety
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Defer the cleanup function to ensure signal handling is properly cleaned up
			cleanup := utils.SetupGracefulShutdown(ctx, cancel, log)
			defer cleanup()

			runStats, err := convert(ctx, log, cfg, args, stdout)
			if err != nil {
				if customErrors.IsCancellationError(err) {
					log.Warn("Conversion was canceled", zap.Error(err))
				} else if customErrors.IsTimeoutError(err) {
					log.Error("Conversion timed out", zap.Error(err))
				} else if customErrors.IsIOError(err) {
					log.Error("I/O error during conversion", zap.Error(err))
				} else {
					log.Error("Failed to convert files", zap.Error(err))
				}
				if runStats != nil {
					runStats.DisplaySummary(stderr, log)
				}
				return err
			}

			// Display summary
			runStats.DisplaySummary(stderr, log)
			return nil
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", configHelp())
	f.IntVarP(&flags.workers, "workers", "w", config.DefaultEncoderWorkers, "Number of concurrent encoder workers")
	f.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory the converted files are written under (default ~/Music)")
	f.StringVarP(&flags.logFile, "log-file", "l", "", "Result log appended to after each conversion (default ~/mp32ogg.log)")
	f.StringVar(&flags.tempDir, "temp-dir", "", "Directory for intermediate PCM files (default system temp dir)")
	f.IntVar(&flags.softCap, "soft-cap", config.DefaultDecodeSoftCap, "Encode queue depth at which decoding pauses; 0 disables")
	f.IntVar(&flags.queueCapacity, "queue-capacity", config.DefaultQueueCapacity, "Hard capacity of the other queues; 0 is unbounded")
	f.StringVar(&flags.monitorInterval, "monitor-interval", config.DefaultMonitorInterval.String(), "Progress line interval")
	f.StringVar(&flags.toolTimeout, "tool-timeout", "0s", "Timeout for each external tool run; 0 disables")
	f.StringVar(&flags.tagTool, "tag-tool", config.DefaultTagTool, "Tag reader binary")
	f.StringVar(&flags.decoder, "decoder", config.DefaultDecoder, "Decoder binary")
	f.StringVar(&flags.encoder, "encoder", config.DefaultEncoder, "Encoder binary")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	return rootCmd
}

// loadConfig reads the configuration file and applies the flags set on the command line
func loadConfig(cmd *cobra.Command, flags cliFlags) (*config.Config, error) {
	cfg, _, _, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("workers") {
		cfg.EncoderWorkers = flags.workers
	}
	if changed("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if changed("log-file") {
		cfg.LogPath = flags.logFile
	}
	if changed("temp-dir") {
		cfg.TempDir = flags.tempDir
	}
	if changed("soft-cap") {
		cfg.DecodeSoftCap = flags.softCap
	}
	if changed("queue-capacity") {
		cfg.QueueCapacity = flags.queueCapacity
	}
	if changed("monitor-interval") {
		if err := cfg.MonitorInterval.UnmarshalText([]byte(flags.monitorInterval)); err != nil {
			return nil, fmt.Errorf("--monitor-interval: %w", err)
		}
	}
	if changed("tool-timeout") {
		if err := cfg.ToolTimeout.UnmarshalText([]byte(flags.toolTimeout)); err != nil {
			return nil, fmt.Errorf("--tool-timeout: %w", err)
		}
	}
	if changed("tag-tool") {
		cfg.TagTool = flags.tagTool
	}
	if changed("decoder") {
		cfg.Decoder = flags.decoder
	}
	if changed("encoder") {
		cfg.Encoder = flags.encoder
	}
	if changed("verbose") {
		cfg.Verbose = flags.verbose
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// convertFiles checks the external tools and runs the pipeline with them
// configHelp names the resolved default configuration file in the --config usage.
func configHelp() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "Configuration file path"
	}
	return fmt.Sprintf("Configuration file path (default %s)", path)
}

func convertFiles(ctx context.Context, log *zap.Logger, cfg *config.Config, paths []string, stdout io.Writer) (*stats.Stats, error) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	for _, status := range statuses {
		if !status.Available {
			log.Error("Required tool unavailable",
				zap.String("tool", status.Name),
				zap.String("command", status.Command),
				zap.String("detail", status.Detail))
		}
	}
	if err := deps.Missing(statuses); err != nil {
		return nil, err
	}

	toolchain := transcode.New(cfg, command.ExecRunner{Timeout: cfg.ToolTimeout.Std(), Logger: log})
	return pipeline.Run(ctx, log, cfg, toolchain, paths, stdout)
}

func main() {
	// Run the application with the default exit function and the real toolchain
	run(os.Args[1:], os.Stdout, os.Stderr, DefaultExitFunc, convertFiles)
}
