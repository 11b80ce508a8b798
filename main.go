package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parquet2json/batch"
	"parquet2json/config"
	"parquet2json/convert"
	"parquet2json/source"
	"parquet2json/target"
	"parquet2json/utils"
)

// log a convenience wrapper to shorten code lines
var log = utils.Logger

// errFailures is returned when at least one conversion failed; the details are already logged.
var errFailures = errors.New("some conversions failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	log.Sync()
	if err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "parquet2json",
		Short: "Convert {timeframe}/{year}.parquet files into JSON",
		Long: `parquet2json converts every {input}/{timeframe}/{year}.parquet into {output}/{timeframe}/{year}.json,
either as one JSON array per file or as one JSON object per line. Missing inputs are skipped;
a failing file never stops the others.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// the logger initialization should happen first of all
			utils.InitLogger(config.LogOptionsFromFlags(cmd))
		},
		RunE: runBatch,
	}
	config.AddFlags(root)
	root.AddCommand(&cobra.Command{
		Use:   "file <input.parquet> <output.json>",
		Short: "Convert a single local Parquet file",
		Args:  cobra.ExactArgs(2),
		RunE:  runFile,
	})
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	args, configFile, err := config.FromFlags(cmd)
	if err != nil {
		return nil, err
	}
	conf, err := config.Load(args, configFile)
	if err != nil {
		log.Error("Invalid configuration", zap.Error(err))
		return nil, err
	}
	return conf, nil
}

func newConverter(conf *config.Config) (*convert.Converter, error) {
	return convert.New(convert.Options{
		Format:    conf.Format(),
		BatchSize: conf.BatchSize,
		Indent:    conf.IndentSpaces(),
		Verify:    conf.ShouldVerify(),
	})
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	converter, err := newConverter(conf)
	if err != nil {
		return err
	}
	src, err := source.NewSource(ctx, conf.InputBaseDir, source.AWSOptions{
		Region:    conf.AWS.Region,
		AccessKey: conf.AWS.AccessKey,
		SecretKey: conf.AWS.SecretKey,
	})
	if err != nil {
		log.Error("Failed to open the input", zap.String("input", conf.InputBaseDir), zap.Error(err))
		return err
	}

	driver := batch.NewDriver(src, converter, batch.Options{
		Format:     conf.Format(),
		Indent:     conf.IndentSpaces(),
		BatchSize:  conf.BatchSize,
		Timeframes: conf.Timeframes,
		Years:      conf.Years,
		OutputDir:  conf.OutputBaseDir,
		Verbose:    conf.IsVerbose(),
	}, batch.NewConsole(os.Stdout))

	if conf.Report.DSN != "" {
		report, err := target.NewReportWriter(conf.Report.DSN, conf.Report.Table)
		if err != nil {
			return err
		}
		if err := report.Connect(ctx); err != nil {
			log.Error("Failed to open the run report", zap.String("table", report.Table()), zap.Error(err))
			return err
		}
		defer report.Close()
		driver.WithRecorder(report)
		log.Debug("Recording the run", zap.String("runID", driver.RunID()), zap.String("table", report.Table()))
	}

	startTime := time.Now()
	summary, err := driver.Run(ctx)
	if err != nil {
		log.Error("Run aborted", zap.Error(err))
		return err
	}
	log.Debug("Finished processing all files", zap.Duration("total_time", time.Since(startTime)))
	if !summary.OK() {
		return errFailures
	}
	return nil
}

func runFile(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	converter, err := newConverter(conf)
	if err != nil {
		return err
	}
	result, err := converter.Convert(cmd.Context(), args[0], args[1])
	if err != nil {
		// the converter has already logged the cause
		return errFailures
	}
	log.Info("Converted", zap.String("input", args[0]), zap.String("output", args[1]),
		zap.Int64("rows", result.Rows), zap.Duration("time", result.Duration))
	return nil
}
