package config

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"parquet2json/utils"
)

// Flag names shared by the commands.
const (
	FlagConfig       = "config"
	FlagFormat       = "format"
	FlagIndent       = "indent"
	FlagBatchSize    = "batch-size"
	FlagTimeframes   = "timeframes"
	FlagYears        = "years"
	FlagInput        = "input"
	FlagOutput       = "output"
	FlagVerbose      = "verbose"
	FlagVerify       = "verify"
	FlagAWSRegion    = "aws-region"
	FlagAWSAccessKey = "aws-access-key"
	FlagAWSSecretKey = "aws-secret-key"
	FlagReportDSN    = "report-dsn"
	FlagReportTable  = "report-table"
	FlagJSONLogs     = "json-logs"
	FlagDevLogs      = "dev-logs"
	FlagDebug        = "debug"
	FlagTrace        = "trace"
)

// AddFlags defines the configuration flags on the root command, inherited by the subcommands.
// Flags have no defaults of their own: only flags given on the command line override other sources.
func AddFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String(FlagConfig, "", "YAML configuration file (default: ./"+DefaultConfigFile+" when present)")
	f.String(FlagFormat, "", "Output format: array-json (json, array) or line-delimited (ndjson, jsonl) (default: array-json)")
	f.String(FlagIndent, "", "Spaces per nesting level, or 'none' for compact rows (default: 2)")
	f.Int(FlagBatchSize, 0, "Rows read per step; affects memory only (default: 64000)")
	f.String(FlagTimeframes, "", "Comma-separated timeframe folders (default: 1d,4h)")
	f.String(FlagYears, "", "Comma-separated years or ranges like 2020..2024, 'auto' to discover (default: 2020..2024)")
	f.String(FlagInput, "", "Input base directory or s3://bucket/prefix (default: .)")
	f.String(FlagOutput, "", "Output base directory (default: json)")
	f.Bool(FlagVerbose, true, "Print a line per converted file")
	f.Bool(FlagVerify, false, "Re-read every output and check its row count")
	f.String(FlagAWSRegion, "", "AWS Region (default: 'us-east-1')")
	f.String(FlagAWSAccessKey, "", "AWS Access Key (default: the AWS credential chain)")
	f.String(FlagAWSSecretKey, "", "AWS Secret Key (default: the AWS credential chain)")
	f.String(FlagReportDSN, "", "Postgres connection string for the run report (disabled when empty)")
	f.String(FlagReportTable, "", "Run report table, optionally schema-qualified (default: "+DefaultReportTable+")")
	f.Bool(FlagJSONLogs, false, "Enable production JSON-formatted logs")
	f.Bool(FlagDevLogs, false, "Enable development logs formatting with time stamps and source files")
	f.Bool(FlagDebug, false, "Enable DEBUG-level logging")
	f.Bool(FlagTrace, false, "Enable TRACE-level logging of batches and row groups")
}

// LogOptionsFromFlags reads the logger switches; the logger initialization should happen first of all.
func LogOptionsFromFlags(cmd *cobra.Command) utils.LogOptions {
	flags := cmd.Flags()
	jsonLogs, _ := flags.GetBool(FlagJSONLogs)
	devLogs, _ := flags.GetBool(FlagDevLogs)
	debug, _ := flags.GetBool(FlagDebug)
	trace, _ := flags.GetBool(FlagTrace)
	return utils.LogOptions{JSON: jsonLogs, Dev: devLogs, Debug: debug || trace, Trace: trace}
}

// FromFlags builds the argument layer from the flags that were actually given, plus the config file path.
func FromFlags(cmd *cobra.Command) (args *Config, configFile string, err error) {
	flags := cmd.Flags()
	args = &Config{}
	configFile, _ = flags.GetString(FlagConfig)

	textFlags := map[string]*string{
		FlagFormat:       &args.OutputFormat,
		FlagIndent:       &args.Indent,
		FlagInput:        &args.InputBaseDir,
		FlagOutput:       &args.OutputBaseDir,
		FlagAWSRegion:    &args.AWS.Region,
		FlagAWSAccessKey: &args.AWS.AccessKey,
		FlagAWSSecretKey: &args.AWS.SecretKey,
		FlagReportDSN:    &args.Report.DSN,
		FlagReportTable:  &args.Report.Table,
	}
	for name, dst := range textFlags {
		if value, _ := flags.GetString(name); isNotBlank(&value) {
			*dst = value
		}
	}
	if flags.Changed(FlagBatchSize) {
		args.BatchSize, _ = flags.GetInt(FlagBatchSize)
		if args.BatchSize <= 0 {
			// zero would be ignored by override, so reject it here
			return nil, "", errors.Newf("--%s must be a positive integer", FlagBatchSize)
		}
	}
	if flags.Changed(FlagTimeframes) {
		value, _ := flags.GetString(FlagTimeframes)
		args.Timeframes = SplitList(value)
	}
	if flags.Changed(FlagYears) {
		value, _ := flags.GetString(FlagYears)
		if args.Years, err = ParseYears(value); err != nil {
			return nil, "", err
		}
	}
	if flags.Changed(FlagVerbose) {
		verbose, _ := flags.GetBool(FlagVerbose)
		args.Verbose = &verbose
	}
	if flags.Changed(FlagVerify) {
		verify, _ := flags.GetBool(FlagVerify)
		args.Verify = &verify
	}
	return args, configFile, nil
}
