// Package config loads the converter settings from the environment, a YAML file and command line flags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"parquet2json/target"
	"parquet2json/utils"
)

// log a convenience wrapper to shorten code lines
var log = utils.Logger

const (
	// DefaultConfigFile is read from the working directory when no --config is given.
	DefaultConfigFile = "parquet2json.yaml"
	// EnvPrefix prefixes every environment variable except the AWS ones.
	EnvPrefix = "P2J_"
	// IndentNone selects compact rows.
	IndentNone = "none"
	// DefaultReportTable receives the run report when a report DSN is configured.
	DefaultReportTable = "parquet2json_results"
)

// AWSConfig are the S3 settings used when the input is an s3:// location.
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ReportConfig enables the Postgres run report when DSN is set.
type ReportConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Config represents the application configuration defined through various sources
// such as environment variables, a YAML file or command line flags.
type Config struct {

	// OutputFormat array-json (json, array) or line-delimited (ndjson, jsonl)
	OutputFormat string `yaml:"output_format"`

	// Indent "none" for compact rows or a number of spaces; the YAML key accepts null or an integer
	Indent string `yaml:"-"`

	// BatchSize rows per read step
	BatchSize int `yaml:"batch_size"`

	// Timeframes the first level of the directory structure, converted in this order
	Timeframes []string `yaml:"timeframes"`

	// Years the second level; an empty (non-nil) list means discovery from the input listing
	Years []int `yaml:"years"`

	// InputBaseDir a local directory or s3://bucket/prefix
	InputBaseDir string `yaml:"input_base_dir"`

	// OutputBaseDir a local directory, created when missing
	OutputBaseDir string `yaml:"output_base_dir"`

	// Verbose per-file lines; pointers tell "not set" from false
	Verbose *bool `yaml:"verbose"`

	// Verify re-read every output and check its row count
	Verify *bool `yaml:"verify"`

	AWS    AWSConfig    `yaml:"aws"`
	Report ReportConfig `yaml:"report"`

	// ConfigFile the YAML file that was loaded, if any
	ConfigFile string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	verbose, verify := true, false
	return &Config{
		OutputFormat:  target.Array.String(),
		Indent:        "2",
		BatchSize:     64000,
		Timeframes:    []string{"1d", "4h"},
		Years:         []int{2020, 2021, 2022, 2023, 2024},
		InputBaseDir:  ".",
		OutputBaseDir: "json",
		Verbose:       &verbose,
		Verify:        &verify,
		AWS:           AWSConfig{Region: "us-east-1"},
		Report:        ReportConfig{Table: DefaultReportTable},
	}
}

// Load builds the configuration in order of precedence: defaults, environment, the YAML file, then
// the command line arguments. configFile must exist when not empty; otherwise DefaultConfigFile is
// read when present.
func Load(args *Config, configFile string) (*Config, error) {
	c := Default()
	if err := c.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if configFile == "" {
		if env, ok := os.LookupEnv(EnvPrefix + "CONFIG"); ok {
			configFile = env
		}
	}
	if configFile != "" {
		if err := c.loadFromFile(configFile); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := c.loadFromFile(DefaultConfigFile); err != nil {
			return nil, err
		}
	}
	if args != nil {
		c.override(args) // some arguments can override other configuration sources
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	log.Debug("Configuration loaded", zap.String("file", c.ConfigFile), zap.String("format", c.OutputFormat),
		zap.String("indent", c.Indent), zap.Int("batchSize", c.BatchSize), zap.Strings("timeframes", c.Timeframes),
		zap.Ints("years", c.Years), zap.String("input", c.InputBaseDir), zap.String("output", c.OutputBaseDir))
	return c, nil
}

// loadFromEnv reads P2J_* variables and AWS_REGION through lookup (os.LookupEnv outside tests).
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	if region, ok := lookup("AWS_REGION"); ok && region != "" {
		c.AWS.Region = region
	}
	if v, ok := lookup(EnvPrefix + "OUTPUT_FORMAT"); ok {
		c.OutputFormat = v
	}
	if v, ok := lookup(EnvPrefix + "INDENT"); ok {
		c.Indent = v
	}
	if v, ok := lookup(EnvPrefix + "BATCH_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "invalid %sBATCH_SIZE", EnvPrefix)
		}
		c.BatchSize = n
	}
	if v, ok := lookup(EnvPrefix + "TIMEFRAMES"); ok {
		c.Timeframes = SplitList(v)
	}
	if v, ok := lookup(EnvPrefix + "YEARS"); ok {
		years, err := ParseYears(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sYEARS", EnvPrefix)
		}
		c.Years = years
	}
	if v, ok := lookup(EnvPrefix + "INPUT_BASE_DIR"); ok {
		c.InputBaseDir = v
	}
	if v, ok := lookup(EnvPrefix + "OUTPUT_BASE_DIR"); ok {
		c.OutputBaseDir = v
	}
	for name, dst := range map[string]**bool{"VERBOSE": &c.Verbose, "VERIFY": &c.Verify} {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
			}
			*dst = &b
		}
	}
	if v, ok := lookup(EnvPrefix + "REPORT_DSN"); ok {
		c.Report.DSN = v
	}
	return nil
}

// loadFromFile reads a YAML file over the current values; keys that are absent keep them.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read the config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse the config file %s", path)
	}
	// indent: null means compact, which a plain field cannot tell from an absent key
	var raw struct {
		Indent yaml.Node `yaml:"indent"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrapf(err, "failed to parse the config file %s", path)
	}
	switch {
	case raw.Indent.Kind == 0:
	case raw.Indent.Kind == yaml.ScalarNode && raw.Indent.Tag == "!!null":
		c.Indent = IndentNone
	case raw.Indent.Kind == yaml.ScalarNode:
		c.Indent = raw.Indent.Value
	default:
		return errors.Newf("config file %s: indent must be null or an integer", path)
	}
	c.ConfigFile = path
	return nil
}

// override updates the current Config instance's fields by overriding them with non-zero values
// from another Config instance.
func (c *Config) override(argsInstance *Config) {
	overrideStruct(reflect.ValueOf(c).Elem(), reflect.ValueOf(argsInstance).Elem())
}

func overrideStruct(dst reflect.Value, src reflect.Value) {
	t := src.Type()
	for i := 0; i < src.NumField(); i++ {
		field := src.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanInterface() {
			continue
		}

		// Get the corresponding field in the destination structure
		cField := dst.FieldByName(fieldType.Name)
		if !cField.IsValid() || !cField.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			if field.String() != "" {
				cField.Set(field)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Int() != 0 {
				cField.Set(field)
			}
		case reflect.Map, reflect.Slice, reflect.Ptr:
			if !field.IsNil() {
				cField.Set(field)
			}
		case reflect.Bool:
			if field.Bool() {
				cField.Set(field)
			}
		case reflect.Struct:
			overrideStruct(cField, field)
		default:
			panic(fmt.Sprintf("unhandled config field kind %s", field.Kind()))
		}
	}
}

func (c *Config) validate() error {
	if _, err := target.ParseFormat(c.OutputFormat); err != nil {
		return err
	}
	if _, err := ParseIndent(c.Indent); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return errors.Newf("batch size must be a positive integer, got %d", c.BatchSize)
	}
	if len(c.Timeframes) == 0 {
		return errors.New("at least one timeframe is required")
	}
	for _, tf := range c.Timeframes {
		if strings.TrimSpace(tf) == "" || utils.FindFilePathCharacters(tf) {
			return errors.Newf("invalid timeframe label %q", tf)
		}
	}
	for _, y := range c.Years {
		if y < 0 {
			return errors.Newf("invalid year %d", y)
		}
	}
	if !isNotBlank(&c.InputBaseDir) {
		return errors.New("the input base directory is required")
	}
	if !isNotBlank(&c.OutputBaseDir) {
		return errors.New("the output base directory is required")
	}
	if c.Report.DSN != "" {
		if _, _, err := utils.SplitFullTableName(c.Report.Table); err != nil || !isNotBlank(&c.Report.Table) {
			return errors.Newf("invalid report table %q", c.Report.Table)
		}
	}
	return nil
}

// Format returns the parsed output format; the configuration is validated.
func (c *Config) Format() target.Format {
	f, _ := target.ParseFormat(c.OutputFormat)
	return f
}

// IndentSpaces returns nil for compact rows.
func (c *Config) IndentSpaces() *int {
	n, _ := ParseIndent(c.Indent)
	return n
}

// IsVerbose is false only when verbose is explicitly disabled.
func (c *Config) IsVerbose() bool {
	return c.Verbose == nil || *c.Verbose
}

// ShouldVerify reports whether outputs are re-read after conversion.
func (c *Config) ShouldVerify() bool {
	return c.Verify != nil && *c.Verify
}

// ParseIndent accepts "none", "null" or a non-negative integer; nil means compact.
func ParseIndent(s string) (*int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case IndentNone, "null":
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return nil, errors.Newf("indent must be %q or a non-negative integer, got %q", IndentNone, s)
	}
	return &n, nil
}

// ParseYears parses a comma list of years and ranges like "2020..2024". "auto" or an empty string
// yields an empty list, which means discovery.
func ParseYears(s string) ([]int, error) {
	years := []int{}
	if strings.EqualFold(strings.TrimSpace(s), "auto") {
		return years, nil
	}
	for _, item := range SplitList(s) {
		if from, to, isRange := strings.Cut(item, ".."); isRange {
			first, err1 := strconv.Atoi(strings.TrimSpace(from))
			last, err2 := strconv.Atoi(strings.TrimSpace(to))
			if err1 != nil || err2 != nil || first > last {
				return nil, errors.Newf("invalid year range %q", item)
			}
			for y := first; y <= last; y++ {
				years = append(years, y)
			}
			continue
		}
		y, err := strconv.Atoi(item)
		if err != nil {
			return nil, errors.Newf("invalid year %q", item)
		}
		years = append(years, y)
	}
	return years, nil
}

// SplitList splits a comma-separated list, trimming spaces and dropping empty items.
func SplitList(s string) []string {
	items := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// isNotBlank checks if the provided string pointer is non-nil and its trimmed value is not empty.
func isNotBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
