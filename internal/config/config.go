// Package config is the CLI/YAML configuration surface (spec.md §6 "CLI
// surface"), grounded on the teacher's cli/cmd/ariadne/main.go flag-based
// entrypoint (flag.StringVar/.BoolVar per option, a simple JSON overlay
// merged on top of defaults) and the internal/runtime
// RuntimeConfigManager's validate-before-use contract, generalized to a
// YAML overlay and struct-tag validation instead of hand-written checks.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Output selects which sink(s) the collector writes to.
type Output string

const (
	OutputInfluxDB   Output = "influxdb"
	OutputPrometheus Output = "prometheus"
	OutputBoth       Output = "both"
)

// Overlay is the optional YAML file shape (spec.md §4.0 ambient "optional
// YAML overlay"). The two boolean fields are pointers so "unset in file" is
// distinguishable from "false in file"; for every other field the zero
// value counts as unset and leaves the flag value in place.
type Overlay struct {
	API                  []string `yaml:"api"`
	FromJSON             string   `yaml:"fromJson"`
	Username             string   `yaml:"username"`
	Password             string   `yaml:"password"`
	SystemID             string   `yaml:"systemId"`
	TLSCa                string   `yaml:"tlsCa"`
	TLSValidation        string   `yaml:"tlsValidation"`
	Output               string   `yaml:"output"`
	InfluxDBURL          string   `yaml:"influxdbUrl"`
	InfluxDBToken        string   `yaml:"influxdbToken"`
	InfluxDBDatabase     string   `yaml:"influxdbDatabase"`
	PrometheusPort       int      `yaml:"prometheusPort"`
	IntervalTime         int      `yaml:"intervalTime"`
	IncludeEvents        *bool    `yaml:"includeEvents"`
	IncludeEnvironmental *bool    `yaml:"includeEnvironmental"`
	MaxIterations        int      `yaml:"maxIterations"`
	LogLevel             string   `yaml:"logLevel"`
	LogFile              string   `yaml:"logfile"`
	GrafanaURL           string   `yaml:"grafanaUrl"`
	GrafanaToken         string   `yaml:"grafanaToken"`
}

// Config is the fully-resolved, validated configuration for one collector
// run (spec.md §6's CLI surface plus the ambient additions of §4.0).
type Config struct {
	API      []string `validate:"required_without=FromJSON"`
	FromJSON string   `validate:"required_without=API,excluded_with=API"`

	Username string `validate:"required_without=FromJSON"`
	Password string `validate:"required_without=FromJSON"`
	SystemID string

	TLSCa         string
	TLSValidation string `validate:"omitempty,oneof=strict normal none"`

	Output           Output `validate:"required,oneof=influxdb prometheus both"`
	InfluxDBURL      string `validate:"required_if=Output influxdb,required_if=Output both"`
	InfluxDBToken    string
	InfluxDBDatabase string `validate:"required_if=Output influxdb,required_if=Output both"`
	PrometheusPort   int    `validate:"required_if=Output prometheus,required_if=Output both"`

	IntervalTime         int `validate:"required_without=FromJSON,omitempty,oneof=60 128 180 300"`
	IncludeEvents        bool
	IncludeEnvironmental bool
	MaxIterations        int

	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
	LogFile  string

	GrafanaURL   string
	GrafanaToken string
}

// Load parses CLI flags from args (os.Args[1:] in production), optionally
// overlaid with a YAML file named by --config, then validates the result
// (spec.md §7 "Configuration error... Fatal before the loop starts").
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("eseries-collector", flag.ContinueOnError)

	var (
		apiList              string
		fromJSON             string
		username             string
		password             string
		systemID             string
		tlsCa                string
		tlsValidation        string
		output               string
		influxdbURL          string
		influxdbToken        string
		influxdbDatabase     string
		prometheusPort       int
		intervalTime         int
		includeEvents        bool
		noEvents             bool
		includeEnvironmental bool
		noEnvironmental      bool
		maxIterations        int
		logLevel             string
		logFile              string
		grafanaURL           string
		grafanaToken         string
		configPath           string
	)

	fs.StringVar(&apiList, "api", "", "Comma-separated list of array management hostnames (live mode)")
	fs.StringVar(&fromJSON, "fromJson", "", "Directory of JSON snapshot batches to replay instead of --api")
	fs.StringVar(&username, "username", "", "Array management username")
	fs.StringVar(&password, "password", "", "Array management password")
	fs.StringVar(&systemID, "systemId", "", "Override the system identity read from replay file names")
	fs.StringVar(&tlsCa, "tlsCa", "", "Path to a PEM CA bundle for strict TLS validation")
	fs.StringVar(&tlsValidation, "tlsValidation", "normal", "TLS validation mode for the array: strict|normal|none")
	fs.StringVar(&output, "output", "influxdb", "Output sink(s): influxdb|prometheus|both")
	fs.StringVar(&influxdbURL, "influxdbUrl", "", "TSDB sink base URL")
	fs.StringVar(&influxdbToken, "influxdbToken", "", "TSDB sink bearer token")
	fs.StringVar(&influxdbDatabase, "influxdbDatabase", "", "TSDB sink database name")
	fs.IntVar(&prometheusPort, "prometheus-port", 9841, "Port the scrape writer listens on")
	fs.IntVar(&intervalTime, "intervalTime", 60, "Seconds between cycles in live mode; one of {60,128,180,300}")
	fs.BoolVar(&includeEvents, "include_events", true, "Collect and enrich events")
	fs.BoolVar(&noEvents, "no-events", false, "Disable event collection (overrides --include_events)")
	fs.BoolVar(&includeEnvironmental, "include_environmental", true, "Collect and enrich environmental readings")
	fs.BoolVar(&noEnvironmental, "no-environmental", false, "Disable environmental collection (overrides --include_environmental)")
	fs.IntVar(&maxIterations, "maxIterations", 0, "Stop after N cycles; 0 means unlimited")
	fs.StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&logFile, "logfile", "", "Optional log file path; empty logs to stderr")
	fs.StringVar(&grafanaURL, "grafanaUrl", "", "Optional Grafana base URL for event annotation")
	fs.StringVar(&grafanaToken, "grafanaToken", "", "Optional Grafana API token for event annotation")
	fs.StringVar(&configPath, "config", "", "Optional YAML overlay file merged over flag defaults")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	cfg := &Config{
		API:                  splitNonEmpty(apiList, ","),
		FromJSON:             fromJSON,
		Username:             username,
		Password:             password,
		SystemID:             systemID,
		TLSCa:                tlsCa,
		TLSValidation:        tlsValidation,
		Output:               Output(output),
		InfluxDBURL:          influxdbURL,
		InfluxDBToken:        influxdbToken,
		InfluxDBDatabase:     influxdbDatabase,
		PrometheusPort:       prometheusPort,
		IntervalTime:         intervalTime,
		IncludeEvents:        includeEvents && !noEvents,
		IncludeEnvironmental: includeEnvironmental && !noEnvironmental,
		MaxIterations:        maxIterations,
		LogLevel:             logLevel,
		LogFile:              logFile,
		GrafanaURL:           grafanaURL,
		GrafanaToken:         grafanaToken,
	}

	if configPath != "" {
		overlay, err := loadOverlay(configPath)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		applyOverlay(cfg, overlay)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func loadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse YAML overlay: %w", err)
	}
	return &o, nil
}

// applyOverlay merges non-zero overlay fields over cfg, flags-then-YAML
// precedence (the overlay wins), mirroring the teacher's applySimpleConfig
// pattern of merging a file on top of CLI-derived defaults.
func applyOverlay(cfg *Config, o *Overlay) {
	if len(o.API) > 0 {
		cfg.API = o.API
	}
	if o.FromJSON != "" {
		cfg.FromJSON = o.FromJSON
	}
	if o.Username != "" {
		cfg.Username = o.Username
	}
	if o.Password != "" {
		cfg.Password = o.Password
	}
	if o.SystemID != "" {
		cfg.SystemID = o.SystemID
	}
	if o.TLSCa != "" {
		cfg.TLSCa = o.TLSCa
	}
	if o.TLSValidation != "" {
		cfg.TLSValidation = o.TLSValidation
	}
	if o.Output != "" {
		cfg.Output = Output(o.Output)
	}
	if o.InfluxDBURL != "" {
		cfg.InfluxDBURL = o.InfluxDBURL
	}
	if o.InfluxDBToken != "" {
		cfg.InfluxDBToken = o.InfluxDBToken
	}
	if o.InfluxDBDatabase != "" {
		cfg.InfluxDBDatabase = o.InfluxDBDatabase
	}
	if o.PrometheusPort != 0 {
		cfg.PrometheusPort = o.PrometheusPort
	}
	if o.IntervalTime != 0 {
		cfg.IntervalTime = o.IntervalTime
	}
	if o.IncludeEvents != nil {
		cfg.IncludeEvents = *o.IncludeEvents
	}
	if o.IncludeEnvironmental != nil {
		cfg.IncludeEnvironmental = *o.IncludeEnvironmental
	}
	if o.MaxIterations != 0 {
		cfg.MaxIterations = o.MaxIterations
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
	if o.GrafanaURL != "" {
		cfg.GrafanaURL = o.GrafanaURL
	}
	if o.GrafanaToken != "" {
		cfg.GrafanaToken = o.GrafanaToken
	}
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if len(cfg.API) > 0 && cfg.FromJSON != "" {
		return fmt.Errorf("--api and --fromJson are mutually exclusive")
	}
	if cfg.TLSValidation == "strict" && cfg.TLSCa == "" {
		return fmt.Errorf("--tlsValidation=strict requires --tlsCa")
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
