package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// KindService is the HTTP log query service.
	KindService = "service"
	// KindClickHouse queries a unified ClickHouse logs table directly.
	KindClickHouse = "clickhouse"

	DefaultFileName   = "systemlogs-timeline.yml"
	DefaultPageLimit  = 100
	DefaultTraceLimit = 500
	DefaultListLimit  = 500
	DefaultRetries    = 3
)

type Context struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // service or clickhouse

	// service
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	Retries *int          `yaml:"retries"` // unset means DefaultRetries, 0 disables retrying

	// clickhouse
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Table     string `yaml:"table"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Protocol  string `yaml:"protocol"` // http or native
	Secure    bool   `yaml:"secure"`
	TLSVerify bool   `yaml:"tls_verify"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
	TLSCa     string `yaml:"tls_ca"`
}

// Defaults seed the filter of every new session.
type Defaults struct {
	Sources            []string `yaml:"sources"`
	TimeRange          string   `yaml:"time_range"`
	Direction          string   `yaml:"direction"`
	PageLimit          int      `yaml:"page_limit"`
	TraceLimit         int      `yaml:"trace_limit"`
	ListLimit          int      `yaml:"list_limit"`
	ShowPolling        bool     `yaml:"show_polling"`
	AppSource          string   `yaml:"app_source"`
	CollapseDuplicates *bool    `yaml:"collapse_duplicates"`
}

type Config struct {
	Contexts []Context `yaml:"contexts"`
	Defaults Defaults  `yaml:"defaults"`
}

// Load reads the config from cli.ConfigPath, or from home when no path was given. A missing
// default file is not an error: the built-in defaults apply.
func Load(cli *types.CLI, home string) (*Config, error) {
	path := ""
	if cli != nil {
		path = cli.ConfigPath
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, DefaultFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("config file not found, using defaults")
			cfg := &Config{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "can't read config %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "can't decode yaml")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := &c.Defaults
	if len(d.Sources) == 0 {
		for _, s := range logentry.DefaultSources {
			d.Sources = append(d.Sources, s.String())
		}
	}
	if d.TimeRange == "" {
		d.TimeRange = timerange.DefaultWindow
	}
	if d.Direction == "" {
		d.Direction = "backward"
	}
	if d.PageLimit <= 0 {
		d.PageLimit = DefaultPageLimit
	}
	if d.TraceLimit <= 0 {
		d.TraceLimit = DefaultTraceLimit
	}
	if d.ListLimit <= 0 {
		d.ListLimit = DefaultListLimit
	}
	if d.AppSource == "" {
		d.AppSource = string(classify.AppBoth)
	}
	if d.CollapseDuplicates == nil {
		collapse := true
		d.CollapseDuplicates = &collapse
	}

	for i := range c.Contexts {
		ctx := &c.Contexts[i]
		if ctx.Kind == "" {
			ctx.Kind = KindService
		}
		if ctx.Kind == KindService {
			if ctx.Timeout <= 0 {
				ctx.Timeout = 30 * time.Second
			}
			if ctx.Retries == nil {
				retries := DefaultRetries
				ctx.Retries = &retries
			}
		}
		if ctx.Kind == KindClickHouse {
			if ctx.Port == 0 {
				ctx.Port = 9000
			}
			if ctx.Table == "" {
				ctx.Table = "system_logs"
			}
			if ctx.Database == "" {
				ctx.Database = "default"
			}
		}
	}
}

func (c *Config) Validate() error {
	if _, err := logentry.ParseSources(strings.Join(c.Defaults.Sources, ",")); err != nil {
		return errors.Wrap(err, "defaults.sources")
	}
	if err := timerange.Validate(c.Defaults.TimeRange); err != nil {
		return errors.Wrap(err, "defaults.time_range")
	}
	if c.Defaults.Direction != "backward" && c.Defaults.Direction != "forward" {
		return errors.Errorf("defaults.direction must be backward or forward, got %q", c.Defaults.Direction)
	}
	if _, err := classify.ParseAppSource(c.Defaults.AppSource); err != nil {
		return errors.Wrap(err, "defaults.app_source")
	}

	seen := make(map[string]bool)
	for _, ctx := range c.Contexts {
		if ctx.Name == "" {
			return errors.New("context without name")
		}
		if seen[ctx.Name] {
			return errors.Errorf("duplicate context name %q", ctx.Name)
		}
		seen[ctx.Name] = true
		switch ctx.Kind {
		case KindService:
			if ctx.URL == "" {
				return errors.Errorf("context %q: url is required", ctx.Name)
			}
		case KindClickHouse:
			if ctx.Host == "" {
				return errors.Errorf("context %q: host is required", ctx.Name)
			}
		default:
			return errors.Errorf("context %q: unknown kind %q", ctx.Name, ctx.Kind)
		}
	}
	return nil
}

// FindContext returns the named context. An empty name selects the first one.
func (c *Config) FindContext(name string) (Context, error) {
	if len(c.Contexts) == 0 {
		return Context{}, errors.New("no contexts configured")
	}
	if name == "" {
		return c.Contexts[0], nil
	}
	for _, ctx := range c.Contexts {
		if ctx.Name == name {
			return ctx, nil
		}
	}
	return Context{}, errors.Errorf("context %q not found", name)
}
