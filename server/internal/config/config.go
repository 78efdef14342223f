package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned by Parse for a document without any YAML content.
var ErrEmpty = errors.New("config: empty document")

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultCORSOrigin    = "*"
	DefaultLogLevel      = "info"
	DefaultRevisionEnv   = "GIT_REVISION"
	DefaultGitLabTimeout = 30 * time.Second
	DefaultScrapeTimeout = 10 * time.Second
)

// Config is the complete configuration parsed from config.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GitLab     GitLabConfig     `yaml:"gitlab"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Static     StaticConfig     `yaml:"static"`
}

// ServerConfig holds the HTTP listener and process settings.
type ServerConfig struct {
	// HTTPPort is the port the datasource API listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// CORSOrigin is sent as Access-Control-Allow-Origin (default "*").
	CORSOrigin string `yaml:"cors_origin"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// RevisionEnv names the environment variable holding the deployed revision.
	RevisionEnv string `yaml:"revision_env"`
}

// Revision returns the deployed revision resolved from the environment.
func (s ServerConfig) Revision() string {
	if s.RevisionEnv == "" {
		return ""
	}
	return os.Getenv(s.RevisionEnv)
}

// Level parses LogLevel. Validation guarantees it is one of the known names.
func (s ServerConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// GitLabConfig configures the gitlab scope. The scope is disabled when URL is empty.
type GitLabConfig struct {
	// URL is the base URL of the GitLab instance, without /api/v4.
	URL string `yaml:"url"`

	// TokenEnv is the name of the environment variable holding the access token.
	TokenEnv string `yaml:"token_env"`

	// DefaultProject is used when a query payload names no project.
	DefaultProject int `yaml:"default_project"`

	// ProjectIDs lists the projects offered by the "projects" variable.
	ProjectIDs []int `yaml:"project_ids"`

	// Timeout bounds every request to the GitLab API.
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether the gitlab scope should be registered.
func (g GitLabConfig) Enabled() bool { return g.URL != "" }

// Token returns the access token resolved from the environment.
func (g GitLabConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// PrometheusConfig lists the exposition endpoints served by the prometheus scope.
type PrometheusConfig struct {
	Sources []PrometheusSource `yaml:"sources"`
}

// PrometheusSource is one scraped exposition endpoint.
type PrometheusSource struct {
	// Name identifies the source in payloads and variables.
	Name string `yaml:"name"`

	// Endpoint is the full URL of the /metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one scrape (default 10s).
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how requests to Endpoint are authenticated.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for an outbound source.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key when Mode == "apikey".
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username and PasswordEnv are used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// StaticConfig holds variables whose options are written in the config file.
type StaticConfig struct {
	Variables []StaticVariable `yaml:"variables"`
}

// StaticVariable is one variable of the static scope.
type StaticVariable struct {
	Name    string         `yaml:"name"`
	Options []StaticOption `yaml:"options"`
}

// StaticOption is one label/value pair of a static variable.
type StaticOption struct {
	Label string `yaml:"label"`
	Value any    `yaml:"value"`
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document. A document with no content,
// such as a file caught between truncate and write, is rejected; "{}" is the
// explicit way to ask for all defaults.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return nil, ErrEmpty
	}

	cfg := defaults()
	if err := doc.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applySourceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    DefaultHTTPPort,
			CORSOrigin:  DefaultCORSOrigin,
			LogLevel:    DefaultLogLevel,
			RevisionEnv: DefaultRevisionEnv,
		},
		GitLab: GitLabConfig{
			Timeout: DefaultGitLabTimeout,
		},
	}
}

// applySourceDefaults fills per-entry defaults that yaml cannot pre-populate.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Prometheus.Sources {
		if cfg.Prometheus.Sources[i].Timeout == 0 {
			cfg.Prometheus.Sources[i].Timeout = DefaultScrapeTimeout
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", cfg.Server.LogLevel)
	}

	if cfg.GitLab.Enabled() {
		u, err := url.Parse(cfg.GitLab.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("gitlab.url %q must be an absolute URL", cfg.GitLab.URL)
		}
		if cfg.GitLab.DefaultProject <= 0 {
			return fmt.Errorf("gitlab.default_project is required when gitlab.url is set")
		}
		if cfg.GitLab.Timeout <= 0 {
			return fmt.Errorf("gitlab.timeout must be positive")
		}
	}

	seen := make(map[string]bool)
	for i, src := range cfg.Prometheus.Sources {
		if src.Name == "" {
			return fmt.Errorf("prometheus.sources[%d]: name is required", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("prometheus.sources[%d]: duplicate name %q", i, src.Name)
		}
		seen[src.Name] = true
		if src.Endpoint == "" {
			return fmt.Errorf("prometheus.sources[%d] %q: endpoint is required", i, src.Name)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("prometheus.sources[%d] %q: unknown auth mode %q", i, src.Name, src.Auth.Mode)
		}
		if src.Auth.Mode == "apikey" && src.Auth.Header == "" {
			return fmt.Errorf("prometheus.sources[%d] %q: auth.header is required for apikey mode", i, src.Name)
		}
	}

	names := make(map[string]bool)
	for i, v := range cfg.Static.Variables {
		if v.Name == "" {
			return fmt.Errorf("static.variables[%d]: name is required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("static.variables[%d]: duplicate name %q", i, v.Name)
		}
		names[v.Name] = true
		for j, o := range v.Options {
			if o.Label == "" {
				return fmt.Errorf("static.variables[%d] %q: options[%d]: label is required", i, v.Name, j)
			}
		}
	}
	return nil
}
